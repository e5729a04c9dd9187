package models

import "time"

// ChildRecord is one attendance record or score submission as read back for
// its parent session or assignment.
type ChildRecord struct {
	ID       int64              `json:"id"`
	ItemID   int64              `json:"itemId"`   // enrollment id or student id
	ParentID int64              `json:"parentId"` // session id or assignment id
	Values   map[string]*string `json:"values"`   // payload columns, nil when NULL
}

// Receipt acknowledges the last committed submission for a parent.
type Receipt struct {
	Kind        string    `json:"kind"`
	ParentID    int64     `json:"parentId"`
	Items       int       `json:"items"`
	Inserted    int       `json:"inserted"`
	Updated     int       `json:"updated"`
	RequestID   string    `json:"requestId,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}
