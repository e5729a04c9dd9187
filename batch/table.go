package batch

// Table describes one child-record shape: a row keyed by (item, parent) with
// a handful of string payload columns.
type Table struct {
	Kind         string // "attendance" or "scores"
	Name         string
	IDColumn     string
	ItemColumn   string
	ParentColumn string

	// Fields are the payload columns in statement order. Each one is read
	// from the form as "<field>_<itemId>".
	Fields   []string
	Required string

	// Rules holds validator tags applied to non-empty field values.
	Rules map[string]string

	// StampColumn, when set, is assigned now() on every update.
	StampColumn string

	ParentForm string
	ItemsForm  string
}

// Attendance marks one enrollment present, absent, late or excused for a session.
var Attendance = Table{
	Kind:         "attendance",
	Name:         "attendance_records",
	IDColumn:     "record_id",
	ItemColumn:   "enrollment_id",
	ParentColumn: "session_id",
	Fields:       []string{"status", "notes"},
	Required:     "status",
	Rules: map[string]string{
		"status": "oneof=present absent late excused Present Absent Late Excused",
		"notes":  "max=1000",
	},
	ParentForm: "sessionId",
	ItemsForm:  "enrollmentIds",
}

// Scores grades one student on an assignment. Scores are non-negative and
// fit NUMERIC(6, 2).
var Scores = Table{
	Kind:         "scores",
	Name:         "submissions",
	IDColumn:     "submission_id",
	ItemColumn:   "student_id",
	ParentColumn: "assignment_id",
	Fields:       []string{"score", "feedback"},
	Required:     "score",
	Rules: map[string]string{
		"score":    "numeric,score",
		"feedback": "max=2000",
	},
	StampColumn: "submission_date",
	ParentForm:  "assignmentId",
	ItemsForm:   "studentIds",
}

// TableByKind looks up one of the known tables.
func TableByKind(kind string) (Table, bool) {
	switch kind {
	case Attendance.Kind:
		return Attendance, true
	case Scores.Kind:
		return Scores, true
	}
	return Table{}, false
}
