package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gradebook-server-go/batch"
	"gradebook-server-go/models"
)

// RecordStore reads committed child records back for a parent.
type RecordStore struct {
	DB *sql.DB
}

// NewRecordStore creates a new RecordStore
func NewRecordStore(pool *sql.DB) *RecordStore {
	return &RecordStore{DB: pool}
}

func listQuery(t batch.Table) string {
	cols := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		cols = append(cols, f+"::text")
	}
	return fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s WHERE %s = $1 ORDER BY %s",
		t.IDColumn, t.ItemColumn, t.ParentColumn, strings.Join(cols, ", "),
		t.Name, t.ParentColumn, t.ItemColumn)
}

// List returns every record of t for parentID, ordered by item id.
func (s *RecordStore) List(ctx context.Context, t batch.Table, parentID int64) ([]models.ChildRecord, error) {
	rows, err := s.DB.QueryContext(ctx, listQuery(t), parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s for %s %d: %w", t.Name, t.ParentColumn, parentID, err)
	}
	defer rows.Close()

	records := []models.ChildRecord{}
	for rows.Next() {
		var rec models.ChildRecord
		values := make([]sql.NullString, len(t.Fields))
		dest := []any{&rec.ID, &rec.ItemID, &rec.ParentID}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.Name, err)
		}
		rec.Values = make(map[string]*string, len(t.Fields))
		for i, f := range t.Fields {
			if values[i].Valid {
				v := values[i].String
				rec.Values[f] = &v
			} else {
				rec.Values[f] = nil
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", t.Name, err)
	}
	return records, nil
}
