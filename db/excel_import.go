package db

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"gradebook-server-go/batch"
)

// ImportBatchFromExcel reads a spreadsheet into a batch request for parentID.
// The first sheet is used and its first row is a header. Column A holds the
// item id and the following columns hold t.Fields in order. Rows without an
// item id are skipped; everything else is left for the engine to validate so
// a bad row rejects the whole batch.
func ImportBatchFromExcel(file io.Reader, t batch.Table, parentID int64) (batch.Request, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return batch.Request{}, batch.NewInputError("failed to open excel file: %v", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return batch.Request{}, batch.NewInputError("excel file does not contain any sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return batch.Request{}, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}

	req := batch.Request{ParentID: parentID}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}

		rawID := strings.TrimSpace(row[0])
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 {
			return batch.Request{}, batch.NewInputError("row %d: invalid %s %q", i+1, t.ItemColumn, rawID)
		}

		it := batch.Item{ID: id, Fields: make(map[string]string, len(t.Fields))}
		for col, field := range t.Fields {
			if col+1 < len(row) {
				if v := strings.TrimSpace(row[col+1]); v != "" {
					it.Fields[field] = v
				}
			}
		}
		req.Items = append(req.Items, it)
	}
	return req, nil
}
