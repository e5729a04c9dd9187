package db

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gradebook-server-go/batch"
)

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportBatchFromExcel_Attendance(t *testing.T) {
	buf := workbook(t, [][]any{
		{"enrollment_id", "status", "notes"},
		{101, "present", "front row"},
		{"", "", ""},
		{102, "absent"},
		{103},
	})

	req, err := ImportBatchFromExcel(buf, batch.Attendance, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), req.ParentID)
	require.Len(t, req.Items, 3)
	assert.Equal(t, map[string]string{"status": "present", "notes": "front row"}, req.Items[0].Fields)
	assert.Equal(t, map[string]string{"status": "absent"}, req.Items[1].Fields)
	assert.Empty(t, req.Items[2].Fields)
}

func TestImportBatchFromExcel_Scores(t *testing.T) {
	buf := workbook(t, [][]any{
		{"student_id", "score", "feedback"},
		{9, "88.5", "solid"},
	})

	req, err := ImportBatchFromExcel(buf, batch.Scores, 3)
	require.NoError(t, err)
	require.Len(t, req.Items, 1)
	assert.Equal(t, int64(9), req.Items[0].ID)
	assert.Equal(t, "88.5", req.Items[0].Fields["score"])
}

func TestImportBatchFromExcel_InvalidID(t *testing.T) {
	buf := workbook(t, [][]any{
		{"enrollment_id", "status"},
		{"abc", "present"},
	})

	_, err := ImportBatchFromExcel(buf, batch.Attendance, 7)
	var be *batch.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, batch.KindInput, be.Kind)
	assert.Contains(t, be.Reason, "row 2")
}

func TestImportBatchFromExcel_NotAWorkbook(t *testing.T) {
	_, err := ImportBatchFromExcel(strings.NewReader("plain text"), batch.Attendance, 7)
	assert.Equal(t, 400, batch.StatusOf(err))
}
