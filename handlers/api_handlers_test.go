package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gradebook-server-go/batch"
	"gradebook-server-go/models"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []batch.Request
	table batch.Table
	res   batch.Result
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, t batch.Table, req batch.Request) (batch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	f.table = t
	if f.err != nil {
		return batch.Result{}, f.err
	}
	res := f.res
	res.Kind = t.Kind
	res.ParentID = req.ParentID
	res.Items = len(req.Items)
	return res, nil
}

type fakeReceipts struct {
	saved   []models.Receipt
	saveErr error
	stored  *models.Receipt
}

func (f *fakeReceipts) SaveReceipt(_ context.Context, r models.Receipt) error {
	f.saved = append(f.saved, r)
	return f.saveErr
}

func (f *fakeReceipts) GetReceipt(_ context.Context, kind string, parentID int64) (*models.Receipt, error) {
	if f.stored != nil && f.stored.Kind == kind && f.stored.ParentID == parentID {
		return f.stored, nil
	}
	return nil, nil
}

type fakeRecords struct {
	records []models.ChildRecord
	err     error
}

func (f *fakeRecords) List(_ context.Context, _ batch.Table, _ int64) ([]models.ChildRecord, error) {
	return f.records, f.err
}

func newTestRouter(s *fakeSubmitter, r *fakeReceipts, l *fakeRecords) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	router := gin.New()
	router.Use(RequestLogger(log))
	RegisterRoutes(router, NewAPIHandler(s, r, l, log, 1<<20))
	return router
}

func postForm(router http.Handler, path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestSubmitAttendance_RedirectsAndSavesReceipt(t *testing.T) {
	sub := &fakeSubmitter{res: batch.Result{Inserted: 1, Updated: 1}}
	receipts := &fakeReceipts{}
	router := newTestRouter(sub, receipts, &fakeRecords{})

	w := postForm(router, "/attendance/submit", url.Values{
		"sessionId":     {"7"},
		"enrollmentIds": {"101", "102"},
		"status_101":    {"present"},
		"status_102":    {"absent"},
	})

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/attendance/mark?sessionId=7", w.Header().Get("Location"))
	require.Len(t, sub.calls, 1)
	assert.Equal(t, "attendance", sub.table.Kind)
	assert.Len(t, sub.calls[0].Items, 2)

	require.Len(t, receipts.saved, 1)
	assert.Equal(t, int64(7), receipts.saved[0].ParentID)
	assert.Equal(t, 1, receipts.saved[0].Inserted)
	assert.NotEmpty(t, receipts.saved[0].RequestID)
}

func TestSubmitScores_Redirect(t *testing.T) {
	router := newTestRouter(&fakeSubmitter{}, &fakeReceipts{}, &fakeRecords{})

	w := postForm(router, "/assignments/submit-scores", url.Values{
		"assignmentId": {"3"},
		"studentIds":   {"9"},
		"score_9":      {"75"},
	})

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/assignments/submit-score?assignmentId=3", w.Header().Get("Location"))
}

func TestSubmitAttendance_MalformedFormNeverReachesEngine(t *testing.T) {
	sub := &fakeSubmitter{}
	router := newTestRouter(sub, &fakeReceipts{}, &fakeRecords{})

	w := postForm(router, "/attendance/submit", url.Values{"enrollmentIds": {"1"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing sessionId", errorBody(t, w))
	assert.Empty(t, sub.calls)
}

func TestSubmit_ErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&batch.Error{Kind: batch.KindInput, Reason: "status missing for enrollment_id 103"}, http.StatusBadRequest},
		{&batch.Error{Kind: batch.KindConflict, Reason: "item 9 references a missing row"}, http.StatusConflict},
		{&batch.Error{Kind: batch.KindCommit, Reason: "error finalizing submission"}, http.StatusInternalServerError},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		receipts := &fakeReceipts{}
		router := newTestRouter(&fakeSubmitter{err: tt.err}, receipts, &fakeRecords{})

		w := postForm(router, "/attendance/submit", url.Values{
			"sessionId":     {"7"},
			"enrollmentIds": {"103"},
		})

		assert.Equal(t, tt.status, w.Code)
		assert.Equal(t, batch.ReasonOf(tt.err), errorBody(t, w))
		assert.Empty(t, receipts.saved)
	}
}

func TestSubmit_ReceiptFailureDoesNotFailRequest(t *testing.T) {
	router := newTestRouter(&fakeSubmitter{}, &fakeReceipts{saveErr: errors.New("redis down")}, &fakeRecords{})

	w := postForm(router, "/attendance/submit", url.Values{
		"sessionId":     {"7"},
		"enrollmentIds": {"1"},
		"status_1":      {"late"},
	})
	assert.Equal(t, http.StatusFound, w.Code)
}

func uploadWorkbook(t *testing.T, router http.Handler, path, parentField, parentID string, rows [][]any) *httptest.ResponseRecorder {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	xlsx, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField(parentField, parentID))
	part, err := mw.CreateFormFile("file", "scores.xlsx")
	require.NoError(t, err)
	_, err = io.Copy(part, xlsx)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestImportScores(t *testing.T) {
	sub := &fakeSubmitter{res: batch.Result{Inserted: 2}}
	router := newTestRouter(sub, &fakeReceipts{}, &fakeRecords{})

	w := uploadWorkbook(t, router, "/api/import/scores", "assignmentId", "3", [][]any{
		{"student_id", "score", "feedback"},
		{9, "91", "great"},
		{10, "55"},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Import successful", body["message"])
	assert.Equal(t, float64(2), body["inserted"])

	require.Len(t, sub.calls, 1)
	assert.Equal(t, int64(3), sub.calls[0].ParentID)
	assert.Equal(t, "great", sub.calls[0].Items[0].Fields["feedback"])
}

func TestImportAttendance_MissingParent(t *testing.T) {
	sub := &fakeSubmitter{}
	router := newTestRouter(sub, &fakeReceipts{}, &fakeRecords{})

	w := uploadWorkbook(t, router, "/api/import/attendance", "sessionId", "", [][]any{{"enrollment_id", "status"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, sub.calls)
}

func TestListAttendance(t *testing.T) {
	status := "present"
	records := &fakeRecords{records: []models.ChildRecord{
		{ID: 1, ItemID: 101, ParentID: 7, Values: map[string]*string{"status": &status, "notes": nil}},
	}}
	router := newTestRouter(&fakeSubmitter{}, &fakeReceipts{}, records)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/attendance/7/records", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got []models.ChildRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "present", *got[0].Values["status"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/attendance/abc/records", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetReceipt(t *testing.T) {
	stored := &models.Receipt{Kind: "scores", ParentID: 3, Items: 2, Inserted: 2, SubmittedAt: time.Now().UTC()}
	router := newTestRouter(&fakeSubmitter{}, &fakeReceipts{stored: stored}, &fakeRecords{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/receipts/scores/3", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/receipts/scores/4", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/receipts/grades/3", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestLogger_PropagatesRequestID(t *testing.T) {
	router := newTestRouter(&fakeSubmitter{}, &fakeReceipts{}, &fakeRecords{})

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}
