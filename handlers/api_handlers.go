package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gradebook-server-go/batch"
	"gradebook-server-go/db"
	"gradebook-server-go/models"
)

// Submitter runs one batch transaction.
type Submitter interface {
	Submit(ctx context.Context, t batch.Table, req batch.Request) (batch.Result, error)
}

// ReceiptStore keeps the acknowledgment of the last committed batch per parent.
type ReceiptStore interface {
	SaveReceipt(ctx context.Context, r models.Receipt) error
	GetReceipt(ctx context.Context, kind string, parentID int64) (*models.Receipt, error)
}

// RecordLister reads back the child records stored for a parent.
type RecordLister interface {
	List(ctx context.Context, t batch.Table, parentID int64) ([]models.ChildRecord, error)
}

// APIHandler holds the dependencies for the submission routes.
type APIHandler struct {
	Batches        Submitter
	Receipts       ReceiptStore
	Records        RecordLister
	Log            logrus.FieldLogger
	ImportMaxBytes int64
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(batches Submitter, receipts ReceiptStore, records RecordLister, log logrus.FieldLogger, importMaxBytes int64) *APIHandler {
	return &APIHandler{
		Batches:        batches,
		Receipts:       receipts,
		Records:        records,
		Log:            log,
		ImportMaxBytes: importMaxBytes,
	}
}

// RegisterRoutes wires every route of the service onto router.
func RegisterRoutes(router gin.IRouter, h *APIHandler) {
	router.POST("/attendance/submit", h.SubmitAttendance)
	router.POST("/assignments/submit-scores", h.SubmitScores)

	api := router.Group("/api")
	{
		api.POST("/import/attendance", h.ImportAttendance)
		api.POST("/import/scores", h.ImportScores)

		api.GET("/attendance/:sessionId/records", h.ListAttendance)
		api.GET("/assignments/:assignmentId/submissions", h.ListSubmissions)

		api.GET("/receipts/:kind/:parentId", h.GetReceipt)

		api.GET("/ping", PingHandler)
	}
}

// --- Submission Handlers ---

// SubmitAttendance handles POST /attendance/submit
func (h *APIHandler) SubmitAttendance(c *gin.Context) {
	h.submitForm(c, batch.Attendance, "/attendance/mark?sessionId=%d")
}

// SubmitScores handles POST /assignments/submit-scores
func (h *APIHandler) SubmitScores(c *gin.Context) {
	h.submitForm(c, batch.Scores, "/assignments/submit-score?assignmentId=%d")
}

func (h *APIHandler) submitForm(c *gin.Context, t batch.Table, redirect string) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form data: " + err.Error()})
		return
	}
	req, err := batch.ParseForm(t, c.Request.PostForm)
	if err != nil {
		h.fail(c, t, err)
		return
	}

	res, err := h.Batches.Submit(c.Request.Context(), t, req)
	if err != nil {
		h.fail(c, t, err)
		return
	}
	h.saveReceipt(c, res)
	c.Redirect(http.StatusFound, fmt.Sprintf(redirect, res.ParentID))
}

// --- Import Handlers ---

// ImportAttendance handles POST /api/import/attendance
func (h *APIHandler) ImportAttendance(c *gin.Context) {
	h.importBatch(c, batch.Attendance)
}

// ImportScores handles POST /api/import/scores
func (h *APIHandler) ImportScores(c *gin.Context) {
	h.importBatch(c, batch.Scores)
}

func (h *APIHandler) importBatch(c *gin.Context, t batch.Table) {
	if h.ImportMaxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.ImportMaxBytes)
	}

	parentID, err := strconv.ParseInt(c.PostForm(t.ParentForm), 10, 64)
	if err != nil || parentID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Missing or invalid '%s' in form data", t.ParentForm)})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error retrieving uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	log := h.requestLog(c).WithFields(logrus.Fields{"kind": t.Kind, "parent_id": parentID, "file": header.Filename})
	log.Info("Received batch import")

	req, err := db.ImportBatchFromExcel(file, t, parentID)
	if err != nil {
		h.fail(c, t, err)
		return
	}
	res, err := h.Batches.Submit(c.Request.Context(), t, req)
	if err != nil {
		h.fail(c, t, err)
		return
	}
	h.saveReceipt(c, res)

	c.JSON(http.StatusOK, gin.H{
		"message":  "Import successful",
		"parentId": res.ParentID,
		"items":    res.Items,
		"inserted": res.Inserted,
		"updated":  res.Updated,
	})
}

// --- Read Handlers ---

// ListAttendance handles GET /api/attendance/:sessionId/records
func (h *APIHandler) ListAttendance(c *gin.Context) {
	h.listRecords(c, batch.Attendance, "sessionId")
}

// ListSubmissions handles GET /api/assignments/:assignmentId/submissions
func (h *APIHandler) ListSubmissions(c *gin.Context) {
	h.listRecords(c, batch.Scores, "assignmentId")
}

func (h *APIHandler) listRecords(c *gin.Context, t batch.Table, param string) {
	parentID, ok := parseParentParam(c, param)
	if !ok {
		return
	}
	records, err := h.Records.List(c.Request.Context(), t, parentID)
	if err != nil {
		h.requestLog(c).WithError(err).Errorf("Error listing %s", t.Name)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve records"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetReceipt handles GET /api/receipts/:kind/:parentId
func (h *APIHandler) GetReceipt(c *gin.Context) {
	t, ok := batch.TableByKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown submission kind"})
		return
	}
	parentID, ok := parseParentParam(c, "parentId")
	if !ok {
		return
	}

	receipt, err := h.Receipts.GetReceipt(c.Request.Context(), t.Kind, parentID)
	if err != nil {
		h.requestLog(c).WithError(err).Error("Error reading receipt")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve receipt"})
		return
	}
	if receipt == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No submission recorded"})
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// --- Ping Handler ---
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}

// --- Helpers ---

func parseParentParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid %s", name)})
		return 0, false
	}
	return id, true
}

func (h *APIHandler) fail(c *gin.Context, t batch.Table, err error) {
	status := batch.StatusOf(err)
	log := h.requestLog(c).WithField("kind", t.Kind).WithError(err)
	if status >= http.StatusInternalServerError {
		log.Error("Batch submission failed")
	} else {
		log.Info("Batch submission rejected")
	}
	c.JSON(status, gin.H{"error": batch.ReasonOf(err)})
}

// saveReceipt records the acknowledgment. The batch is already committed, so
// a failure here is only logged.
func (h *APIHandler) saveReceipt(c *gin.Context, res batch.Result) {
	receipt := models.Receipt{
		Kind:        res.Kind,
		ParentID:    res.ParentID,
		Items:       res.Items,
		Inserted:    res.Inserted,
		Updated:     res.Updated,
		RequestID:   c.GetString(requestIDKey),
		SubmittedAt: time.Now(),
	}
	if err := h.Receipts.SaveReceipt(c.Request.Context(), receipt); err != nil {
		h.requestLog(c).WithError(err).Warn("Error saving submission receipt")
	}
}

func (h *APIHandler) requestLog(c *gin.Context) logrus.FieldLogger {
	return h.Log.WithField("request_id", c.GetString(requestIDKey))
}
