package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/avocatt/accident-analyzer/model"
	"github.com/avocatt/accident-analyzer/pkg/logger"
	"github.com/avocatt/accident-analyzer/service"
	"github.com/gin-gonic/gin"
)

// AnalyzeHandler accepts an accident report upload and runs the full
// analysis pipeline synchronously.
type AnalyzeHandler struct {
	intake   *service.IntakeValidator
	pipeline *service.Pipeline
	store    *service.SessionStore
}

func NewAnalyzeHandler(intake *service.IntakeValidator, pipeline *service.Pipeline, store *service.SessionStore) *AnalyzeHandler {
	return &AnalyzeHandler{
		intake:   intake,
		pipeline: pipeline,
		store:    store,
	}
}

// Analyze handles POST /api/analyze: multipart form with the required
// accident_report file, up to five photos and optional client metadata.
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid multipart form",
			"kind":  model.KindMissingPrimaryDocument,
		})
		return
	}

	var primary *model.FileUpload
	if files := form.File["accident_report"]; len(files) > 0 {
		primary, err = readUpload(files[0])
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read accident report", "kind": model.KindUnreadableDocument})
			return
		}
	}

	var photos []model.FileUpload
	for _, fh := range form.File["photos"] {
		if fh.Filename == "" {
			continue
		}
		photo, err := readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo", "kind": model.KindUnreadableDocument})
			return
		}
		photos = append(photos, *photo)
	}

	meta := service.Metadata{
		ClientName:  c.PostForm("client_name"),
		ClientEmail: c.PostForm("client_email"),
		Notes:       c.PostForm("additional_notes"),
	}

	sub, err := h.intake.Validate(primary, photos, meta)
	if err != nil {
		respondError(c, err)
		return
	}

	session := &model.Session{
		ID:         sub.SessionID,
		ClientName: sub.ClientName,
		Status:     model.StatusProcessing,
		CreatedAt:  time.Now(),
	}
	h.store.Save(session)

	outcome, err := h.pipeline.Run(c.Request.Context(), sub)
	if err != nil {
		logger.Error(c.Request.Context(), "analysis failed",
			"session_id", sub.SessionID,
			"kind", model.ErrorKind(err),
			"error", err,
		)
		h.store.UpdateStatus(sub.SessionID, model.StatusFailed, model.ErrorKind(err))
		respondError(c, err)
		return
	}

	h.store.Complete(sub.SessionID, outcome.Analysis, outcome.Briefing)

	resp := gin.H{
		"session_id":             sub.SessionID,
		"status":                 "success",
		"analysis":               outcome.Analysis,
		"briefing_html":          outcome.Briefing.HTML,
		"briefing_pdf_available": len(outcome.Briefing.PDF) > 0,
		"timestamp":              outcome.Analysis.AnalysisTimestamp.Format(time.RFC3339),
	}
	if outcome.CleanupWarning != "" {
		resp["warning"] = outcome.CleanupWarning
	}
	c.JSON(http.StatusOK, resp)
}

func readUpload(fh *multipart.FileHeader) (*model.FileUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return &model.FileUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// respondError maps pipeline error kinds to HTTP statuses. Clients get a
// stable kind plus a human-readable message; internal detail stays in the
// server log.
func respondError(c *gin.Context, err error) {
	kind := model.ErrorKind(err)

	status := http.StatusInternalServerError
	message := "Analysis failed"
	switch kind {
	case model.KindMissingPrimaryDocument,
		model.KindUnsupportedType,
		model.KindTooLarge,
		model.KindTooManyPhotos,
		model.KindEmptyMetadataField:
		status = http.StatusBadRequest
		message = err.Error()
	case model.KindUnreadableDocument:
		status = http.StatusUnprocessableEntity
		message = "The submitted document could not be read"
	case model.KindUnparseableExtraction:
		status = http.StatusUnprocessableEntity
		message = "The analysis service returned an unusable result"
	case model.KindInferenceExhausted, model.KindInferenceRejected:
		status = http.StatusBadGateway
		message = "The analysis service is currently unavailable"
	case model.KindPipelineTimeout:
		status = http.StatusGatewayTimeout
		message = "Analysis did not complete within the time budget"
	}

	c.JSON(status, gin.H{"error": message, "kind": kind})
}
