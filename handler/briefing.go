package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/avocatt/accident-analyzer/pkg/logger"
	"github.com/avocatt/accident-analyzer/service"
	"github.com/gin-gonic/gin"
)

// BriefingHandler serves rendered briefings by session ID and lets callers
// drop a session early.
type BriefingHandler struct {
	store *service.SessionStore
	blobs service.BlobStore
}

func NewBriefingHandler(store *service.SessionStore, blobs service.BlobStore) *BriefingHandler {
	return &BriefingHandler{store: store, blobs: blobs}
}

// Get returns the session record including the analysis.
func (h *BriefingHandler) Get(c *gin.Context) {
	session := h.store.Get(c.Param("session_id"))
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// GetHTML serves the briefing as a standalone HTML document.
func (h *BriefingHandler) GetHTML(c *gin.Context) {
	session := h.store.Get(c.Param("session_id"))
	if session == nil || session.Briefing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Briefing not found"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(session.Briefing.HTML))
}

// GetPDF serves the PDF rendering when it was produced.
func (h *BriefingHandler) GetPDF(c *gin.Context) {
	session := h.store.Get(c.Param("session_id"))
	if session == nil || session.Briefing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Briefing not found"})
		return
	}
	if len(session.Briefing.PDF) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "PDF rendering is not enabled"})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=briefing-"+session.ID+".pdf")
	c.Data(http.StatusOK, "application/pdf", session.Briefing.PDF)
}

// GetStatus returns the processing status of a session.
func (h *BriefingHandler) GetStatus(c *gin.Context) {
	session := h.store.Get(c.Param("session_id"))
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"status":     session.Status,
		"error_msg":  session.ErrorMsg,
	})
}

// Delete drops the stored session and purges any residual uploaded bytes.
func (h *BriefingHandler) Delete(c *gin.Context) {
	sessionID := c.Param("session_id")
	session := h.store.Get(sessionID)
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	h.store.Delete(sessionID)

	// The pipeline purges on every exit path; purging again is a no-op
	// unless the run crashed before cleanup.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := h.blobs.PurgeSession(ctx, sessionID); err != nil {
		logger.Warn(c.Request.Context(), "failed to purge session storage",
			"session_id", sessionID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session deleted", "session_id": sessionID})
}
