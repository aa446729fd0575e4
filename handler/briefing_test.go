package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/model"
	"github.com/avocatt/accident-analyzer/service"
	"github.com/gin-gonic/gin"
)

func newBriefingRouter(t *testing.T) (*gin.Engine, *service.SessionStore, service.BlobStore) {
	t.Helper()

	store := service.NewSessionStore(&config.StoreConfig{MaxSessions: 10})
	blobs, err := service.NewLocalBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to build blob store: %v", err)
	}

	handler := NewBriefingHandler(store, blobs)

	router := gin.New()
	router.GET("/sessions/:session_id", handler.Get)
	router.GET("/sessions/:session_id/status", handler.GetStatus)
	router.GET("/briefing/:session_id", handler.GetHTML)
	router.GET("/briefing/:session_id/pdf", handler.GetPDF)
	router.DELETE("/sessions/:session_id", handler.Delete)
	return router, store, blobs
}

func seedCompletedSession(store *service.SessionStore, id string, pdf []byte) {
	store.Save(&model.Session{
		ID:        id,
		Status:    model.StatusProcessing,
		CreatedAt: time.Now(),
	})
	store.Complete(id,
		&model.CaseAnalysis{SessionID: id, CaseSummary: "done"},
		&model.Briefing{SessionID: id, HTML: "<html><body>Briefing " + id + "</body></html>", PDF: pdf},
	)
}

func TestBriefingGetHTML(t *testing.T) {
	router, store, _ := newBriefingRouter(t)
	seedCompletedSession(store, "sess-1", nil)

	req := httptest.NewRequest("GET", "/briefing/sess-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected text/html content type, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "Briefing sess-1") {
		t.Errorf("Unexpected body: %s", w.Body.String())
	}
}

func TestBriefingGetHTMLNotFound(t *testing.T) {
	router, store, _ := newBriefingRouter(t)

	// Unknown session
	req := httptest.NewRequest("GET", "/briefing/unknown", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	// Session exists but has no briefing yet
	store.Save(&model.Session{ID: "sess-pending", Status: model.StatusProcessing, CreatedAt: time.Now()})
	req = httptest.NewRequest("GET", "/briefing/sess-pending", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for briefing-less session, got %d", w.Code)
	}
}

func TestBriefingGetPDF(t *testing.T) {
	router, store, _ := newBriefingRouter(t)
	seedCompletedSession(store, "sess-pdf", []byte("%PDF-1.4 fake"))
	seedCompletedSession(store, "sess-nopdf", nil)

	req := httptest.NewRequest("GET", "/briefing/sess-pdf/pdf", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF") {
		t.Error("Expected PDF bytes in body")
	}

	// PDF rendering disabled for this session
	req = httptest.NewRequest("GET", "/briefing/sess-nopdf/pdf", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when PDF disabled, got %d", w.Code)
	}
}

func TestBriefingGetStatus(t *testing.T) {
	router, store, _ := newBriefingRouter(t)
	store.Save(&model.Session{ID: "sess-1", Status: model.StatusProcessing, CreatedAt: time.Now()})
	store.UpdateStatus("sess-1", model.StatusFailed, "inference_exhausted")

	req := httptest.NewRequest("GET", "/sessions/sess-1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["status"] != model.StatusFailed {
		t.Errorf("Expected status failed, got %s", resp["status"])
	}
	if resp["error_msg"] != "inference_exhausted" {
		t.Errorf("Expected error message, got %s", resp["error_msg"])
	}
}

func TestBriefingGetSession(t *testing.T) {
	router, store, _ := newBriefingRouter(t)
	seedCompletedSession(store, "sess-1", nil)

	req := httptest.NewRequest("GET", "/sessions/sess-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var session model.Session
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if session.Analysis == nil || session.Analysis.CaseSummary != "done" {
		t.Error("Expected analysis in session response")
	}
}

func TestBriefingDelete(t *testing.T) {
	router, store, blobs := newBriefingRouter(t)
	seedCompletedSession(store, "sess-del", nil)

	// Leave residual bytes behind, as a crashed run would
	sub := &model.Submission{
		SessionID: "sess-del",
		Primary:   model.FileUpload{Filename: "report.pdf", Data: []byte("%PDF")},
	}
	if err := blobs.SaveSession(context.Background(), sub); err != nil {
		t.Fatalf("Failed to seed blob storage: %v", err)
	}

	req := httptest.NewRequest("DELETE", "/sessions/sess-del", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if store.Get("sess-del") != nil {
		t.Error("Expected session removed from store")
	}

	exists, err := blobs.SessionExists(req.Context(), "sess-del")
	if err != nil {
		t.Fatalf("Failed to check storage: %v", err)
	}
	if exists {
		t.Error("Expected residual storage purged")
	}

	// Deleting again is a 404
	req = httptest.NewRequest("DELETE", "/sessions/sess-del", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on repeat delete, got %d", w.Code)
	}
}
