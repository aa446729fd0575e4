package model

import (
	"time"
)

// FileUpload is one uploaded file held in memory for the duration of a run.
type FileUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Submission is a validated intake: one primary accident report plus up to
// MaxPhotos supplementary photos and optional client metadata.
type Submission struct {
	SessionID string       `json:"session_id"`
	Primary   FileUpload   `json:"-"`
	Photos    []FileUpload `json:"-"`

	ClientName  string `json:"client_name,omitempty"`
	ClientEmail string `json:"client_email,omitempty"`
	Notes       string `json:"notes,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// NormalizedPage is a single dimension-bounded raster ready for inference,
// derived from one document page or one photo.
type NormalizedPage struct {
	SourceRef  string // "report" or "photo"
	SourceName string // original filename
	Index      int    // 1-based page or photo ordinal
	MimeType   string
	Data       []byte
	Width      int
	Height     int
}

// NormalizedDocument is the full normalized view of a submission: the primary
// document's pages (at most MaxPDFPages for PDFs), any text extracted from a
// PDF primary, and one page per photo in submission order.
type NormalizedDocument struct {
	ReportPages []NormalizedPage
	ReportText  string
	PhotoPages  []NormalizedPage
}

// Session represents one analysis run tracked by the briefing store.
type Session struct {
	ID         string        `json:"id"`
	ClientName string        `json:"client_name,omitempty"`
	Status     string        `json:"status"`
	ErrorMsg   string        `json:"error_msg,omitempty"`
	Analysis   *CaseAnalysis `json:"analysis,omitempty"`
	Briefing   *Briefing     `json:"-"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Session status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)
