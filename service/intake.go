package service

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/model"
	"github.com/google/uuid"
)

// allowedExtensions is the intake allow-list for both the primary accident
// report and supplementary photos.
var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
}

// IntakeValidator enforces submission constraints before any filesystem or
// network work happens.
type IntakeValidator struct {
	maxFileSize int64 // bytes
	maxPhotos   int
}

func NewIntakeValidator(cfg *config.IntakeConfig) *IntakeValidator {
	return &IntakeValidator{
		maxFileSize: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		maxPhotos:   cfg.MaxPhotos,
	}
}

// Metadata carries the optional free-text fields accompanying an upload.
type Metadata struct {
	ClientName  string
	ClientEmail string
	Notes       string
}

// Validate checks the raw upload against intake rules and constructs a
// Submission with a fresh session ID. It fails fast with an IntakeError;
// no bytes are persisted here.
func (v *IntakeValidator) Validate(primary *model.FileUpload, photos []model.FileUpload, meta Metadata) (*model.Submission, error) {
	if primary == nil || len(primary.Data) == 0 {
		return nil, &model.IntakeError{
			Kind:    model.KindMissingPrimaryDocument,
			Message: "an accident report document is required",
		}
	}

	if err := v.checkFile(primary, "accident report"); err != nil {
		return nil, err
	}

	if len(photos) > v.maxPhotos {
		return nil, &model.IntakeError{
			Kind:    model.KindTooManyPhotos,
			Message: fmt.Sprintf("at most %d photos are accepted, got %d", v.maxPhotos, len(photos)),
		}
	}
	for i := range photos {
		if err := v.checkFile(&photos[i], fmt.Sprintf("photo %d", i+1)); err != nil {
			return nil, err
		}
	}

	sub := &model.Submission{
		SessionID:  uuid.New().String(),
		Primary:    *primary,
		Photos:     photos,
		ReceivedAt: time.Now(),
	}

	var err error
	if sub.ClientName, err = trimOptional("client_name", meta.ClientName); err != nil {
		return nil, err
	}
	if sub.ClientEmail, err = trimOptional("client_email", meta.ClientEmail); err != nil {
		return nil, err
	}
	if sub.Notes, err = trimOptional("additional_notes", meta.Notes); err != nil {
		return nil, err
	}

	return sub, nil
}

func (v *IntakeValidator) checkFile(f *model.FileUpload, label string) error {
	ext := strings.ToLower(filepath.Ext(f.Filename))
	expected, ok := allowedExtensions[ext]
	if !ok {
		return &model.IntakeError{
			Kind:    model.KindUnsupportedType,
			Message: fmt.Sprintf("%s: unsupported file type %q (allowed: pdf, png, jpg, jpeg, gif, bmp)", label, ext),
		}
	}

	if int64(len(f.Data)) > v.maxFileSize {
		return &model.IntakeError{
			Kind:    model.KindTooLarge,
			Message: fmt.Sprintf("%s exceeds the %dMB size limit", label, v.maxFileSize/(1024*1024)),
		}
	}

	// Browsers often send octet-stream; fall back to sniffing the bytes.
	if f.ContentType == "" || f.ContentType == "application/octet-stream" {
		detected := http.DetectContentType(f.Data)
		if detected == "application/octet-stream" || strings.HasPrefix(detected, "text/") {
			// Sniffing was inconclusive; trust the extension.
			detected = expected
		}
		f.ContentType = detected
	}

	if !contentTypeMatches(ext, f.ContentType) {
		return &model.IntakeError{
			Kind:    model.KindUnsupportedType,
			Message: fmt.Sprintf("%s: declared type %q does not match extension %q", label, f.ContentType, ext),
		}
	}

	return nil
}

func contentTypeMatches(ext, contentType string) bool {
	ct := strings.ToLower(contentType)
	switch ext {
	case ".pdf":
		return strings.Contains(ct, "pdf")
	case ".jpg", ".jpeg":
		return strings.Contains(ct, "jpeg") || strings.Contains(ct, "jpg")
	default:
		return strings.Contains(ct, strings.TrimPrefix(ext, "."))
	}
}

// trimOptional returns the trimmed value, rejecting fields that were sent but
// contain only whitespace.
func trimOptional(field, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", &model.IntakeError{
			Kind:    model.KindEmptyMetadataField,
			Message: fmt.Sprintf("%s must not be blank when provided", field),
		}
	}
	return trimmed, nil
}
