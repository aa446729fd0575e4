package service

import (
	"bytes"
	"testing"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/model"
)

func newTestIntake() *IntakeValidator {
	return NewIntakeValidator(&config.IntakeConfig{MaxFileSizeMB: 1, MaxPhotos: 2})
}

func pdfUpload(name string) *model.FileUpload {
	return &model.FileUpload{
		Filename:    name,
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4 test"),
	}
}

func jpegUpload(name string) model.FileUpload {
	// Minimal JPEG magic so content sniffing recognizes the type
	return model.FileUpload{
		Filename:    name,
		ContentType: "",
		Data:        append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0}, 16)...),
	}
}

func TestValidateAcceptsMinimalSubmission(t *testing.T) {
	v := newTestIntake()

	sub, err := v.Validate(pdfUpload("report.pdf"), nil, Metadata{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if sub.SessionID == "" {
		t.Error("Expected a session ID to be assigned")
	}
	if sub.Primary.Filename != "report.pdf" {
		t.Errorf("Expected primary filename report.pdf, got %s", sub.Primary.Filename)
	}
	if len(sub.Photos) != 0 {
		t.Errorf("Expected no photos, got %d", len(sub.Photos))
	}
}

func TestValidateAssignsUniqueSessionIDs(t *testing.T) {
	v := newTestIntake()

	first, err := v.Validate(pdfUpload("a.pdf"), nil, Metadata{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := v.Validate(pdfUpload("b.pdf"), nil, Metadata{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Error("Expected distinct session IDs per submission")
	}
}

func TestValidateMissingPrimary(t *testing.T) {
	v := newTestIntake()

	tests := []struct {
		name    string
		primary *model.FileUpload
	}{
		{"nil upload", nil},
		{"empty bytes", &model.FileUpload{Filename: "report.pdf", Data: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.primary, nil, Metadata{})
			if model.ErrorKind(err) != model.KindMissingPrimaryDocument {
				t.Errorf("Expected kind %s, got %s (err=%v)", model.KindMissingPrimaryDocument, model.ErrorKind(err), err)
			}
		})
	}
}

func TestValidateUnsupportedType(t *testing.T) {
	v := newTestIntake()

	primary := &model.FileUpload{Filename: "report.docx", ContentType: "application/msword", Data: []byte("x")}
	_, err := v.Validate(primary, nil, Metadata{})
	if model.ErrorKind(err) != model.KindUnsupportedType {
		t.Errorf("Expected kind %s, got %s", model.KindUnsupportedType, model.ErrorKind(err))
	}
}

func TestValidateMismatchedContentType(t *testing.T) {
	v := newTestIntake()

	// Declared PNG but named .pdf
	primary := &model.FileUpload{Filename: "report.pdf", ContentType: "image/png", Data: []byte("not a pdf")}
	_, err := v.Validate(primary, nil, Metadata{})
	if model.ErrorKind(err) != model.KindUnsupportedType {
		t.Errorf("Expected kind %s, got %s", model.KindUnsupportedType, model.ErrorKind(err))
	}
}

func TestValidateSniffsOctetStream(t *testing.T) {
	v := newTestIntake()

	photo := jpegUpload("scene.jpg")
	photo.ContentType = "application/octet-stream"
	sub, err := v.Validate(pdfUpload("report.pdf"), []model.FileUpload{photo}, Metadata{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if sub.Photos[0].ContentType != "image/jpeg" {
		t.Errorf("Expected sniffed type image/jpeg, got %s", sub.Photos[0].ContentType)
	}
}

func TestValidateTooLarge(t *testing.T) {
	v := newTestIntake()

	primary := &model.FileUpload{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Data:        bytes.Repeat([]byte("a"), 2<<20),
	}
	_, err := v.Validate(primary, nil, Metadata{})
	if model.ErrorKind(err) != model.KindTooLarge {
		t.Errorf("Expected kind %s, got %s", model.KindTooLarge, model.ErrorKind(err))
	}
}

func TestValidateTooManyPhotos(t *testing.T) {
	v := newTestIntake()

	photos := []model.FileUpload{jpegUpload("1.jpg"), jpegUpload("2.jpg"), jpegUpload("3.jpg")}
	_, err := v.Validate(pdfUpload("report.pdf"), photos, Metadata{})
	if model.ErrorKind(err) != model.KindTooManyPhotos {
		t.Errorf("Expected kind %s, got %s", model.KindTooManyPhotos, model.ErrorKind(err))
	}
}

func TestValidateMetadata(t *testing.T) {
	v := newTestIntake()

	// Whitespace-only fields are rejected
	_, err := v.Validate(pdfUpload("report.pdf"), nil, Metadata{ClientName: "   "})
	if model.ErrorKind(err) != model.KindEmptyMetadataField {
		t.Errorf("Expected kind %s, got %s", model.KindEmptyMetadataField, model.ErrorKind(err))
	}

	// Provided fields are trimmed
	sub, err := v.Validate(pdfUpload("report.pdf"), nil, Metadata{
		ClientName: "  Jane Doe  ",
		Notes:      "rear-ended at a light",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if sub.ClientName != "Jane Doe" {
		t.Errorf("Expected trimmed client name, got %q", sub.ClientName)
	}
	if sub.Notes != "rear-ended at a light" {
		t.Errorf("Unexpected notes: %q", sub.Notes)
	}
}
