package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	configContent := `
server:
  port: 9090
log:
  level: "debug"
  format: "json"
auth:
  jwt_secret: "test-secret"
  token_expire_hours: 48
users:
  - username: "testuser"
    password: "testpass"
    firm: "testfirm"
intake:
  max_file_size_mb: 8
  max_photos: 3
normalize:
  max_edge_pixels: 1600
  max_pdf_pages: 2
inference:
  base_url: "https://provider.test"
  api_key: "test-key"
  model: "test-model"
  request_timeout: "45s"
  max_attempts: 2
  backoff_base: "500ms"
fault:
  checkbox_precedence: false
briefing:
  enable_pdf: true
storage:
  backend: "local"
store:
  max_sessions: 50
pipeline:
  run_timeout: "60s"
`
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	// Test loading config
	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify values
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Auth.TokenExpireHours != 48 {
		t.Errorf("Expected token_expire_hours 48, got %d", cfg.Auth.TokenExpireHours)
	}
	if cfg.Intake.MaxFileSizeMB != 8 {
		t.Errorf("Expected max_file_size_mb 8, got %d", cfg.Intake.MaxFileSizeMB)
	}
	if cfg.Intake.MaxPhotos != 3 {
		t.Errorf("Expected max_photos 3, got %d", cfg.Intake.MaxPhotos)
	}
	if cfg.Normalize.MaxEdgePixels != 1600 {
		t.Errorf("Expected max_edge_pixels 1600, got %d", cfg.Normalize.MaxEdgePixels)
	}
	if cfg.Inference.RequestTimeout != Duration(45*time.Second) {
		t.Errorf("Expected request_timeout 45s, got %v", time.Duration(cfg.Inference.RequestTimeout))
	}
	if cfg.Inference.BackoffBase != Duration(500*time.Millisecond) {
		t.Errorf("Expected backoff_base 500ms, got %v", time.Duration(cfg.Inference.BackoffBase))
	}
	if cfg.Inference.MaxAttempts != 2 {
		t.Errorf("Expected max_attempts 2, got %d", cfg.Inference.MaxAttempts)
	}
	if cfg.Fault.CheckboxPrecedence == nil || *cfg.Fault.CheckboxPrecedence {
		t.Errorf("Expected checkbox_precedence false, got %v", cfg.Fault.CheckboxPrecedence)
	}
	if !cfg.Briefing.EnablePDF {
		t.Error("Expected enable_pdf true")
	}
	if cfg.Store.MaxSessions != 50 {
		t.Errorf("Expected max_sessions 50, got %d", cfg.Store.MaxSessions)
	}
	if cfg.Pipeline.RunTimeout != Duration(60*time.Second) {
		t.Errorf("Expected run_timeout 60s, got %v", time.Duration(cfg.Pipeline.RunTimeout))
	}
	if len(cfg.Users) != 1 {
		t.Fatalf("Expected 1 user, got %d", len(cfg.Users))
	}
	if cfg.Users[0].Firm != "testfirm" {
		t.Errorf("Expected firm testfirm, got %s", cfg.Users[0].Firm)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error loading non-existent file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Intake.MaxFileSizeMB != 10 {
		t.Errorf("Expected default max_file_size_mb 10, got %d", cfg.Intake.MaxFileSizeMB)
	}
	if cfg.Intake.MaxPhotos != 5 {
		t.Errorf("Expected default max_photos 5, got %d", cfg.Intake.MaxPhotos)
	}
	if cfg.Normalize.MaxEdgePixels != 2000 {
		t.Errorf("Expected default max_edge_pixels 2000, got %d", cfg.Normalize.MaxEdgePixels)
	}
	if cfg.Normalize.MaxPDFPages != 2 {
		t.Errorf("Expected default max_pdf_pages 2, got %d", cfg.Normalize.MaxPDFPages)
	}
	if cfg.Normalize.JPEGQuality != 85 {
		t.Errorf("Expected default jpeg_quality 85, got %d", cfg.Normalize.JPEGQuality)
	}
	if cfg.Inference.MaxAttempts != 3 {
		t.Errorf("Expected default max_attempts 3, got %d", cfg.Inference.MaxAttempts)
	}
	if cfg.Inference.RequestTimeout != Duration(90*time.Second) {
		t.Errorf("Expected default request_timeout 90s, got %v", time.Duration(cfg.Inference.RequestTimeout))
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("Expected default storage backend local, got %s", cfg.Storage.Backend)
	}
	if cfg.Pipeline.RunTimeout != Duration(120*time.Second) {
		t.Errorf("Expected default run_timeout 120s, got %v", time.Duration(cfg.Pipeline.RunTimeout))
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	configContent := `
server:
  port: 8080
`
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	t.Setenv("OPENAI_API_KEY", "env-key")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Inference.APIKey != "env-key" {
		t.Errorf("Expected api key from environment, got %q", cfg.Inference.APIKey)
	}
}

func TestFindUser(t *testing.T) {
	cfg := &Config{
		Users: []User{
			{Username: "alice", Password: "pw", Firm: "firm-a"},
			{Username: "bob", Password: "pw", Firm: "firm-b"},
		},
	}

	user := cfg.FindUser("bob")
	if user == nil {
		t.Fatal("Expected to find user bob")
	}
	if user.Firm != "firm-b" {
		t.Errorf("Expected firm-b, got %s", user.Firm)
	}

	if cfg.FindUser("carol") != nil {
		t.Error("Expected nil for unknown user")
	}
}
