package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts YAML values like "90s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Users     []User          `yaml:"users"`
	Intake    IntakeConfig    `yaml:"intake"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Inference InferenceConfig `yaml:"inference"`
	Fault     FaultConfig     `yaml:"fault"`
	Briefing  BriefingConfig  `yaml:"briefing"`
	Storage   StorageConfig   `yaml:"storage"`
	Store     StoreConfig     `yaml:"store"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Firm     string `yaml:"firm"`
}

type IntakeConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
	MaxPhotos     int `yaml:"max_photos"`
}

type NormalizeConfig struct {
	MaxEdgePixels int `yaml:"max_edge_pixels"`
	MaxPDFPages   int `yaml:"max_pdf_pages"`
	RenderDPI     int `yaml:"render_dpi"`
	JPEGQuality   int `yaml:"jpeg_quality"`
}

type InferenceConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	Model          string   `yaml:"model"`
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxAttempts    int      `yaml:"max_attempts"`
	BackoffBase    Duration `yaml:"backoff_base"`
	MaxConcurrent  int      `yaml:"max_concurrent"`
}

type FaultConfig struct {
	// CheckboxPrecedence keeps form selections authoritative when they
	// disagree with narrative cues. Disagreements are always recorded.
	CheckboxPrecedence *bool `yaml:"checkbox_precedence"`
}

type BriefingConfig struct {
	EnablePDF bool `yaml:"enable_pdf"`
}

type StorageConfig struct {
	// Backend is "local" (per-session temp directory) or "minio".
	Backend string      `yaml:"backend"`
	TempDir string      `yaml:"temp_dir"`
	Minio   MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type StoreConfig struct {
	MaxSessions int `yaml:"max_sessions"`
}

type PipelineConfig struct {
	RunTimeout Duration `yaml:"run_timeout"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Secrets may come from the environment instead of the file
	if cfg.Inference.APIKey == "" {
		cfg.Inference.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Intake.MaxFileSizeMB == 0 {
		c.Intake.MaxFileSizeMB = 10
	}
	if c.Intake.MaxPhotos == 0 {
		c.Intake.MaxPhotos = 5
	}
	if c.Normalize.MaxEdgePixels == 0 {
		c.Normalize.MaxEdgePixels = 2000
	}
	if c.Normalize.MaxPDFPages == 0 {
		c.Normalize.MaxPDFPages = 2
	}
	if c.Normalize.RenderDPI == 0 {
		c.Normalize.RenderDPI = 150
	}
	if c.Normalize.JPEGQuality == 0 {
		c.Normalize.JPEGQuality = 85
	}
	if c.Inference.BaseURL == "" {
		c.Inference.BaseURL = "https://api.openai.com"
	}
	if c.Inference.Model == "" {
		c.Inference.Model = "gpt-5"
	}
	if c.Inference.RequestTimeout == 0 {
		c.Inference.RequestTimeout = Duration(90 * time.Second)
	}
	if c.Inference.MaxAttempts == 0 {
		c.Inference.MaxAttempts = 3
	}
	if c.Inference.BackoffBase == 0 {
		c.Inference.BackoffBase = Duration(2 * time.Second)
	}
	if c.Inference.MaxConcurrent == 0 {
		c.Inference.MaxConcurrent = 4
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Store.MaxSessions == 0 {
		c.Store.MaxSessions = 100
	}
	if c.Pipeline.RunTimeout == 0 {
		c.Pipeline.RunTimeout = Duration(120 * time.Second)
	}
}

// FindUser finds a configured user by username.
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
