package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"riskboard/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig
	Prediction PredictionConfig
	Auth       AuthConfig
	Session    SessionConfig
	Export     ExportConfig
	Upload     UploadConfig
	Drag       DragConfig
	Log        LogConfig
}

// ServerConfig holds dashboard HTTP server settings
type ServerConfig struct {
	Port           string   `validate:"required,numeric"`
	AllowedOrigins []string `validate:"min=1"`
}

// PredictionConfig holds settings for the remote prediction service
type PredictionConfig struct {
	BaseURL         string        `validate:"required,url"`
	TemplateBaseURL string        `validate:"omitempty,url"`
	Timeout         time.Duration `validate:"gt=0"`
}

// AuthConfig selects the identity provider variant
type AuthConfig struct {
	Provider string `validate:"oneof=mock remote"`
	URL      string `validate:"required_if=Provider remote,omitempty,url"`
}

// SessionConfig selects where the current session identifier is persisted
type SessionConfig struct {
	Store string `validate:"oneof=file sqlite memory"`
	Path  string `validate:"required_unless=Store memory"`
}

// ExportConfig holds export pipeline settings
type ExportConfig struct {
	Dir         string `validate:"required"`
	SheetName   string `validate:"required,max=31"`
	StripRanges string
}

// UploadConfig holds upload orchestration settings
type UploadConfig struct {
	ProgressInterval time.Duration `validate:"gt=0"`
	MaxFileSize      int64         `validate:"gt=0"`
	RatePerMinute    int           `validate:"gt=0"`
}

// DragConfig holds drag tracker settings
type DragConfig struct {
	Debounce time.Duration `validate:"gt=0"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json text"`
}

// DefaultStripRanges lists the pictograph and emoji blocks removed from exported text.
const DefaultStripRanges = "1F600-1F64F,1F300-1F5FF,1F680-1F6FF,1F780-1F7FF,1F1E0-1F1FF,1F900-1F9FF,1FA70-1FAFF,2600-26FF,2700-27BF,FE0F,200D"

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	sessionStore := getEnvOrDefault("SESSION_STORE", "file")

	config := &Config{
		Server: ServerConfig{
			Port:           getEnvOrDefault("PORT", "8080"),
			AllowedOrigins: getEnvListOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Prediction: PredictionConfig{
			BaseURL:         strings.TrimRight(getEnvOrDefault("PREDICTION_API_URL", "http://localhost:5000"), "/"),
			TemplateBaseURL: strings.TrimRight(getEnvOrDefault("TEMPLATE_BASE_URL", ""), "/"),
			Timeout:         getEnvDurationOrDefault("PREDICTION_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			Provider: getEnvOrDefault("AUTH_PROVIDER", "mock"),
			URL:      strings.TrimRight(getEnvOrDefault("AUTH_URL", ""), "/"),
		},
		Session: SessionConfig{
			Store: sessionStore,
			Path:  getEnvOrDefault("SESSION_PATH", defaultSessionPath(sessionStore)),
		},
		Export: ExportConfig{
			Dir:         getEnvOrDefault("EXPORT_DIR", "./exports"),
			SheetName:   getEnvOrDefault("EXPORT_SHEET_NAME", "Predictions"),
			StripRanges: getEnvOrDefault("EXPORT_STRIP_RANGES", DefaultStripRanges),
		},
		Upload: UploadConfig{
			ProgressInterval: getEnvDurationOrDefault("UPLOAD_PROGRESS_INTERVAL", 200*time.Millisecond),
			MaxFileSize:      int64(getEnvIntOrDefault("UPLOAD_MAX_FILE_MB", 50)) * 1024 * 1024,
			RatePerMinute:    getEnvIntOrDefault("UPLOAD_RATE_PER_MIN", 30),
		},
		Drag: DragConfig{
			Debounce: getEnvDurationOrDefault("DRAG_DEBOUNCE", 250*time.Millisecond),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func defaultSessionPath(store string) string {
	switch store {
	case "sqlite":
		return "./data/session.db"
	case "memory":
		return ""
	default:
		return "./data/session.json"
	}
}

func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
