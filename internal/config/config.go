package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// Server:
// - LISTEN_ADDR: HTTP listen address (default: :8080)
// - LOG_LEVEL: debug|info|warn|error (default: info)
// - LOG_FILE: write logs to this file instead of stdout (optional)
//
// Storage:
// - DATA_DIR: root data directory (default: ./data)
// - UPLOAD_DIR: original media uploads (default: {DATA_DIR}/uploads)
// - TEMP_DIR: transient normalized audio (default: {DATA_DIR}/temp)
// - DB_PATH: sqlite database file (default: {DATA_DIR}/scribed.db)
//
// Transcription:
// - WHISPER_BIN: whisper.cpp binary (default: whisper.cpp)
// - WHISPER_MODEL: model file or directory (default: {DATA_DIR}/models)
// - REMOTE_API_URL: hosted transcription API base URL (default: https://api.openai.com/v1)
// - REMOTE_API_KEY: hosted transcription API key (optional; remote jobs fail without it)
// - REMOTE_RATE_PER_MINUTE: hosted API price per audio minute in USD (default: 0.006)
// - DEFAULT_METHOD: local|remote (default: local)
// - DEFAULT_LANGUAGE: ISO code or auto (default: auto)
// - ADD_TIMESTAMPS: default timestamps flag for submissions (default: true)
// - MAX_UPLOAD_BYTES: upload size cap (default: 524288000, i.e. 500MB)
//
// Maintenance:
// - SWEEP_CRON: cron expression for the temp artifact sweep (default: 0 3 * * *)
// - SWEEP_TTL_HOURS: age at which temp artifacts are reclaimed (default: 24)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	Transcribe TranscribeConfig `json:"transcribe"`
	Sweep      SweepConfig      `json:"sweep"`
}

type ServerConfig struct {
	ListenAddr string `json:"listen_addr"`
	LogLevel   string `json:"log_level"`
	LogFile    string `json:"log_file"`
}

type StorageConfig struct {
	DataDir   string `json:"data_dir"`
	UploadDir string `json:"upload_dir"`
	TempDir   string `json:"temp_dir"`
	DBPath    string `json:"db_path"`
}

// TranscribeConfig holds backend selection defaults and backend settings.
type TranscribeConfig struct {
	WhisperBin       string  `json:"whisper_bin"`
	WhisperModel     string  `json:"whisper_model"`
	RemoteAPIURL     string  `json:"remote_api_url"`
	RemoteAPIKey     string  `json:"remote_api_key"`
	RatePerMinute    float64 `json:"rate_per_minute"`
	DefaultMethod    string  `json:"default_method"`
	DefaultLanguage  string  `json:"default_language"`
	AddTimestamps    bool    `json:"add_timestamps"`
	MaxUploadBytes   int64   `json:"max_upload_bytes"`
}

type SweepConfig struct {
	CronExpr string `json:"cron_expr"`
	TTLHours int    `json:"ttl_hours"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	dataDir := getEnvString("DATA_DIR", "./data")

	config := &Config{
		Server: ServerConfig{
			ListenAddr: getEnvString("LISTEN_ADDR", ":8080"),
			LogLevel:   getEnvString("LOG_LEVEL", "info"),
			LogFile:    getEnvString("LOG_FILE", ""),
		},
		Storage: StorageConfig{
			DataDir:   dataDir,
			UploadDir: getEnvString("UPLOAD_DIR", filepath.Join(dataDir, "uploads")),
			TempDir:   getEnvString("TEMP_DIR", filepath.Join(dataDir, "temp")),
			DBPath:    getEnvString("DB_PATH", filepath.Join(dataDir, "scribed.db")),
		},
		Transcribe: TranscribeConfig{
			WhisperBin:      getEnvString("WHISPER_BIN", "whisper.cpp"),
			WhisperModel:    getEnvString("WHISPER_MODEL", filepath.Join(dataDir, "models")),
			RemoteAPIURL:    getEnvString("REMOTE_API_URL", "https://api.openai.com/v1"),
			RemoteAPIKey:    getEnvString("REMOTE_API_KEY", ""),
			RatePerMinute:   getEnvFloat("REMOTE_RATE_PER_MINUTE", 0.006),
			DefaultMethod:   getEnvString("DEFAULT_METHOD", "local"),
			DefaultLanguage: getEnvString("DEFAULT_LANGUAGE", "auto"),
			AddTimestamps:   getEnvBool("ADD_TIMESTAMPS", true),
			MaxUploadBytes:  getEnvInt64("MAX_UPLOAD_BYTES", 500*1024*1024),
		},
		Sweep: SweepConfig{
			CronExpr: getEnvString("SWEEP_CRON", "0 3 * * *"),
			TTLHours: getEnvInt("SWEEP_TTL_HOURS", 24),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	switch c.Transcribe.DefaultMethod {
	case "local", "remote":
	default:
		return fmt.Errorf("DEFAULT_METHOD must be local or remote, got %q", c.Transcribe.DefaultMethod)
	}
	if lang := c.Transcribe.DefaultLanguage; lang != "" && lang != "auto" {
		if _, err := language.Parse(lang); err != nil {
			return fmt.Errorf("invalid DEFAULT_LANGUAGE %q: %w", lang, err)
		}
	}
	if c.Transcribe.RatePerMinute < 0 {
		return fmt.Errorf("REMOTE_RATE_PER_MINUTE must be >= 0")
	}
	if strings.TrimSpace(c.Sweep.CronExpr) == "" {
		return fmt.Errorf("SWEEP_CRON is required")
	}
	if _, err := cron.ParseStandard(c.Sweep.CronExpr); err != nil {
		return fmt.Errorf("invalid SWEEP_CRON: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
