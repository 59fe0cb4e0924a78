package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	PDF      PDFConfig
	Fetch    FetchConfig
	Batch    BatchConfig
	LogLevel slog.Level
}

// DatabaseConfig holds settings for the extract_job log.
type DatabaseConfig struct {
	Driver          string // "sqlite" | "pgx"
	DSN             string
	MaxConns        int
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr       string
	HTTPAddr       string
	MaxUploadBytes int64
	CORSOrigins    []string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine           string // "cli" | "gosseract"
	Language         string
	Tesseract        string
	TessdataDir      string
	HeicConverter    string
	ArtifactCacheDir string
}

// PDFConfig selects the text-layer backend and the rasterization scale for OCR fallback.
type PDFConfig struct {
	TextBackend string // "mupdf" | "pure"
	RenderScale float64
}

// FetchConfig bounds remote document loading.
type FetchConfig struct {
	Timeout            time.Duration
	MaxBytes           int64
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3Endpoint         string // optional, for S3-compatible stores
}

// BatchConfig tunes the directory mode of the CLI.
type BatchConfig struct {
	Workers int
	Timeout time.Duration
}

// LoadConfig loads configuration from environment variables. A .env file in the working
// directory is read first when present; variables already set in the environment win.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			DSN:             getEnv("DB_URL", "file:doctext.db"),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			GRPCAddr:       getEnv("GRPC_ADDR", ":9090"),
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 25<<20),
			CORSOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		OCR: OCRConfig{
			Engine:           getEnv("OCR_ENGINE", "cli"),
			Language:         getEnv("OCR_LANG", "eng"),
			Tesseract:        getEnv("TESSERACT_BIN", "tesseract"),
			TessdataDir:      getEnv("TESSDATA_PREFIX", ""),
			HeicConverter:    getEnv("HEIC_CONVERTER", "magick"),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
		},
		PDF: PDFConfig{
			TextBackend: getEnv("PDF_TEXT_BACKEND", "mupdf"),
			RenderScale: getEnvAsFloat64("PDF_RENDER_SCALE", 1.0),
		},
		Fetch: FetchConfig{
			Timeout:            getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
			MaxBytes:           getEnvAsInt64("FETCH_MAX_BYTES", 50<<20),
			AWSRegion:          getEnv("AWS_REGION", "us-east-2"),
			AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""), // empty falls back to the default credential chain
			AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		},
		Batch: BatchConfig{
			Workers: getEnvAsInt("BATCH_WORKERS", 4),
			Timeout: getEnvAsDuration("BATCH_TIMEOUT", 3*time.Minute),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	switch strings.ToLower(os.Getenv(key)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		return ConfigError("DB_DRIVER must be sqlite or pgx")
	}
	if c.Database.DSN == "" {
		return ConfigError("DB_URL is required")
	}
	switch c.OCR.Engine {
	case "cli", "gosseract":
	default:
		return ConfigError("OCR_ENGINE must be cli or gosseract")
	}
	if c.OCR.Language == "" {
		return ConfigError("OCR_LANG is required")
	}
	switch c.PDF.TextBackend {
	case "mupdf", "pure":
	default:
		return ConfigError("PDF_TEXT_BACKEND must be mupdf or pure")
	}
	if c.PDF.RenderScale <= 0 {
		return ConfigError("PDF_RENDER_SCALE must be positive")
	}
	if c.Server.GRPCAddr == "" && c.Server.HTTPAddr == "" {
		return ConfigError("GRPC_ADDR or HTTP_ADDR is required")
	}
	return nil
}
