// Package config reads pipeline configuration from the environment.
// Mains call godotenv.Load() before Load so a local .env file works in
// development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/product-snapshot-pipeline/internal/vision"
)

// Config holds all values the pipeline consumes
type Config struct {
	// HTTPAddr is the listen address for the API server
	HTTPAddr string

	// DatabaseURL is the Postgres connection string (worker mode)
	DatabaseURL string

	// DataDir is the embedded SQLite directory (standalone mode)
	DataDir string

	// MaxUploadBytes caps incoming image payloads
	MaxUploadBytes int64

	// AllowedImageTypes is the content-type allow-list
	AllowedImageTypes []string

	// VisionEndpoint and VisionAPIKey configure the vendor client
	VisionEndpoint string
	VisionAPIKey   string

	// AnalysisTimeout bounds each vendor request
	AnalysisTimeout time.Duration

	// Retry controls the vendor retry loop
	Retry vision.RetryConfig

	// AnalysisConcurrency bounds simultaneous in-flight vendor calls
	// (0 = unlimited)
	AnalysisConcurrency int64

	// ScheduleSpec is the cron expression for the daily snapshot run
	ScheduleSpec string

	// QueueName and QueueConcurrency configure the DBOS queue (worker mode)
	QueueName        string
	QueueConcurrency int
}

// Load reads configuration from the environment, applying defaults
func Load() Config {
	return Config{
		HTTPAddr:          getEnv("PIPELINE_HTTP_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DataDir:           getEnv("DATA_DIR", "./dev-data"),
		MaxUploadBytes:    getEnvInt64("MAX_UPLOAD_BYTES", 10*1024*1024),
		AllowedImageTypes: getEnvList("ALLOWED_IMAGE_TYPES", []string{"image/jpeg", "image/png", "image/webp", "image/gif"}),
		VisionEndpoint:    os.Getenv("VISION_ENDPOINT"),
		VisionAPIKey:      os.Getenv("VISION_API_KEY"),
		AnalysisTimeout:   getEnvDuration("ANALYSIS_TIMEOUT", 10*time.Second),
		Retry: vision.RetryConfig{
			MaxRetries:        getEnvInt("ANALYSIS_MAX_RETRIES", vision.DefaultMaxRetries),
			InitialBackoff:    getEnvDuration("ANALYSIS_INITIAL_BACKOFF", vision.DefaultInitialBackoff),
			MaxBackoff:        getEnvDuration("ANALYSIS_MAX_BACKOFF", vision.DefaultMaxBackoff),
			BackoffMultiplier: vision.DefaultBackoffMultiplier,
			Jitter:            vision.DefaultJitter,
		},
		AnalysisConcurrency: getEnvInt64("ANALYSIS_CONCURRENCY", 4),
		ScheduleSpec:        getEnv("SNAPSHOT_SCHEDULE", "0 3 * * *"),
		QueueName:           getEnv("DBOS_QUEUE_NAME", "default"),
		QueueConcurrency:    getEnvInt("DBOS_QUEUE_CONCURRENCY", 4),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
