// Package config reads service settings from the environment.
//
// A .env file in the working directory is loaded first when present; values
// already set in the environment win.
//
// Environment variables:
//   - HTTP_ADDR: listen address (default :8080)
//   - PUBLIC_BASE_URL: prefix for progress/download URLs (default "")
//   - UPLOAD_DIR, OUTPUT_DIR: temp input and artifact dirs (default data/uploads, data/outputs)
//   - FFMPEG_PATH, FFPROBE_PATH: engine binaries (default ffmpeg, ffprobe)
//   - WORKERS: concurrent transcodes (default 4)
//   - QUEUE_SIZE: jobs waiting for a worker (default 64)
//   - JOB_TIMEOUT: per-job engine timeout (default 2h)
//   - MAX_UPLOAD_MB: request body cap (default 512)
//   - ALLOWED_EXTENSIONS: comma separated (default mp4,mov,avi,mkv)
//   - RETENTION: age after which files and finished jobs are reclaimed (default 24h)
//   - CLEANUP_SCHEDULE: cron spec for sweeps (default @every 10m)
//   - DELETE_AFTER_DOWNLOAD: reclaim an artifact once served (default false)
//   - SUBMIT_RATE, SUBMIT_BURST: per-client submissions per second (default 5, 10)
//   - POSTGRES_DSN: completion records in postgres; SQLITE_PATH is used otherwise
//   - REDIS_ADDR, REDIS_TTL: optional status mirror
//   - KAFKA_BROKERS, KAFKA_TOPIC: optional terminal status events
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string

	UploadDir  string
	OutputDir  string
	FFmpegPath string
	FFprobe    string

	Workers           int
	QueueSize         int
	JobTimeout        time.Duration
	MaxUploadBytes    int64
	AllowedExtensions []string

	Retention           time.Duration
	CleanupSchedule     string
	DeleteAfterDownload bool

	SubmitRate  float64
	SubmitBurst int

	PostgresDSN string
	SQLitePath  string

	RedisAddr string
	RedisTTL  time.Duration

	KafkaBrokers string
	KafkaTopic   string
}

// Load reads the environment (and ./.env) and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:      envOr("HTTP_ADDR", ":8080"),
		PublicBaseURL: envOr("PUBLIC_BASE_URL", ""),

		UploadDir:  envOr("UPLOAD_DIR", "data/uploads"),
		OutputDir:  envOr("OUTPUT_DIR", "data/outputs"),
		FFmpegPath: envOr("FFMPEG_PATH", "ffmpeg"),
		FFprobe:    envOr("FFPROBE_PATH", "ffprobe"),

		Workers:           envIntOr("WORKERS", 4),
		QueueSize:         envIntOr("QUEUE_SIZE", 64),
		JobTimeout:        envDurationOr("JOB_TIMEOUT", 2*time.Hour),
		MaxUploadBytes:    int64(envIntOr("MAX_UPLOAD_MB", 512)) << 20,
		AllowedExtensions: envListOr("ALLOWED_EXTENSIONS", []string{"mp4", "mov", "avi", "mkv"}),

		Retention:           envDurationOr("RETENTION", 24*time.Hour),
		CleanupSchedule:     envOr("CLEANUP_SCHEDULE", "@every 10m"),
		DeleteAfterDownload: envBoolOr("DELETE_AFTER_DOWNLOAD", false),

		SubmitRate:  envFloatOr("SUBMIT_RATE", 5),
		SubmitBurst: envIntOr("SUBMIT_BURST", 10),

		PostgresDSN: envOr("POSTGRES_DSN", ""),
		SQLitePath:  envOr("SQLITE_PATH", "data/transcodes.db"),

		RedisAddr: envOr("REDIS_ADDR", ""),
		RedisTTL:  envDurationOr("REDIS_TTL", 24*time.Hour),

		KafkaBrokers: envOr("KAFKA_BROKERS", ""),
		KafkaTopic:   envOr("KAFKA_TOPIC", "transcode-status"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("WORKERS must be positive, got %d", c.Workers))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_SIZE must be positive, got %d", c.QueueSize))
	}
	if c.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("JOB_TIMEOUT must be positive, got %s", c.JobTimeout))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
	}
	if len(c.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("ALLOWED_EXTENSIONS must not be empty"))
	}
	if c.Retention <= 0 {
		errs = append(errs, fmt.Errorf("RETENTION must be positive, got %s", c.Retention))
	}
	if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("CLEANUP_SCHEDULE: %w", err))
	}
	if c.SubmitRate < 0 || c.SubmitBurst < 0 {
		errs = append(errs, errors.New("SUBMIT_RATE and SUBMIT_BURST must not be negative"))
	}
	if c.UploadDir == "" || c.OutputDir == "" {
		errs = append(errs, errors.New("UPLOAD_DIR and OUTPUT_DIR are required"))
	}
	if c.KafkaBrokers != "" && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required with KAFKA_BROKERS"))
	}
	return errors.Join(errs...)
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envFloatOr(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBoolOr(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envListOr(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, strings.TrimPrefix(part, "."))
		}
	}
	return out
}
