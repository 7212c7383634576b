// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/kopeknet/internal/labels"
)

// Model backends.
const (
	BackendONNX = "onnx"
	BackendGRPC = "grpc"
)

// Config holds every runtime setting of the service.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	DatabaseDSN string
	RedisAddr   string

	JWTSecret   string
	JWTAudience string

	ModelBackend      string
	ModelManifest     string
	LabelsPath        string
	ScorerAddr        string
	ModelPoolSize     int
	StrictLabels      bool
	ReferenceTemplate string
}

// Load reads the optional env file and then the process environment. Values
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:       getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=kopeknet port=5432 sslmode=disable"),
		RedisAddr:         getEnv("REDIS_ADDR", "redis:6379"),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience:       os.Getenv("JWT_AUDIENCE"),
		ModelBackend:      strings.ToLower(getEnv("MODEL_BACKEND", BackendONNX)),
		ModelManifest:     getEnv("MODEL_MANIFEST", "models/manifest.yaml"),
		LabelsPath:        os.Getenv("LABELS_PATH"),
		ScorerAddr:        getEnv("SCORER_ADDR", "scorer:50051"),
		ReferenceTemplate: getEnv("REFERENCE_URL_TEMPLATE", labels.DefaultReferenceTemplate),
	}

	var err error
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ModelPoolSize, err = getInt("MODEL_POOL_SIZE", 2); err != nil {
		return nil, err
	}
	if cfg.StrictLabels, err = getBool("STRICT_LABELS", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.ModelBackend {
	case BackendONNX:
		if c.ModelManifest == "" {
			return errors.New("config: MODEL_MANIFEST is required for the onnx backend")
		}
	case BackendGRPC:
		if c.ScorerAddr == "" {
			return errors.New("config: SCORER_ADDR is required for the grpc backend")
		}
		if c.LabelsPath == "" {
			return errors.New("config: LABELS_PATH is required for the grpc backend")
		}
	default:
		return fmt.Errorf("config: unknown MODEL_BACKEND %q", c.ModelBackend)
	}
	if c.ModelPoolSize < 1 {
		return fmt.Errorf("config: MODEL_POOL_SIZE must be positive, got %d", c.ModelPoolSize)
	}
	if strings.Count(c.ReferenceTemplate, "%s") != 1 {
		return fmt.Errorf("config: REFERENCE_URL_TEMPLATE must contain exactly one %%s")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}
