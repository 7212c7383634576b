package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MODEL_BACKEND", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.ModelBackend != BackendONNX || cfg.ModelPoolSize != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("unexpected shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	if cfg.ReferenceTemplate != "https://en.wikipedia.org/wiki/%s" {
		t.Fatalf("unexpected reference template: %s", cfg.ReferenceTemplate)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "MODEL_BACKEND=grpc\nSCORER_ADDR=localhost:9000\nLABELS_PATH=/tmp/labels.txt\nSTRICT_LABELS=true\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	for _, key := range []string{"MODEL_BACKEND", "SCORER_ADDR", "LABELS_PATH", "STRICT_LABELS"} {
		key := key
		prev, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, prev)
			} else {
				os.Unsetenv(key)
			}
		})
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelBackend != BackendGRPC || cfg.ScorerAddr != "localhost:9000" || !cfg.StrictLabels {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadIgnoresMissingEnvFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"MODEL_POOL_SIZE":  "many",
		"STRICT_LABELS":    "sometimes",
		"SHUTDOWN_TIMEOUT": "soon",
		"MODEL_BACKEND":    "tflite",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestValidateGRPCRequiresLabels(t *testing.T) {
	cfg := &Config{ModelBackend: BackendGRPC, ScorerAddr: "x:1", ModelPoolSize: 1, ReferenceTemplate: "https://x/%s"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing labels error")
	}
}

func TestValidateReferenceTemplate(t *testing.T) {
	cfg := &Config{ModelBackend: BackendONNX, ModelManifest: "m.yaml", ModelPoolSize: 1, ReferenceTemplate: "https://x/"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected template error")
	}
}
