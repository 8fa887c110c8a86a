package infra

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SIGNING_SECRET", "test-secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadConfigRequiresSigningSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("SIGNING_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when SIGNING_SECRET is missing")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("SIGNING_SECRET", "test-secret")
	t.Setenv("ENHANCE_MODELS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Fatalf("WorkerConcurrency = %d, want 4", cfg.WorkerConcurrency)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Fatalf("RetryMaxAttempts = %d, want 3", cfg.RetryMaxAttempts)
	}
	if cfg.EnhanceTimeout != 15*time.Second {
		t.Fatalf("EnhanceTimeout = %s, want 15s", cfg.EnhanceTimeout)
	}
	if len(cfg.EnhanceModels) != 3 {
		t.Fatalf("EnhanceModels = %#v, want 3 defaults", cfg.EnhanceModels)
	}
	if cfg.SignedURLTTL != 15*time.Minute {
		t.Fatalf("SignedURLTTL = %s, want 15m", cfg.SignedURLTTL)
	}
}

func TestLoadConfigParsesModelList(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("SIGNING_SECRET", "test-secret")
	t.Setenv("ENHANCE_MODELS", " model-a , model-b ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.EnhanceModels) != 2 || cfg.EnhanceModels[0] != "model-a" || cfg.EnhanceModels[1] != "model-b" {
		t.Fatalf("EnhanceModels = %#v", cfg.EnhanceModels)
	}
}
