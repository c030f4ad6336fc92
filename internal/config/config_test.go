package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoad_FillsDefaultsForAMinimalFile(t *testing.T) {
	path := writeConfig(t, `
ai:
  provider: anthropic
logging:
  level: info
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Autonomy.Mode != "supervised" {
		t.Errorf("expected the default autonomy mode, got %q", cfg.Autonomy.Mode)
	}
	if cfg.Autonomy.ConfidenceThreshold != 75 {
		t.Errorf("expected the default confidence threshold of 75, got %v", cfg.Autonomy.ConfidenceThreshold)
	}
	if cfg.Store.Type != "inmem" {
		t.Errorf("expected the default inmem store, got %q", cfg.Store.Type)
	}
}

func TestLoad_EnvOverridesTakePrecedence(t *testing.T) {
	path := writeConfig(t, `
ai:
  provider: anthropic
logging:
  level: info
  format: json
`)

	t.Setenv("AUTONOMY_MODE", "autonomous")
	t.Setenv("STORE_REDIS_ADDR", "redis:6379")
	t.Setenv("DRY_RUN", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Autonomy.Mode != "autonomous" {
		t.Errorf("AUTONOMY_MODE override did not take effect, got %q", cfg.Autonomy.Mode)
	}
	if cfg.Store.Type != "redis" || cfg.Store.RedisAddr != "redis:6379" {
		t.Errorf("STORE_REDIS_ADDR override did not switch the store backend, got %+v", cfg.Store)
	}
	if !cfg.Autonomy.DryRun {
		t.Error("DRY_RUN=true override did not take effect")
	}
}

func TestLoad_RejectsInvalidDryRunEnv(t *testing.T) {
	path := writeConfig(t, `
ai:
  provider: anthropic
logging:
  level: info
  format: json
`)
	t.Setenv("DRY_RUN", "not-a-bool")

	if _, err := Load(path); err == nil {
		t.Error("expected an error for a malformed DRY_RUN value")
	}
}

func TestLoad_RejectsUnknownAutonomyMode(t *testing.T) {
	path := writeConfig(t, `
ai:
  provider: anthropic
autonomy:
  mode: yolo
  confidence_threshold: 75
  night_start_hour: 22
  night_end_hour: 6
  max_concurrent_actions: 3
  cooldown_seconds: 300
  policy_path: policy/autonomy.rego
logging:
  level: info
  format: json
`)
	if _, err := Load(path); err == nil {
		t.Error("expected validation to reject an autonomy mode outside the enum")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
