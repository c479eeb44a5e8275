package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := Config{
		Env:     "development",
		Log:     LogConfig{Level: "info"},
		Backend: BackendConfig{URL: "http://localhost:8080/api", Timeout: 15 * time.Second},
		Submission: SubmissionConfig{
			MaxTries:       3,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
		OTP: OTPConfig{
			Window:         5 * time.Minute,
			MaxAttempts:    5,
			MaxResends:     3,
			ResendCooldown: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:    StoreMemory,
			RedisAddr: "localhost:6379",
			TTL:       72 * time.Hour,
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "formwizard.yaml")
	body := `
env: production
backend:
  url: https://api.example.com/v1
  timeout: 5s
otp:
  max_resends: 1
store:
  driver: redis
definitions:
  dir: ./products
  thresholds:
    personal-loan:
      min_annual_income: 300000
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FORMWIZARD_BACKEND_URL", "https://override.example.com")
	t.Setenv("FORMWIZARD_OTP_MAX_ATTEMPTS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.Backend.URL != "https://override.example.com" {
		t.Fatalf("expected env override for backend url, got %q", cfg.Backend.URL)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %v", cfg.Backend.Timeout)
	}
	if cfg.OTP.MaxAttempts != 3 || cfg.OTP.MaxResends != 1 {
		t.Fatalf("unexpected otp config: %+v", cfg.OTP)
	}
	if cfg.Store.Driver != StoreRedis || cfg.Definitions.Dir != "./products" {
		t.Fatalf("unexpected store/definitions config: %+v %+v", cfg.Store, cfg.Definitions)
	}
	want := map[string]map[string]float64{"personal-loan": {"min_annual_income": 300000}}
	if diff := cmp.Diff(want, cfg.Definitions.Thresholds); diff != "" {
		t.Fatalf("thresholds mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("FORMWIZARD_STORE_DRIVER", "postgres")
	t.Chdir(t.TempDir())

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "unknown store driver") {
		t.Fatalf("expected unknown store driver error, got %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}
