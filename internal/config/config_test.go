package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every key so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ServerPort != "8080" || cfg.BalanceCacheTTL != 30*time.Second || cfg.LogLevel != "info" ||
		cfg.LogFormat != "json" || cfg.GinMode != "release" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.RedisEnabled() || cfg.AuthEnabled() {
		t.Error("expected redis and auth to be disabled by default")
	}
}

func TestLoadEnvFileAndOverrides(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "DATABASE_URL=postgres://ledger@localhost/ledger\nREDIS_ADDR=localhost:6379\nBALANCE_CACHE_TTL=2m\nSERVER_PORT=9000\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.StoreDriver != DriverPostgres || cfg.DatabaseURL != "postgres://ledger@localhost/ledger" {
		t.Errorf("unexpected store config: %+v", cfg)
	}
	if cfg.ServerPort != "9100" {
		t.Errorf("expected environment to override file, got port %q", cfg.ServerPort)
	}
	if cfg.BalanceCacheTTL != 2*time.Minute || cfg.RedisDB != 3 || !cfg.RedisEnabled() {
		t.Errorf("unexpected redis config: %+v", cfg)
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "postgres without url", env: map[string]string{"STORE_DRIVER": "postgres"}, wantErr: "DATABASE_URL"},
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "firestore"}, wantErr: "STORE_DRIVER"},
		{name: "bad log format", env: map[string]string{"STORE_DRIVER": "memory", "LOG_FORMAT": "xml"}, wantErr: "LOG_FORMAT"},
		{name: "bad gin mode", env: map[string]string{"STORE_DRIVER": "memory", "GIN_MODE": "prod"}, wantErr: "GIN_MODE"},
		{name: "zero ttl", env: map[string]string{"STORE_DRIVER": "memory", "BALANCE_CACHE_TTL": "0s"}, wantErr: "BALANCE_CACHE_TTL"},
		{name: "unparsable ttl", env: map[string]string{"STORE_DRIVER": "memory", "BALANCE_CACHE_TTL": "soon"}, wantErr: "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error to mention %s, got %v", tt.wantErr, err)
			}
		})
	}
}
