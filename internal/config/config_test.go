package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/routineo/internal/constants"
	apperrors "github.com/julianstephens/routineo/internal/errors"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Database != constants.DefaultConfigPath || cfg.LocalStore != constants.LocalStoreAuto {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
	if cfg.SessionTTL() != constants.DefaultSessionTTL {
		t.Errorf("SessionTTL() = %v", cfg.SessionTTL())
	}
	p := cfg.RetryPolicy()
	if p.MaxAttempts != constants.AuthMaxAttempts || p.Delay != constants.AuthRetryDelay || p.Retryable == nil {
		t.Errorf("RetryPolicy() = %+v", p)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := `database: /tmp/elsewhere.db
local_store: file
timezone: Europe/Berlin
retry:
  attempts: 5
  delay_ms: 10
poll_interval_ms: 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROUTINEO_RETRY_ATTEMPTS", "2")
	t.Setenv("ROUTINEO_DEBUG", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Database != "/tmp/elsewhere.db" || cfg.LocalStore != constants.LocalStoreFile {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Retry.Attempts != 2 || !cfg.Debug {
		t.Errorf("environment should override the file: %+v", cfg)
	}
	if cfg.Retry.DelayMS != 10 || cfg.PollInterval() != 0 {
		t.Errorf("retry delay %d, poll %v", cfg.Retry.DelayMS, cfg.PollInterval())
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Berlin" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "backend", content: "local_store: cloud\n"},
		{name: "timezone", content: "timezone: Mars/Olympus\n"},
		{name: "attempts", content: "retry:\n  attempts: 0\n"},
		{name: "ttl", content: "session_ttl_hours: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			os.WriteFile(path, []byte(tt.content), 0o644)
			if _, err := Load(path); !apperrors.Is(err, apperrors.ErrValidation) {
				t.Errorf("Load() error = %v, want validation", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	cfg := Default()
	cfg.Database = "postgres://localhost/routineo"
	cfg.SessionTTLHours = 12

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Database != cfg.Database || loaded.SessionTTL() != 12*time.Hour {
		t.Errorf("Load() after Save() = %+v", loaded)
	}
}
