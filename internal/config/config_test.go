package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pcassist.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version: 1
instance:
  id: desk
  name: Desk rig
detector:
  boundary_after: 500ms
  poll_interval: 2ms
handoff: fifo
solver:
  allow_hold: false
  placeability: hard_drop
  mode: commit
  timeout: 1s
  max_candidates: 16
geometry:
  spawn_rows:
    I: 1
overlay:
  fps: 30
mqtt:
  topic_prefix: rig/desk
  heartbeat: 250ms
api:
  port: 9090
sqlite:
  path: /var/lib/pcassist/events.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DisplayName() != "Desk rig" {
		t.Errorf("unexpected display name %q", cfg.DisplayName())
	}
	if cfg.InstanceID() != "desk" || cfg.MQTTClientID() != "desk" {
		t.Errorf("unexpected ids %s/%s", cfg.InstanceID(), cfg.MQTTClientID())
	}
	if cfg.Detector.BoundaryAfter != 500*time.Millisecond || cfg.Detector.PollInterval != 2*time.Millisecond {
		t.Errorf("unexpected detector timings %+v", cfg.Detector)
	}
	if cfg.HandoffPolicy() != "fifo" {
		t.Errorf("expected fifo, got %s", cfg.HandoffPolicy())
	}
	if cfg.AllowHold() {
		t.Error("allow_hold: false must disable hold")
	}
	if cfg.Placeability() != "hard_drop" || cfg.Mode() != "commit" {
		t.Errorf("unexpected solver settings %s/%s", cfg.Placeability(), cfg.Mode())
	}
	if cfg.SearchTimeout() != time.Second || cfg.Solver.MaxCandidates != 16 {
		t.Errorf("unexpected search budget %v/%d", cfg.SearchTimeout(), cfg.Solver.MaxCandidates)
	}
	if cfg.Geometry.SpawnRows["I"] != 1 {
		t.Errorf("unexpected spawn rows %v", cfg.Geometry.SpawnRows)
	}
	if cfg.FPS() != 30 || cfg.TopicPrefix() != "rig/desk" || cfg.Heartbeat() != 250*time.Millisecond {
		t.Errorf("unexpected overlay/mqtt settings")
	}
	if cfg.SQLite.Path != "/var/lib/pcassist/events.db" {
		t.Errorf("unexpected sqlite path %q", cfg.SQLite.Path)
	}
	t.Setenv("PCASSIST_API_PORT", "")
	if cfg.APIPort() != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.APIPort())
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv("PCASSIST_API_PORT", "")
	cfg := Default()

	if cfg.InstanceID() != "pcassist" {
		t.Errorf("unexpected instance id %s", cfg.InstanceID())
	}
	if cfg.HandoffPolicy() != "latest" {
		t.Errorf("expected latest-wins default, got %s", cfg.HandoffPolicy())
	}
	if !cfg.AllowHold() {
		t.Error("hold must be allowed by default")
	}
	if cfg.Placeability() != "always" || cfg.Mode() != "first" {
		t.Errorf("unexpected solver defaults %s/%s", cfg.Placeability(), cfg.Mode())
	}
	if cfg.FPS() != 60 {
		t.Errorf("expected 60 fps, got %d", cfg.FPS())
	}
	if cfg.TopicPrefix() != "pcassist" || cfg.Heartbeat() != time.Second {
		t.Errorf("unexpected mqtt defaults")
	}
	if !cfg.APIEnabled() || cfg.APIPort() != 8080 {
		t.Errorf("unexpected api defaults %v/%d", cfg.APIEnabled(), cfg.APIPort())
	}
}

func TestAPIPortEnvOverride(t *testing.T) {
	cfg := Default()
	cfg.API.Port = 9090

	t.Setenv("PCASSIST_API_PORT", "7070")
	if cfg.APIPort() != 7070 {
		t.Errorf("env must win, got %d", cfg.APIPort())
	}
	t.Setenv("PCASSIST_API_PORT", "not-a-port")
	if cfg.APIPort() != 9090 {
		t.Errorf("bad env value must be ignored, got %d", cfg.APIPort())
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"version", "version: 2\n", "unsupported"},
		{"handoff", "version: 1\nhandoff: lifo\n", "handoff"},
		{"placeability", "version: 1\nsolver:\n  placeability: teleport\n", "placeability"},
		{"mode", "version: 1\nsolver:\n  mode: all\n", "mode"},
		{"spawn rows", "version: 1\ngeometry:\n  spawn_rows:\n    TT: 1\n", "spawn_rows"},
		{"candidates", "version: 1\nsolver:\n  max_candidates: -1\n", "max_candidates"},
		{"yaml", "version: [\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Setenv("PGPASSWORD", "")
	t.Setenv("PGPASSWORD_FILE", "")

	cfg := Default()
	dsn, err := cfg.PostgresDSN()
	if err != nil {
		t.Fatal(err)
	}
	if dsn != "host=localhost port=5432 user=pcassist dbname=pcassist sslmode=disable" {
		t.Errorf("unexpected default dsn %q", dsn)
	}

	secret := filepath.Join(t.TempDir(), "pg")
	os.WriteFile(secret, []byte("s3cret\n"), 0600)
	t.Setenv("PGPASSWORD_FILE", secret)
	cfg.Postgres.Host = "db"
	dsn, err = cfg.PostgresDSN()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(dsn, "host=db ") || !strings.HasSuffix(dsn, " password=s3cret") {
		t.Errorf("unexpected dsn %q", dsn)
	}
}
