package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RPS_DATA_DIR", t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RemoteKind != RemoteBoard {
		t.Errorf("remote kind: %s", cfg.RemoteKind)
	}
	if cfg.BoardURL != "http://127.0.0.1:17890" || cfg.Collection != "leaderboard" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.RemoteTimeout != 10*time.Second || !cfg.Animated {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.ClientSeed != "rps" || cfg.OpponentSeed != "" {
		t.Errorf("seeds: client %q opponent %q", cfg.ClientSeed, cfg.OpponentSeed)
	}
	if !strings.HasSuffix(cfg.LocalDBPath(), "rps.db") {
		t.Errorf("local db path %s", cfg.LocalDBPath())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RPS_REMOTE_KIND", " Firestore ")
	t.Setenv("FIREBASE_PROJECT_ID", "rps-demo")
	t.Setenv("FIREBASE_API_KEY", "web-key")
	t.Setenv("RPS_API_KEY", "board-key")
	t.Setenv("RPS_ANIMATED", "false")
	t.Setenv("RPS_REMOTE_TIMEOUT", "3s")
	t.Setenv("RPS_DATA_DIR", "/tmp/rps")
	t.Setenv("RPS_OPPONENT_SEED", "server-seed")
	t.Setenv("RPS_CLIENT_SEED", "table-7")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RemoteKind != RemoteFirestore || cfg.FirebaseProjectID != "rps-demo" {
		t.Errorf("unexpected %+v", cfg)
	}
	if cfg.ExplicitAPIKey() != "web-key" {
		t.Errorf("firestore should use FIREBASE_API_KEY, got %q", cfg.ExplicitAPIKey())
	}
	if cfg.Animated || cfg.RemoteTimeout != 3*time.Second {
		t.Errorf("unexpected %+v", cfg)
	}
	if cfg.DataDir != "/tmp/rps" {
		t.Errorf("data dir %s", cfg.DataDir)
	}
	if cfg.OpponentSeed != "server-seed" || cfg.ClientSeed != "table-7" {
		t.Errorf("seeds: client %q opponent %q", cfg.ClientSeed, cfg.OpponentSeed)
	}
}

func TestValidate(t *testing.T) {
	base := Config{RemoteKind: RemoteBoard, BoardURL: "http://x", RemoteTimeout: time.Second}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(*Config) {}, false},
		{"none", func(c *Config) { c.RemoteKind = RemoteNone; c.BoardURL = "" }, false},
		{"unknown kind", func(c *Config) { c.RemoteKind = "redis" }, true},
		{"firestore without project", func(c *Config) { c.RemoteKind = RemoteFirestore }, true},
		{"board without url", func(c *Config) { c.BoardURL = "" }, true},
		{"zero timeout", func(c *Config) { c.RemoteTimeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("RPS_BOARD_PROJECT=from-dotenv\nRPS_COLLECTION=scores\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RPS_COLLECTION", "from-env")
	t.Setenv("RPS_DATA_DIR", t.TempDir())
	// registered so the dotenv value is cleared after the test
	t.Setenv("RPS_BOARD_PROJECT", "")
	os.Unsetenv("RPS_BOARD_PROJECT")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BoardProject != "from-dotenv" {
		t.Errorf("expected dotenv value, got %q", cfg.BoardProject)
	}
	if cfg.Collection != "from-env" {
		t.Errorf("environment should win over .env, got %q", cfg.Collection)
	}
}

func TestParseBoard(t *testing.T) {
	t.Setenv("BOARD_PORT", "9000")
	t.Setenv("BOARD_DATABASE_TYPE", "postgres")
	t.Setenv("BOARD_DATABASE_URL", "postgres://localhost/board")

	cfg, err := ParseBoard(nil, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9000 || cfg.DatabaseType != "postgres" || cfg.Addr() != ":9000" {
		t.Errorf("unexpected %+v", cfg)
	}

	cfg, err = ParseBoard([]string{"-p", "9100", "-t", "SQLite", "-d", "x.db", "-k", "secret"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9100 || cfg.DatabaseType != "sqlite" || cfg.DatabaseURL != "x.db" || cfg.APIKey != "secret" {
		t.Errorf("flags should override env: %+v", cfg)
	}
}

func TestParseBoardErrors(t *testing.T) {
	tests := [][]string{
		{"-p", "0"},
		{"-t", "mysql"},
		{"-d", ""},
		{"-unknown"},
	}
	for _, args := range tests {
		if _, err := ParseBoard(args, io.Discard); err == nil {
			t.Errorf("ParseBoard(%v): expected error", args)
		}
	}
}
