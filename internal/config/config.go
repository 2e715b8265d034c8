// Package config reads settings from the environment, after loading an
// optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	appConfigDirName = "rockpaperscissors-desktop"
	localDBName      = "rps.db"
	secretsFileName  = "fallback_secrets.json"
)

// Remote backends.
const (
	RemoteBoard     = "board"
	RemoteFirestore = "firestore"
	RemoteNone      = "none"
)

// Config is the game client configuration.
type Config struct {
	RemoteKind    string        `env:"RPS_REMOTE_KIND" envDefault:"board"`
	BoardURL      string        `env:"RPS_BOARD_URL" envDefault:"http://127.0.0.1:17890"`
	BoardProject  string        `env:"RPS_BOARD_PROJECT" envDefault:"default"`
	APIKey        string        `env:"RPS_API_KEY"`
	Collection    string        `env:"RPS_COLLECTION" envDefault:"leaderboard"`
	RemoteTimeout time.Duration `env:"RPS_REMOTE_TIMEOUT" envDefault:"10s"`

	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	FirebaseAPIKey    string `env:"FIREBASE_API_KEY"`

	Animated     bool   `env:"RPS_ANIMATED" envDefault:"true"`
	OpponentSeed string `env:"RPS_OPPONENT_SEED"`
	ClientSeed   string `env:"RPS_CLIENT_SEED" envDefault:"rps"`

	DataDir string `env:"RPS_DATA_DIR"`
}

// Load reads .env (when present) and the environment.
func Load(dotenvPaths ...string) (Config, error) {
	if err := LoadDotEnv(dotenvPaths...); err != nil {
		return Config{}, err
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.RemoteKind = strings.ToLower(strings.TrimSpace(cfg.RemoteKind))
	if cfg.DataDir == "" {
		cfg.DataDir = AppDataDir()
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.RemoteKind {
	case RemoteBoard:
		if c.BoardURL == "" {
			return errors.New("config: RPS_BOARD_URL is required for the board backend")
		}
	case RemoteFirestore:
		if c.FirebaseProjectID == "" {
			return errors.New("config: FIREBASE_PROJECT_ID is required for the firestore backend")
		}
	case RemoteNone:
	default:
		return fmt.Errorf("config: RPS_REMOTE_KIND must be board, firestore or none, got %q", c.RemoteKind)
	}
	if c.RemoteTimeout <= 0 {
		return errors.New("config: RPS_REMOTE_TIMEOUT must be positive")
	}
	return nil
}

// LocalDBPath is the local cache file.
func (c Config) LocalDBPath() string { return filepath.Join(c.DataDir, localDBName) }

// SecretsFallbackPath is used when no OS keyring is available.
func (c Config) SecretsFallbackPath() string { return filepath.Join(c.DataDir, secretsFileName) }

// ExplicitAPIKey is the key for the selected backend taken from the environment.
func (c Config) ExplicitAPIKey() string {
	if c.RemoteKind == RemoteFirestore {
		return c.FirebaseAPIKey
	}
	return c.APIKey
}

// LoadDotEnv loads the given files, or ./.env, skipping any that do not
// exist. Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// AppDataDir returns an OS-appropriate writable directory.
func AppDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appConfigDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appConfigDirName)
	}
	return "."
}

// Board is the leaderboard service configuration.
type Board struct {
	Port         int    `env:"BOARD_PORT" envDefault:"17890"`
	DatabaseURL  string `env:"BOARD_DATABASE_URL" envDefault:"board.db"`
	DatabaseType string `env:"BOARD_DATABASE_TYPE" envDefault:"sqlite"`
	APIKey       string `env:"BOARD_API_KEY"`
}

// ParseBoard reads the environment, then lets command-line flags override it.
func ParseBoard(args []string, output io.Writer) (Board, error) {
	if err := LoadDotEnv(); err != nil {
		return Board{}, err
	}
	cfg, err := env.ParseAs[Board]()
	if err != nil {
		return Board{}, fmt.Errorf("config: parse env: %w", err)
	}

	fs := flag.NewFlagSet("boardserver", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	fs.IntVar(&cfg.Port, "p", cfg.Port, "Server port (BOARD_PORT)")
	fs.StringVar(&cfg.DatabaseURL, "d", cfg.DatabaseURL, "Database URL or SQLite file (BOARD_DATABASE_URL)")
	fs.StringVar(&cfg.DatabaseType, "t", cfg.DatabaseType, "Database type: sqlite or postgres (BOARD_DATABASE_TYPE)")
	fs.StringVar(&cfg.APIKey, "k", cfg.APIKey, "API key clients must send (prefer BOARD_API_KEY)")
	if err := fs.Parse(args); err != nil {
		return Board{}, err
	}

	cfg.DatabaseType = strings.ToLower(strings.TrimSpace(cfg.DatabaseType))
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Board{}, fmt.Errorf("config: invalid port %d", cfg.Port)
	}
	if cfg.DatabaseURL == "" {
		return Board{}, errors.New("config: database URL required (use -d or BOARD_DATABASE_URL)")
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Board{}, fmt.Errorf("config: database type must be sqlite or postgres, got %q", cfg.DatabaseType)
	}
	return cfg, nil
}

// Addr is the listen address.
func (b Board) Addr() string { return fmt.Sprintf(":%d", b.Port) }
