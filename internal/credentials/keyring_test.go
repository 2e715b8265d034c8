package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestSetGetDelete(t *testing.T) {
	keyring.MockInit()
	s := New("rps-test", filepath.Join(t.TempDir(), "secrets.json"))

	if _, err := s.APIKey("board"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetAPIKey("board", "board-key"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	if err := s.SetAPIKey("firestore", "web-key"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}

	got, err := s.APIKey("board")
	if err != nil || got != "board-key" {
		t.Fatalf("board key: %q, %v", got, err)
	}
	got, _ = s.APIKey("firestore")
	if got != "web-key" {
		t.Fatalf("firestore key: %q", got)
	}

	if err := s.DeleteAPIKey("board"); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if _, err := s.APIKey("board"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteAPIKey("board"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestValidation(t *testing.T) {
	keyring.MockInit()
	s := New("", "")
	if err := s.SetAPIKey(" ", "x"); err == nil {
		t.Error("expected error for blank backend")
	}
	if err := s.SetAPIKey("board", "  "); err == nil {
		t.Error("expected error for blank key")
	}
}

func TestFileFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("keyring backend not available"))
	defer keyring.MockInit()

	path := filepath.Join(t.TempDir(), "nested", "secrets.json")
	s := New("rps-test", path)

	if err := s.SetAPIKey("board", "from-file"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("fallback file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("fallback file mode %v", info.Mode().Perm())
	}
	got, err := s.APIKey("board")
	if err != nil || got != "from-file" {
		t.Fatalf("got %q, %v", got, err)
	}
	if err := s.DeleteAPIKey("board"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.APIKey("board"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNoFallbackConfigured(t *testing.T) {
	keyring.MockInitWithError(errors.New("keyring backend not available"))
	defer keyring.MockInit()

	s := New("rps-test", "")
	if err := s.SetAPIKey("board", "x"); err == nil {
		t.Error("expected error without fallback path")
	}
}

func TestResolve(t *testing.T) {
	keyring.MockInit()
	s := New("rps-test", "")

	if v, err := s.Resolve("board", ""); err != nil || v != "" {
		t.Errorf("empty resolve: %q, %v", v, err)
	}
	s.SetAPIKey("board", "stored")
	if v, _ := s.Resolve("board", ""); v != "stored" {
		t.Errorf("expected stored, got %q", v)
	}
	if v, _ := s.Resolve("board", "env"); v != "env" {
		t.Errorf("explicit key should win, got %q", v)
	}
}
