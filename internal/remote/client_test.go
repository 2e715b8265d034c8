package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
)

// fakeBoard is a minimal in-memory leaderboard service.
func fakeBoard(t *testing.T, key string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	docs := map[string]*document{}
	var order []string

	prefix := "/v1/projects/default/collections/leaderboard/documents"
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key != "" && r.Header.Get("X-API-Key") != key {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"code":"unauthorized","message":"bad key"}}`))
			return
		}
		mu.Lock()
		defer mu.Unlock()

		path := r.URL.EscapedPath()
		switch {
		case path == "/health":
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case path == prefix && r.Method == http.MethodGet:
			out := []document{}
			for _, n := range order {
				out = append(out, *docs[n])
			}
			json.NewEncoder(w).Encode(map[string]any{"documents": out})
		case strings.HasSuffix(path, "/increment") && r.Method == http.MethodPost:
			name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix+"/"), "/increment")
			var d ledger.Delta
			if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
				t.Errorf("decode delta: %v", err)
			}
			doc, ok := docs[name]
			if !ok {
				doc = &document{Name: name}
				docs[name] = doc
				order = append(order, name)
			}
			doc.Wins += d.Wins
			doc.Losses += d.Losses
			doc.Ties += d.Ties
			json.NewEncoder(w).Encode(doc)
		case r.Method == http.MethodGet:
			name := strings.TrimPrefix(r.URL.Path, prefix+"/")
			doc, ok := docs[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":{"code":"not_found","message":"no such document"}}`))
				return
			}
			json.NewEncoder(w).Encode(doc)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{})
	if c.Endpoint() != "http://127.0.0.1:17890/v1/projects/default/collections/leaderboard" {
		t.Errorf("unexpected endpoint %s", c.Endpoint())
	}
	c.SetAPIKey("k")
	if c.APIKey() != "k" {
		t.Error("api key not set")
	}
}

func TestIncrementGetList(t *testing.T) {
	srv := fakeBoard(t, "secret")
	defer srv.Close()
	ctx := context.Background()
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"})

	if err := c.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	for _, d := range []ledger.Delta{{Wins: 1}, {Ties: 1}, {Losses: 1}} {
		if err := c.Increment(ctx, "Ada Lovelace", d); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	c.Increment(ctx, "Bob", ledger.Delta{Wins: 2})

	rec, ok, err := c.Get(ctx, "Ada Lovelace")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	want := ledger.PlayerRecord{Name: "Ada Lovelace", Wins: 1, Losses: 1, Ties: 1}
	if rec != want {
		t.Errorf("expected %+v, got %+v", want, rec)
	}

	if _, ok, err := c.Get(ctx, "nobody"); err != nil || ok {
		t.Errorf("missing doc: ok=%v err=%v", ok, err)
	}

	list, err := c.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "Ada Lovelace" || list[1].Wins != 2 {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestAuthError(t *testing.T) {
	srv := fakeBoard(t, "secret")
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "wrong"})

	err := c.Increment(context.Background(), "Ada", ledger.Delta{Wins: 1})
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if ae.StatusCode != 401 || ae.Message != "bad key" {
		t.Errorf("unexpected %+v", ae)
	}
}

func TestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":"unavailable","message":"db down"}}`))
	}))
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.List(context.Background())
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if !he.IsRetryable() || he.IsNotFound() || he.Code != "unavailable" {
		t.Errorf("unexpected classification %+v", he)
	}
}

func TestHTTPErrorRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		e := &HTTPError{StatusCode: tt.status}
		if e.IsRetryable() != tt.want {
			t.Errorf("status %d: expected retryable=%v", tt.status, tt.want)
		}
	}
}

func TestCancelledContext(t *testing.T) {
	srv := fakeBoard(t, "")
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Increment(ctx, "Ada", ledger.Delta{Wins: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBacksLedger(t *testing.T) {
	srv := fakeBoard(t, "")
	defer srv.Close()
	ctx := context.Background()
	c := NewClient(Config{BaseURL: srv.URL})
	l := ledger.New(ledger.NewMemoryStore(), c)

	for _, d := range []ledger.Delta{{Wins: 1}, {Ties: 1}, {Losses: 1}} {
		l.ApplyDelta(ctx, "Ada", d)
	}
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	board, err := l.FetchGlobalLeaderboard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 1 || board[0].Wins != 1 || board[0].Losses != 1 || board[0].Ties != 1 {
		t.Errorf("unexpected board %+v", board)
	}
}

func TestUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.UserAgent()
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, UserAgent: "rps-test/1"})
	if err := c.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got != "rps-test/1" {
		t.Errorf("User-Agent = %q", got)
	}
}
