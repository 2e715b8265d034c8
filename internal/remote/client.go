// Package remote is a client for the self-hosted leaderboard service
// (cmd/boardserver). It implements ledger.RemoteStore.
//
// # Usage
//
//	client := remote.NewClient(remote.Config{
//	    BaseURL: "http://127.0.0.1:17890",
//	    Project: "default",
//	    APIKey:  key,
//	})
//
//	err := client.Increment(ctx, "Ada", ledger.Delta{Wins: 1})
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
)

// Config holds configuration for the leaderboard client.
type Config struct {
	// BaseURL of the service. Defaults to http://127.0.0.1:17890.
	BaseURL string

	// Project namespaces documents on a shared server. Defaults to "default".
	Project string

	// Collection holds the player documents. Defaults to "leaderboard".
	Collection string

	// APIKey is sent as X-API-Key when set.
	APIKey string

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// Defaults to a client with 15s timeout.
	HTTPClient *http.Client

	// UserAgent replaces Go's default User-Agent header when set.
	UserAgent string
}

// Client talks to one collection on the leaderboard service.
type Client struct {
	config Config
	http   *http.Client
	mu     sync.RWMutex
}

// document is the service's wire form of a player record.
type document struct {
	Name      string    `json:"name"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Ties      int       `json:"ties"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func (d document) record() ledger.PlayerRecord {
	return ledger.PlayerRecord{Name: d.Name, Wins: d.Wins, Losses: d.Losses, Ties: d.Ties}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field,omitempty"`
	} `json:"error"`
}

// NewClient creates a client with defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:17890"
	}
	if cfg.Project == "" {
		cfg.Project = "default"
	}
	if cfg.Collection == "" {
		cfg.Collection = "leaderboard"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{config: cfg, http: httpClient}
}

// SetAPIKey replaces the API key (thread-safe).
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.APIKey = key
}

func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.APIKey
}

// Endpoint describes where the client points, for display.
func (c *Client) Endpoint() string {
	return fmt.Sprintf("%s/v1/projects/%s/collections/%s",
		strings.TrimRight(c.config.BaseURL, "/"), c.config.Project, c.config.Collection)
}

// Increment adds d to the named document, creating it when absent.
func (c *Client) Increment(ctx context.Context, name string, d ledger.Delta) error {
	var doc document
	return c.do(ctx, http.MethodPost, c.docPath(name)+"/increment", d, &doc)
}

// Get fetches one document. A missing document is reported as ok=false.
func (c *Client) Get(ctx context.Context, name string) (ledger.PlayerRecord, bool, error) {
	var doc document
	err := c.do(ctx, http.MethodGet, c.docPath(name), nil, &doc)
	if he, ok := err.(*HTTPError); ok && he.IsNotFound() {
		return ledger.PlayerRecord{}, false, nil
	}
	if err != nil {
		return ledger.PlayerRecord{}, false, err
	}
	return doc.record(), true, nil
}

// List returns every document in the collection.
func (c *Client) List(ctx context.Context) ([]ledger.PlayerRecord, error) {
	var body struct {
		Documents []document `json:"documents"`
	}
	if err := c.do(ctx, http.MethodGet, c.collectionPath()+"/documents", nil, &body); err != nil {
		return nil, err
	}
	out := make([]ledger.PlayerRecord, 0, len(body.Documents))
	for _, d := range body.Documents {
		out = append(out, d.record())
	}
	return out, nil
}

// Health checks that the service is reachable.
func (c *Client) Health(ctx context.Context) error {
	var body map[string]any
	return c.do(ctx, http.MethodGet, "/health", nil, &body)
}

func (c *Client) collectionPath() string {
	return fmt.Sprintf("/v1/projects/%s/collections/%s",
		url.PathEscape(c.config.Project), url.PathEscape(c.config.Collection))
}

func (c *Client) docPath(name string) string {
	return c.collectionPath() + "/documents/" + url.PathEscape(name)
}

// do sends one request and decodes a JSON response into out. No retries.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	u := strings.TrimRight(c.config.BaseURL, "/") + path

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := c.APIKey(); key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remote: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(respBody, &eb)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			msg := eb.Error.Message
			if msg == "" {
				msg = "api key missing or invalid"
			}
			return &AuthError{StatusCode: resp.StatusCode, Message: msg}
		}
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       eb.Error.Code,
			Message:    eb.Error.Message,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("remote: decode response: %w", err)
	}
	return nil
}
