// Package firestore stores leaderboard documents in Cloud Firestore through
// its REST API, authenticated with a web API key. It implements
// ledger.RemoteStore.
//
// Increments are written as a single commit carrying field transforms, so
// the server applies them atomically and creates the document when absent.
package firestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
)

const defaultBaseURL = "https://firestore.googleapis.com/v1"

// Config for a Firestore collection.
type Config struct {
	ProjectID  string
	APIKey     string
	Collection string // defaults to "leaderboard"
	Database   string // defaults to "(default)"

	// BaseURL overrides the REST endpoint (emulator or tests).
	BaseURL string

	// PageSize for List. Defaults to 300.
	PageSize int

	HTTPClient *http.Client
}

// Client is a Firestore REST client for one collection.
type Client struct {
	config Config
	http   *http.Client
	mu     sync.RWMutex
}

// APIError is an error response from Firestore.
type APIError struct {
	StatusCode int    `json:"code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firestore: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// IsRetryable returns true for UNAVAILABLE, RESOURCE_EXHAUSTED, ABORTED and 5xx.
func (e *APIError) IsRetryable() bool {
	switch e.Status {
	case "UNAVAILABLE", "RESOURCE_EXHAUSTED", "ABORTED", "DEADLINE_EXCEEDED":
		return true
	}
	return e.StatusCode >= 500
}

var (
	// ErrNoProject is returned by NewClient when ProjectID is blank.
	ErrNoProject = errors.New("firestore: project id is required")

	// ErrInvalidDocumentName is returned for player names Firestore cannot
	// use as a document id.
	ErrInvalidDocumentName = errors.New("firestore: name is not a valid document id")
)

const maxDocumentIDBytes = 1500

// checkDocumentID applies Firestore's document id rules. A slash would
// address a subcollection instead of the player's document.
func checkDocumentID(name string) error {
	switch {
	case name == "", name == ".", name == "..",
		strings.Contains(name, "/"),
		len(name) > maxDocumentIDBytes,
		len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__"):
		return fmt.Errorf("%w: %q", ErrInvalidDocumentName, name)
	}
	return nil
}

// NewClient validates cfg and applies defaults.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, ErrNoProject
	}
	if cfg.Collection == "" {
		cfg.Collection = "leaderboard"
	}
	if cfg.Database == "" {
		cfg.Database = "(default)"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 300
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{config: cfg, http: hc}, nil
}

// SetAPIKey replaces the web API key (thread-safe).
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.APIKey = key
}

func (c *Client) apiKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.APIKey
}

// Endpoint is the collection URL, for display.
func (c *Client) Endpoint() string { return c.collectionURL() }

// --- wire types ---

type value struct {
	StringValue  *string  `json:"stringValue,omitempty"`
	IntegerValue *string  `json:"integerValue,omitempty"`
	DoubleValue  *float64 `json:"doubleValue,omitempty"`
}

func (v value) int() int {
	switch {
	case v.IntegerValue != nil:
		n, _ := strconv.ParseInt(*v.IntegerValue, 10, 64)
		return int(n)
	case v.DoubleValue != nil:
		return int(*v.DoubleValue)
	}
	return 0
}

type document struct {
	Name   string           `json:"name"`
	Fields map[string]value `json:"fields"`
}

func (d document) record() ledger.PlayerRecord {
	rec := ledger.PlayerRecord{
		Wins:   d.Fields["wins"].int(),
		Losses: d.Fields["losses"].int(),
		Ties:   d.Fields["ties"].int(),
	}
	if s := d.Fields["name"].StringValue; s != nil {
		rec.Name = *s
	} else if i := strings.LastIndex(d.Name, "/"); i >= 0 {
		rec.Name, _ = url.PathUnescape(d.Name[i+1:])
	}
	return rec
}

type fieldTransform struct {
	FieldPath string `json:"fieldPath"`
	Increment value  `json:"increment"`
}

type write struct {
	Update           document         `json:"update"`
	UpdateMask       map[string]any   `json:"updateMask"`
	UpdateTransforms []fieldTransform `json:"updateTransforms"`
}

// --- ledger.RemoteStore ---

// Increment commits one write that sets the name field and adds each
// counter, creating the document if needed.
func (c *Client) Increment(ctx context.Context, name string, d ledger.Delta) error {
	if err := checkDocumentID(name); err != nil {
		return err
	}
	w := write{
		Update: document{
			Name:   c.resourceName(name),
			Fields: map[string]value{"name": {StringValue: &name}},
		},
		UpdateMask: map[string]any{"fieldPaths": []string{"name"}},
	}
	for _, f := range []struct {
		path string
		n    int
	}{{"wins", d.Wins}, {"losses", d.Losses}, {"ties", d.Ties}} {
		n := strconv.Itoa(f.n)
		w.UpdateTransforms = append(w.UpdateTransforms, fieldTransform{
			FieldPath: f.path,
			Increment: value{IntegerValue: &n},
		})
	}
	body := map[string]any{"writes": []write{w}}
	return c.do(ctx, http.MethodPost, c.databaseURL()+"/documents:commit", nil, body, nil)
}

// Get fetches one player's document.
func (c *Client) Get(ctx context.Context, name string) (ledger.PlayerRecord, bool, error) {
	if err := checkDocumentID(name); err != nil {
		return ledger.PlayerRecord{}, false, err
	}
	var doc document
	err := c.do(ctx, http.MethodGet, c.collectionURL()+"/"+url.PathEscape(name), nil, nil, &doc)
	var ae *APIError
	if errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound {
		return ledger.PlayerRecord{}, false, nil
	}
	if err != nil {
		return ledger.PlayerRecord{}, false, err
	}
	return doc.record(), true, nil
}

// List pages through the whole collection.
func (c *Client) List(ctx context.Context) ([]ledger.PlayerRecord, error) {
	var out []ledger.PlayerRecord
	token := ""
	for {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(c.config.PageSize))
		if token != "" {
			q.Set("pageToken", token)
		}
		var page struct {
			Documents     []document `json:"documents"`
			NextPageToken string     `json:"nextPageToken"`
		}
		if err := c.do(ctx, http.MethodGet, c.collectionURL(), q, nil, &page); err != nil {
			return nil, err
		}
		for _, d := range page.Documents {
			out = append(out, d.record())
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		token = page.NextPageToken
	}
}

// --- plumbing ---

func (c *Client) databaseURL() string {
	return fmt.Sprintf("%s/projects/%s/databases/%s",
		strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(c.config.ProjectID), c.config.Database)
}

func (c *Client) collectionURL() string {
	return c.databaseURL() + "/documents/" + url.PathEscape(c.config.Collection)
}

func (c *Client) resourceName(name string) string {
	return fmt.Sprintf("projects/%s/databases/%s/documents/%s/%s",
		c.config.ProjectID, c.config.Database, c.config.Collection, name)
}

func (c *Client) do(ctx context.Context, method, rawURL string, q url.Values, body, out any) error {
	if q == nil {
		q = url.Values{}
	}
	if key := c.apiKey(); key != "" {
		q.Set("key", key)
	}
	if len(q) > 0 {
		rawURL += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("firestore: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("firestore: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("firestore: http request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("firestore: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var env struct {
			Error APIError `json:"error"`
		}
		if json.Unmarshal(respBody, &env) != nil || env.Error.StatusCode == 0 {
			env.Error = APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return &env.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("firestore: decode response: %w", err)
	}
	return nil
}
