// Package docstore is the leaderboard service's storage: collections of
// player documents whose counters only ever grow by additive increments.
// SQLite and PostgreSQL are supported.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
)

// Database types accepted by Open.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Document is one player's totals within a collection.
type Document struct {
	Name      string    `json:"name"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Ties      int       `json:"ties"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d Document) Record() ledger.PlayerRecord {
	return ledger.PlayerRecord{Name: d.Name, Wins: d.Wins, Losses: d.Losses, Ties: d.Ties}
}

type Store struct {
	db      *sql.DB
	dialect string
}

// Open connects to dsn. For sqlite, dsn is a file path.
func Open(dbType, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dbType {
	case SQLite, "":
		dbType = SQLite
		db, err = sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dsn))
		if err == nil {
			db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
		}
	case Postgres:
		db, err = sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("docstore: unsupported database type %q", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	s := &Store{db: db, dialect: dbType}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("docstore: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Dialect returns "sqlite" or "postgres".
func (s *Store) Dialect() string { return s.dialect }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			project TEXT NOT NULL,
			collection TEXT NOT NULL,
			name TEXT NOT NULL,
			wins INTEGER NOT NULL DEFAULT 0 CHECK (wins >= 0),
			losses INTEGER NOT NULL DEFAULT 0 CHECK (losses >= 0),
			ties INTEGER NOT NULL DEFAULT 0 CHECK (ties >= 0),
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (project, collection, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(project, collection, updated_at DESC);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (s *Store) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Increment adds d to the document, creating it when absent, in a single
// statement. Concurrent increments accumulate in any order.
func (s *Store) Increment(ctx context.Context, project, collection, name string, d ledger.Delta) (Document, error) {
	name, err := ledger.NormalizeName(name)
	if err != nil {
		return Document{}, err
	}
	if !d.Valid() {
		return Document{}, ledger.ErrInvalidDelta
	}
	now := time.Now().UTC()
	q := s.rebind(`
		INSERT INTO documents (project, collection, name, wins, losses, ties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project, collection, name) DO UPDATE SET
			wins = documents.wins + excluded.wins,
			losses = documents.losses + excluded.losses,
			ties = documents.ties + excluded.ties,
			updated_at = excluded.updated_at
		RETURNING wins, losses, ties, created_at, updated_at
	`)
	doc := Document{Name: name}
	err = s.db.QueryRowContext(ctx, q, project, collection, name, d.Wins, d.Losses, d.Ties, now, now).
		Scan(&doc.Wins, &doc.Losses, &doc.Ties, timestamp{&doc.CreatedAt}, timestamp{&doc.UpdatedAt})
	if err != nil {
		return Document{}, fmt.Errorf("docstore: increment %q: %w", name, err)
	}
	return doc, nil
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, project, collection, name string) (Document, bool, error) {
	q := s.rebind(`SELECT name, wins, losses, ties, created_at, updated_at
		FROM documents WHERE project = ? AND collection = ? AND name = ?`)
	var doc Document
	err := s.db.QueryRowContext(ctx, q, project, collection, name).
		Scan(&doc.Name, &doc.Wins, &doc.Losses, &doc.Ties, timestamp{&doc.CreatedAt}, timestamp{&doc.UpdatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("docstore: get %q: %w", name, err)
	}
	return doc, true, nil
}

// List returns every document in the collection ordered by name.
func (s *Store) List(ctx context.Context, project, collection string) ([]Document, error) {
	q := s.rebind(`SELECT name, wins, losses, ties, created_at, updated_at
		FROM documents WHERE project = ? AND collection = ? ORDER BY name`)
	rows, err := s.db.QueryContext(ctx, q, project, collection)
	if err != nil {
		return nil, fmt.Errorf("docstore: list: %w", err)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.Name, &doc.Wins, &doc.Losses, &doc.Ties, timestamp{&doc.CreatedAt}, timestamp{&doc.UpdatedAt}); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// timestamp scans a column that the driver may hand back either as a
// time.Time or as text (SQLite RETURNING columns carry no declared type).
type timestamp struct{ t *time.Time }

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (ts timestamp) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case time.Time:
		*ts.t = v.UTC()
		return nil
	case nil:
		*ts.t = time.Time{}
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("docstore: cannot scan %T into timestamp", src)
	}
	// time.Time.String adds a monotonic clock suffix on some drivers
	if i := strings.Index(raw, " m="); i >= 0 {
		raw = raw[:i]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			*ts.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("docstore: unrecognised timestamp %q", raw)
}

// Collection binds a store to one project and collection so it can serve
// directly as a ledger.RemoteStore.
type Collection struct {
	store      *Store
	project    string
	collection string
}

func (s *Store) Collection(project, collection string) *Collection {
	return &Collection{store: s, project: project, collection: collection}
}

func (c *Collection) Increment(ctx context.Context, name string, d ledger.Delta) error {
	_, err := c.store.Increment(ctx, c.project, c.collection, name, d)
	return err
}

func (c *Collection) Get(ctx context.Context, name string) (ledger.PlayerRecord, bool, error) {
	doc, ok, err := c.store.Get(ctx, c.project, c.collection, name)
	return doc.Record(), ok, err
}

func (c *Collection) List(ctx context.Context) ([]ledger.PlayerRecord, error) {
	docs, err := c.store.List(ctx, c.project, c.collection)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.PlayerRecord, len(docs))
	for i, d := range docs {
		out[i] = d.Record()
	}
	return out, nil
}
