// Package cache persists resolved product fields keyed by URL.
//
// The Store is safe for concurrent use. The underlying *sqlx.DB is a handle
// pool: every statement checks out its own connection, the database runs in
// WAL mode so readers never wait on an in-flight write, and SQLite serializes
// writes to the same key. Last write wins.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// DefaultTTL is how long an entry is served after it was stored.
	DefaultTTL = 24 * time.Hour
	// DefaultBusyTimeout bounds how long a writer waits for the lock.
	DefaultBusyTimeout = 5 * time.Second
)

const schema = `CREATE TABLE IF NOT EXISTS cache (
	url         TEXT PRIMARY KEY,
	fields_json TEXT NOT NULL,
	stored_at   INTEGER NOT NULL
)`

// Entry is a cached field set.
type Entry struct {
	URL      string
	Fields   models.Fields
	StoredAt time.Time
}

type row struct {
	URL        string `db:"url"`
	FieldsJSON string `db:"fields_json"`
	StoredAt   int64  `db:"stored_at"`
}

// Options configures a Store.
type Options struct {
	Path string
	TTL  time.Duration
	// MemorySize is the capacity of the in-process front layer; 0 disables it.
	MemorySize int
	// MaxConns caps the handle pool, usually the worker concurrency.
	MaxConns int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is the SQLite-backed cache.
type Store struct {
	db     *sqlx.DB
	ttl    time.Duration
	memory *expirable.LRU[string, Entry]
	now    func() time.Time
}

// Open opens or creates the cache database and its table.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("cache path cannot be empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	db, err := sqlx.Open("sqlite3", dataSourceName(opts.Path))
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
		db.SetMaxIdleConns(opts.MaxConns)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}

	s := &Store{
		db:  db,
		ttl: opts.TTL,
		now: opts.Now,
	}
	if opts.MemorySize > 0 {
		s.memory = expirable.NewLRU[string, Entry](opts.MemorySize, nil, opts.TTL)
	}
	return s, nil
}

// dataSourceName builds a SQLite URI for path. The path is escaped so that
// '?', '#' and '%' in file names do not leak into the query string.
func dataSourceName(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", strconv.FormatInt(DefaultBusyTimeout.Milliseconds(), 10))
	params.Set("_synchronous", "NORMAL")
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?" + params.Encode()
}

// Lookup returns the entry for url when it is fresh and fully populated.
func (s *Store) Lookup(ctx context.Context, url string) (Entry, bool, error) {
	if s.memory != nil {
		if entry, ok := s.memory.Get(url); ok {
			if s.valid(entry) {
				return entry, true, nil
			}
			s.memory.Remove(url)
		}
	}

	var r row
	err := s.db.GetContext(ctx, &r, `SELECT url, fields_json, stored_at FROM cache WHERE url = ?`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("select cache entry: %w", err)
	}

	fields := models.Fields{}
	if err := json.Unmarshal([]byte(r.FieldsJSON), &fields); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry for %s: %w", url, err)
	}
	entry := Entry{
		URL:      r.URL,
		Fields:   fields.Clone(),
		StoredAt: time.Unix(0, r.StoredAt),
	}
	if !s.valid(entry) {
		return Entry{}, false, nil
	}

	if s.memory != nil {
		s.memory.Add(url, entry)
	}
	return entry, true, nil
}

// Store upserts fields for url. Field sets with nothing resolved are not
// written, so a later run retries them.
func (s *Store) Store(ctx context.Context, url string, fields models.Fields) (bool, error) {
	if !fields.Resolved() {
		return false, nil
	}

	entry := Entry{URL: url, Fields: fields.Clone(), StoredAt: s.now()}
	payload, err := json.Marshal(entry.Fields)
	if err != nil {
		return false, fmt.Errorf("encode cache entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache (url, fields_json, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET fields_json = excluded.fields_json, stored_at = excluded.stored_at`,
		url, string(payload), entry.StoredAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("upsert cache entry: %w", err)
	}

	if s.memory != nil {
		s.memory.Add(url, entry)
	}
	return true, nil
}

// Close releases the handle pool.
func (s *Store) Close() error {
	if s.memory != nil {
		s.memory.Purge()
	}
	return s.db.Close()
}

func (s *Store) valid(e Entry) bool {
	if s.now().Sub(e.StoredAt) >= s.ttl {
		return false
	}
	return e.Fields.Complete()
}
