package source

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// IndexEntry records one downloaded image.
type IndexEntry struct {
	FetchedAt time.Time
	URL       string // Requested URL, including any query
	File      string // Local file the bytes were written to
	Ext       string
	Size      int64
}

// Index is a SQLite-backed record of downloaded images, keyed by URL.
// It lets repeated downloads of the same URL reuse the local copy.
type Index struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenIndex opens (creating if needed) the download index at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createIndexSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Index{db: db, path: path}, nil
}

func createIndexSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS downloads (
			url TEXT NOT NULL PRIMARY KEY,
			file TEXT NOT NULL,
			ext TEXT NOT NULL,
			size INTEGER NOT NULL,
			fetched_at INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Record stores or replaces the entry for e.URL.
func (ix *Index) Record(e IndexEntry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if e.FetchedAt.IsZero() {
		e.FetchedAt = time.Now()
	}
	_, err := ix.db.Exec(
		"INSERT OR REPLACE INTO downloads (url, file, ext, size, fetched_at) VALUES (?, ?, ?, ?, ?)",
		e.URL, e.File, e.Ext, e.Size, e.FetchedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record download %s: %w", e.URL, err)
	}
	return nil
}

// Lookup returns the entry for url. The bool is false when there is none.
func (ix *Index) Lookup(url string) (IndexEntry, bool, error) {
	var (
		e       IndexEntry
		fetched int64
	)
	err := ix.db.QueryRow(
		"SELECT url, file, ext, size, fetched_at FROM downloads WHERE url = ?", url,
	).Scan(&e.URL, &e.File, &e.Ext, &e.Size, &fetched)

	if errors.Is(err, sql.ErrNoRows) {
		return IndexEntry{}, false, nil
	}
	if err != nil {
		return IndexEntry{}, false, fmt.Errorf("failed to query download: %w", err)
	}
	e.FetchedAt = time.Unix(0, fetched)
	return e, true, nil
}

// Forget removes the entry for url.
func (ix *Index) Forget(url string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, err := ix.db.Exec("DELETE FROM downloads WHERE url = ?", url); err != nil {
		return fmt.Errorf("failed to forget download %s: %w", url, err)
	}
	return nil
}

// Count returns the number of recorded downloads.
func (ix *Index) Count() (int, error) {
	var n int
	if err := ix.db.QueryRow("SELECT COUNT(*) FROM downloads").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count downloads: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (ix *Index) Close() error {
	if err := ix.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
