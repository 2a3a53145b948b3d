package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/merklebox/merklebox/internal/db"
	"github.com/merklebox/merklebox/internal/merkle"
)

const treeStoreSchema = `
CREATE TABLE IF NOT EXISTS tree_entries (
    path TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    blob_ref TEXT,
    hash TEXT NOT NULL,
    size INTEGER NOT NULL,
    mime_type TEXT,
    last_modified TEXT NOT NULL -- RFC3339Nano
);

CREATE TABLE IF NOT EXISTS sync_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const lastSyncKey = "last_sync_at"

// TreeStore durably persists the local tree's leaf entries in SQLite so the
// daemon can rebuild its tree across restarts. The tree shape itself is never
// stored; it is reconstructed from the flat entry set.
type TreeStore struct {
	db *sqlx.DB
}

func NewTreeStore(dbPath string) (*TreeStore, error) {
	sqlDB, err := db.NewSqliteDB(db.WithPath(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open tree store: %w", err)
	}

	if _, err := sqlDB.Exec(treeStoreSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("init tree store schema: %w", err)
	}

	return &TreeStore{db: sqlDB}, nil
}

func (s *TreeStore) Close() error {
	return s.db.Close()
}

// Save replaces the persisted entry set wholesale, mirroring the tree's
// rebuild-from-full-leaf-set semantics.
func (s *TreeStore) Save(entries []*merkle.FileEntry) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tree_entries`); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}

	for _, e := range entries {
		_, err := tx.Exec(
			`INSERT INTO tree_entries (path, filename, blob_ref, hash, size, mime_type, last_modified)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.Path, e.Filename, e.BlobRef, e.Hash, e.Size, e.MIMEType,
			e.LastModified.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert entry %s: %w", e.Path, err)
		}
	}

	return tx.Commit()
}

// Set upserts one entry in place, for single-path mutations where a full
// rewrite would be wasteful.
func (s *TreeStore) Set(e *merkle.FileEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO tree_entries (path, filename, blob_ref, hash, size, mime_type, last_modified)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (path) DO UPDATE SET
		   filename = excluded.filename,
		   blob_ref = excluded.blob_ref,
		   hash = excluded.hash,
		   size = excluded.size,
		   mime_type = excluded.mime_type,
		   last_modified = excluded.last_modified`,
		e.Path, e.Filename, e.BlobRef, e.Hash, e.Size, e.MIMEType,
		e.LastModified.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set entry %s: %w", e.Path, err)
	}
	return nil
}

// Delete removes one entry; deleting an absent path is a no-op.
func (s *TreeStore) Delete(path string) error {
	_, err := s.db.Exec(`DELETE FROM tree_entries WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", path, err)
	}
	return nil
}

// Load returns all persisted entries.
func (s *TreeStore) Load() ([]*merkle.FileEntry, error) {
	type row struct {
		Path         string  `db:"path"`
		Filename     string  `db:"filename"`
		BlobRef      *string `db:"blob_ref"`
		Hash         string  `db:"hash"`
		Size         int64   `db:"size"`
		MIMEType     *string `db:"mime_type"`
		LastModified string  `db:"last_modified"`
	}

	var rows []row
	if err := s.db.Select(&rows, `SELECT path, filename, blob_ref, hash, size, mime_type, last_modified FROM tree_entries ORDER BY path`); err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}

	entries := make([]*merkle.FileEntry, 0, len(rows))
	for _, r := range rows {
		modified, err := time.Parse(time.RFC3339Nano, r.LastModified)
		if err != nil {
			return nil, fmt.Errorf("parse last_modified for %s: %w", r.Path, err)
		}
		entries = append(entries, &merkle.FileEntry{
			Path:         r.Path,
			Filename:     r.Filename,
			BlobRef:      r.BlobRef,
			Hash:         r.Hash,
			Size:         r.Size,
			MIMEType:     r.MIMEType,
			LastModified: modified,
		})
	}
	return entries, nil
}

// SetLastSyncAt records the completion time of a reconciliation cycle.
func (s *TreeStore) SetLastSyncAt(t time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		lastSyncKey, t.UTC().Format(time.RFC3339Nano))
	return err
}

// LastSyncAt returns the time of the last completed reconciliation cycle, or
// the zero time when no cycle has completed yet.
func (s *TreeStore) LastSyncAt() (time.Time, error) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM sync_meta WHERE key = ?`, lastSyncKey)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, value)
}
