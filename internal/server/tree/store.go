package tree

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/merklebox/merklebox/internal/merkle"
)

var ErrTreeNotFound = errors.New("device tree not found")

const treeSchema = `
CREATE TABLE IF NOT EXISTS device_trees (
    user TEXT NOT NULL,
    device_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    root_hash TEXT,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (user, device_id)
);

CREATE TABLE IF NOT EXISTS device_tree_files (
    user TEXT NOT NULL,
    device_id TEXT NOT NULL,
    path TEXT NOT NULL,
    filename TEXT NOT NULL,
    blob_ref TEXT,
    hash TEXT NOT NULL,
    size INTEGER NOT NULL,
    mime_type TEXT,
    last_modified TEXT NOT NULL,
    PRIMARY KEY (user, device_id, path)
);

CREATE INDEX IF NOT EXISTS idx_tree_files_hash ON device_tree_files(user, hash);
`

// DeviceTreeInfo describes one stored device tree.
type DeviceTreeInfo struct {
	DeviceID  string    `json:"deviceId" db:"device_id"`
	RootHash  *string   `json:"rootHash" db:"root_hash"`
	Version   int64     `json:"version" db:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type treeRow struct {
	DeviceID  string  `db:"device_id"`
	RootHash  *string `db:"root_hash"`
	Version   int64   `db:"version"`
	UpdatedAt string  `db:"updated_at"`
}

type fileRow struct {
	Path         string  `db:"path"`
	Filename     string  `db:"filename"`
	BlobRef      *string `db:"blob_ref"`
	Hash         string  `db:"hash"`
	Size         int64   `db:"size"`
	MIMEType     *string `db:"mime_type"`
	LastModified string  `db:"last_modified"`
}

// Store persists one authoritative device tree per (user, device). Updates
// are wholesale snapshot replacements with a version bump, never patches.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) (*Store, error) {
	if _, err := db.Exec(treeSchema); err != nil {
		return nil, fmt.Errorf("init tree schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Replace stores the snapshot as the new authoritative tree for the device,
// incrementing the version. Two concurrent replaces for the same device race
// with last-write-wins.
func (s *Store) Replace(ctx context.Context, user, deviceID string, snap *merkle.Snapshot) (*DeviceTreeInfo, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var version int64
	err = tx.GetContext(ctx, &version,
		`SELECT version FROM device_trees WHERE user = ? AND device_id = ?`, user, deviceID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		version = 1
	case err != nil:
		return nil, fmt.Errorf("get version: %w", err)
	default:
		version++
	}

	rootHash := snap.RootHash
	_, err = tx.ExecContext(ctx,
		`INSERT INTO device_trees (user, device_id, version, root_hash, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user, device_id) DO UPDATE SET
		   version = excluded.version,
		   root_hash = excluded.root_hash,
		   updated_at = excluded.updated_at`,
		user, deviceID, version, rootHash, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("upsert tree: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM device_tree_files WHERE user = ? AND device_id = ?`, user, deviceID); err != nil {
		return nil, fmt.Errorf("clear tree files: %w", err)
	}

	for _, f := range snap.Files {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO device_tree_files
			   (user, device_id, path, filename, blob_ref, hash, size, mime_type, last_modified)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			user, deviceID, f.Path, f.Filename, f.BlobRef, f.Hash, f.Size, f.MIMEType,
			f.LastModified.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return nil, fmt.Errorf("insert tree file %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &DeviceTreeInfo{
		DeviceID:  deviceID,
		RootHash:  rootHash,
		Version:   version,
		UpdatedAt: now,
	}, nil
}

// Get loads the stored snapshot for a device. Returns ErrTreeNotFound when
// the device has never pushed a tree.
func (s *Store) Get(ctx context.Context, user, deviceID string) (*merkle.Snapshot, *DeviceTreeInfo, error) {
	var row treeRow
	err := s.db.GetContext(ctx, &row,
		`SELECT device_id, version, root_hash, updated_at FROM device_trees
		 WHERE user = ? AND device_id = ?`, user, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrTreeNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get tree: %w", err)
	}

	info, err := rowToInfo(&row)
	if err != nil {
		return nil, nil, err
	}

	entries, err := s.entries(ctx, user, deviceID)
	if err != nil {
		return nil, nil, err
	}

	return &merkle.Snapshot{
		RootHash:  info.RootHash,
		Timestamp: info.UpdatedAt,
		Files:     entries,
	}, info, nil
}

// Entries returns the stored leaf entries for a device, or an empty slice for
// an unknown device (absence is an empty tree for diff purposes).
func (s *Store) Entries(ctx context.Context, user, deviceID string) ([]*merkle.FileEntry, error) {
	return s.entries(ctx, user, deviceID)
}

// List returns info for all of the user's device trees.
func (s *Store) List(ctx context.Context, user string) ([]*DeviceTreeInfo, error) {
	var rows []treeRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT device_id, version, root_hash, updated_at FROM device_trees
		 WHERE user = ? ORDER BY device_id`, user)
	if err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}

	infos := make([]*DeviceTreeInfo, 0, len(rows))
	for i := range rows {
		info, err := rowToInfo(&rows[i])
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *Store) entries(ctx context.Context, user, deviceID string) ([]*merkle.FileEntry, error) {
	var rows []fileRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT path, filename, blob_ref, hash, size, mime_type, last_modified
		 FROM device_tree_files WHERE user = ? AND device_id = ? ORDER BY path`,
		user, deviceID)
	if err != nil {
		return nil, fmt.Errorf("select tree files: %w", err)
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

func rowToInfo(row *treeRow) (*DeviceTreeInfo, error) {
	updatedAt, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &DeviceTreeInfo{
		DeviceID:  row.DeviceID,
		RootHash:  row.RootHash,
		Version:   row.Version,
		UpdatedAt: updatedAt,
	}, nil
}
