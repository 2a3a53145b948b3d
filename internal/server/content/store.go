package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrRecordNotFound = errors.New("file record not found")
	ErrDuplicateHash  = errors.New("content already stored for hash")
)

const contentSchema = `
CREATE TABLE IF NOT EXISTS file_records (
    id TEXT PRIMARY KEY,
    user TEXT NOT NULL,
    hash TEXT NOT NULL,
    blob_key TEXT NOT NULL,
    filename TEXT NOT NULL,
    size INTEGER NOT NULL,
    mime_type TEXT,
    created_at TEXT NOT NULL,
    UNIQUE (user, hash)
);

CREATE INDEX IF NOT EXISTS idx_file_records_user ON file_records(user);
`

// FileRecord is one stored piece of content, identified by its hash within a
// user's namespace. The (user, hash) uniqueness constraint is the real guard
// against the duplicate-upload race; application-level existence checks are
// only a fast path.
type FileRecord struct {
	ID        string  `db:"id"`
	User      string  `db:"user"`
	Hash      string  `db:"hash"`
	BlobKey   string  `db:"blob_key"`
	Filename  string  `db:"filename"`
	Size      int64   `db:"size"`
	MIMEType  *string `db:"mime_type"`
	CreatedAt string  `db:"created_at"`
}

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) (*Store, error) {
	if _, err := db.Exec(contentSchema); err != nil {
		return nil, fmt.Errorf("init content schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert stores a new file record. Returns ErrDuplicateHash when the
// uniqueness constraint on (user, hash) trips.
func (s *Store) Insert(ctx context.Context, rec *FileRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_records (id, user, hash, blob_key, filename, size, mime_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.User, rec.Hash, rec.BlobKey, rec.Filename, rec.Size, rec.MIMEType, rec.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateHash
		}
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

// GetByHash returns the record for the user's content hash.
func (s *Store) GetByHash(ctx context.Context, user, hash string) (*FileRecord, error) {
	var rec FileRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT id, user, hash, blob_key, filename, size, mime_type, created_at
		 FROM file_records WHERE user = ? AND hash = ?`, user, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file record: %w", err)
	}
	return &rec, nil
}

// GetByID returns the record with the given id.
func (s *Store) GetByID(ctx context.Context, user, id string) (*FileRecord, error) {
	var rec FileRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT id, user, hash, blob_key, filename, size, mime_type, created_at
		 FROM file_records WHERE user = ? AND id = ?`, user, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file record: %w", err)
	}
	return &rec, nil
}

// DeleteByHash removes the record for the user's content hash. Returns
// ErrRecordNotFound when nothing was deleted.
func (s *Store) DeleteByHash(ctx context.Context, user, hash string) (*FileRecord, error) {
	rec, err := s.GetByHash(ctx, user, hash)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM file_records WHERE user = ? AND hash = ?`, user, hash); err != nil {
		return nil, fmt.Errorf("delete file record: %w", err)
	}
	return rec, nil
}

// NewRecord builds a record with a fresh id and timestamp.
func NewRecord(id, user, hash, blobKey, filename string, size int64, mimeType *string) *FileRecord {
	return &FileRecord{
		ID:        id,
		User:      user,
		Hash:      hash,
		BlobKey:   blobKey,
		Filename:  filename,
		Size:      size,
		MIMEType:  mimeType,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
