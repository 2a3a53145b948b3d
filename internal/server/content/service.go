package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/merklebox/merklebox/internal/blob"
	"github.com/merklebox/merklebox/internal/utils"
)

// UploadResult describes durably stored content.
type UploadResult struct {
	BlobRef      string `json:"blobRef"`
	Hash         string `json:"hash"`
	Size         int64  `json:"size"`
	RetrievalURL string `json:"retrievalUrl"`
	Deduplicated bool   `json:"deduplicated"`
}

// Service stores content-addressed blobs for a user. Identical-hash content
// is deduplicated: the existing record's reference is returned and refreshed
// rather than re-stored.
type Service struct {
	store  *Store
	blob   blob.Client
	urlTTL time.Duration
}

func NewService(store *Store, blobClient blob.Client) *Service {
	return &Service{
		store:  store,
		blob:   blobClient,
		urlTTL: 5 * time.Minute,
	}
}

// Upload stores the content under its hash. The existence check before the
// insert is a fast path that skips redundant blob writes; the (user, hash)
// uniqueness constraint in the store is what actually guards the concurrent
// duplicate-upload race.
func (s *Service) Upload(ctx context.Context, user, path string, data []byte, mimeType, localRef string) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidRequest)
	}

	hash := utils.BytesHash(data)

	if existing, err := s.store.GetByHash(ctx, user, hash); err == nil {
		return s.refreshExisting(ctx, existing)
	} else if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	if mimeType == "" {
		mimeType = utils.DetectContentType(path)
	}

	blobKey := blobKeyFor(user, hash)
	if _, err := s.blob.PutObject(ctx, &blob.PutObjectParams{
		Key:         blobKey,
		Size:        int64(len(data)),
		ContentType: mimeType,
		Body:        bytes.NewReader(data),
	}); err != nil {
		return nil, fmt.Errorf("put blob: %w", err)
	}

	rec := NewRecord(uuid.NewString(), user, hash, blobKey, path, int64(len(data)), &mimeType)
	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateHash) {
			// lost the race to a concurrent identical upload; the winner's
			// record is authoritative
			existing, getErr := s.store.GetByHash(ctx, user, hash)
			if getErr != nil {
				return nil, getErr
			}
			return s.refreshExisting(ctx, existing)
		}
		return nil, err
	}

	url, err := s.blob.GetObjectPresigned(ctx, blobKey, s.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("presign blob: %w", err)
	}

	slog.Info("content upload", "user", user, "path", path, "hash", hash, "size", humanize.Bytes(uint64(len(data))))
	return &UploadResult{
		BlobRef:      rec.ID,
		Hash:         hash,
		Size:         rec.Size,
		RetrievalURL: url.URL,
	}, nil
}

// RetrievalURLByHash issues a time-limited URL for the user's content hash.
func (s *Service) RetrievalURLByHash(ctx context.Context, user, hash string, ttl time.Duration) (*blob.PresignedURL, error) {
	rec, err := s.store.GetByHash(ctx, user, hash)
	if err != nil {
		return nil, err
	}
	return s.blob.GetObjectPresigned(ctx, rec.BlobKey, ttl)
}

// RetrievalURLByID issues a time-limited URL for a file record id.
func (s *Service) RetrievalURLByID(ctx context.Context, user, id string, ttl time.Duration) (*blob.PresignedURL, error) {
	rec, err := s.store.GetByID(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return s.blob.GetObjectPresigned(ctx, rec.BlobKey, ttl)
}

// DeleteByHash removes the record and its blob. Used for cross-device
// propagation where the requesting side knows only the content hash.
func (s *Service) DeleteByHash(ctx context.Context, user, hash string) error {
	rec, err := s.store.DeleteByHash(ctx, user, hash)
	if err != nil {
		return err
	}

	if _, err := s.blob.DeleteObject(ctx, rec.BlobKey); err != nil {
		// record is gone; an orphaned blob is recoverable garbage, not a
		// failed delete
		slog.Warn("blob delete failed", "user", user, "key", rec.BlobKey, "error", err)
	}

	slog.Info("content delete", "user", user, "hash", hash)
	return nil
}

// Fetch reads content back out of the blob store by hash. Used by the dev
// profile where clients cannot resolve presigned URLs.
func (s *Service) Fetch(ctx context.Context, user, hash string) ([]byte, error) {
	rec, err := s.store.GetByHash(ctx, user, hash)
	if err != nil {
		return nil, err
	}

	obj, err := s.blob.GetObject(ctx, rec.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	defer obj.Body.Close()

	return io.ReadAll(obj.Body)
}

func (s *Service) refreshExisting(ctx context.Context, rec *FileRecord) (*UploadResult, error) {
	url, err := s.blob.GetObjectPresigned(ctx, rec.BlobKey, s.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("presign blob: %w", err)
	}

	slog.Debug("content dedup hit", "user", rec.User, "hash", rec.Hash)
	return &UploadResult{
		BlobRef:      rec.ID,
		Hash:         rec.Hash,
		Size:         rec.Size,
		RetrievalURL: url.URL,
		Deduplicated: true,
	}, nil
}

func blobKeyFor(user, hash string) string {
	return fmt.Sprintf("users/%s/blobs/%s", user, hash)
}
