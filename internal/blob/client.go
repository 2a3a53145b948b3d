package blob

import (
	"context"
	"io"
	"time"
)

// Client is the object-store capability consumed by the sync core: a
// key-addressable put/get/delete/presign surface. Keys are content-addressed
// blob keys, never file paths.
type Client interface {
	PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error)
	GetObject(ctx context.Context, key string) (*GetObjectResponse, error)
	GetObjectPresigned(ctx context.Context, key string, ttl time.Duration) (*PresignedURL, error)
	DeleteObject(ctx context.Context, key string) (bool, error)
	ObjectExists(ctx context.Context, key string) (bool, error)
	ListObjects(ctx context.Context) ([]*ObjectInfo, error)
}

type PutObjectParams struct {
	Key         string
	Size        int64
	ContentType string
	Body        io.Reader
}

type PutObjectResponse struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

type GetObjectResponse struct {
	Body         io.ReadCloser
	ETag         string
	Size         int64
	LastModified time.Time
}

type PresignedURL struct {
	URL       string
	ExpiresAt time.Time
}

type ObjectInfo struct {
	Key          string `json:"key" db:"key"`
	ETag         string `json:"etag" db:"etag"`
	Size         int64  `json:"size" db:"size"`
	LastModified string `json:"lastModified" db:"last_modified"`
}
