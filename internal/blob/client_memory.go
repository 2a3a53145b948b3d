package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// MemoryClient is an in-process Client used by tests and the dev server
// profile. Presigned URLs use a mem:// scheme resolvable only by this client.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string]*memObject
}

type memObject struct {
	data         []byte
	etag         string
	contentType  string
	lastModified time.Time
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		objects: make(map[string]*memObject),
	}
}

func (m *MemoryClient) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	sum := md5.Sum(data)
	obj := &memObject{
		data:         data,
		etag:         hex.EncodeToString(sum[:]),
		contentType:  params.ContentType,
		lastModified: time.Now().UTC(),
	}

	m.mu.Lock()
	m.objects[params.Key] = obj
	m.mu.Unlock()

	return &PutObjectResponse{
		Key:          params.Key,
		ETag:         obj.etag,
		Size:         int64(len(data)),
		LastModified: obj.lastModified,
	}, nil
}

func (m *MemoryClient) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}

	return &GetObjectResponse{
		Body:         io.NopCloser(bytes.NewReader(obj.data)),
		ETag:         obj.etag,
		Size:         int64(len(obj.data)),
		LastModified: obj.lastModified,
	}, nil
}

func (m *MemoryClient) GetObjectPresigned(ctx context.Context, key string, ttl time.Duration) (*PresignedURL, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	return &PresignedURL{
		URL:       "mem://" + key,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

func (m *MemoryClient) DeleteObject(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return false, nil
	}
	delete(m.objects, key)
	return true, nil
}

func (m *MemoryClient) ObjectExists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryClient) ListObjects(ctx context.Context) ([]*ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	objects := make([]*ObjectInfo, 0, len(keys))
	for _, k := range keys {
		obj := m.objects[k]
		objects = append(objects, &ObjectInfo{
			Key:          k,
			ETag:         obj.etag,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified.Format(time.RFC3339),
		})
	}
	return objects, nil
}

var _ Client = (*MemoryClient)(nil)
