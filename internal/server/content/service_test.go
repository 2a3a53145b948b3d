package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merklebox/merklebox/internal/blob"
	"github.com/merklebox/merklebox/internal/db"
	"github.com/merklebox/merklebox/internal/utils"
)

func newTestService(t *testing.T) (*Service, *blob.MemoryClient) {
	t.Helper()

	sqlDB, err := db.NewSqliteDB(db.WithPath(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store, err := NewStore(sqlDB)
	require.NoError(t, err)

	blobClient := blob.NewMemoryClient()
	return NewService(store, blobClient), blobClient
}

func TestService_UploadStoresContent(t *testing.T) {
	svc, blobClient := newTestService(t)
	ctx := context.Background()

	body := []byte("hello merkle")
	result, err := svc.Upload(ctx, "alice", "notes.txt", body, "text/plain", "")
	require.NoError(t, err)

	assert.Equal(t, utils.BytesHash(body), result.Hash)
	assert.Equal(t, int64(len(body)), result.Size)
	assert.NotEmpty(t, result.BlobRef)
	assert.NotEmpty(t, result.RetrievalURL)
	assert.False(t, result.Deduplicated)

	exists, err := blobClient.ObjectExists(ctx, "users/alice/blobs/"+result.Hash)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestService_UploadDeduplicatesByHash(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	body := []byte("same bytes")
	first, err := svc.Upload(ctx, "alice", "a/notes.txt", body, "", "")
	require.NoError(t, err)

	// identical content under a different path must reuse the record
	second, err := svc.Upload(ctx, "alice", "b/copy.txt", body, "", "")
	require.NoError(t, err)

	assert.Equal(t, first.BlobRef, second.BlobRef)
	assert.Equal(t, first.Hash, second.Hash)
	assert.True(t, second.Deduplicated)
}

func TestService_UploadSameContentDifferentUsers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	body := []byte("shared bytes")
	alice, err := svc.Upload(ctx, "alice", "f.txt", body, "", "")
	require.NoError(t, err)
	bob, err := svc.Upload(ctx, "bob", "f.txt", body, "", "")
	require.NoError(t, err)

	assert.NotEqual(t, alice.BlobRef, bob.BlobRef, "dedup is scoped per user")
}

func TestService_UploadRejectsEmptyContent(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Upload(context.Background(), "alice", "empty.txt", nil, "", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestService_DeleteByHash(t *testing.T) {
	svc, blobClient := newTestService(t)
	ctx := context.Background()

	body := []byte("to be deleted")
	result, err := svc.Upload(ctx, "alice", "doomed.txt", body, "", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteByHash(ctx, "alice", result.Hash))

	exists, err := blobClient.ObjectExists(ctx, "users/alice/blobs/"+result.Hash)
	require.NoError(t, err)
	assert.False(t, exists)

	err = svc.DeleteByHash(ctx, "alice", result.Hash)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestService_RetrievalURLByHash(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Upload(ctx, "alice", "f.txt", []byte("content"), "", "")
	require.NoError(t, err)

	url, err := svc.RetrievalURLByHash(ctx, "alice", result.Hash, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, url.URL)

	_, err = svc.RetrievalURLByHash(ctx, "alice", "deadbeef", 0)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestService_FetchRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	body := []byte("round trip")
	result, err := svc.Upload(ctx, "alice", "f.txt", body, "", "")
	require.NoError(t, err)

	data, err := svc.Fetch(ctx, "alice", result.Hash)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestStore_UniqueConstraint(t *testing.T) {
	sqlDB, err := db.NewSqliteDB(db.WithPath(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store, err := NewStore(sqlDB)
	require.NoError(t, err)

	ctx := context.Background()
	rec := NewRecord("id-1", "alice", "hash-1", "key-1", "f.txt", 3, nil)
	require.NoError(t, store.Insert(ctx, rec))

	dup := NewRecord("id-2", "alice", "hash-1", "key-2", "g.txt", 3, nil)
	err = store.Insert(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateHash)
}
