package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/merklebox/merklebox/internal/mbsdk"
	"github.com/merklebox/merklebox/internal/merkle"
	"github.com/merklebox/merklebox/internal/utils"
)

// fakeRemote emulates the server for one user: versioned per-device trees, a
// content-addressed blob map, and diffs with retrieval references attached.
type fakeRemote struct {
	mu       sync.Mutex
	trees    map[string]*merkle.Snapshot
	versions map[string]int64
	blobs    map[string][]byte

	uploadedPaths  []string
	uploadedHashes []string
	deletedHashes  []string

	uploadErr   error
	corruptHash string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		trees:    make(map[string]*merkle.Snapshot),
		versions: make(map[string]int64),
		blobs:    make(map[string][]byte),
	}
}

func (f *fakeRemote) UpdateTree(_ context.Context, deviceID string, snap *merkle.Snapshot) (*mbsdk.DeviceTreeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.versions[deviceID]++
	f.trees[deviceID] = snap
	return &mbsdk.DeviceTreeInfo{
		DeviceID:  deviceID,
		RootHash:  snap.RootHash,
		Version:   f.versions[deviceID],
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeRemote) ListDevices(_ context.Context) ([]*mbsdk.DeviceTreeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	devices := make([]*mbsdk.DeviceTreeInfo, 0, len(f.trees))
	for deviceID, snap := range f.trees {
		devices = append(devices, &mbsdk.DeviceTreeInfo{
			DeviceID: deviceID,
			RootHash: snap.RootHash,
			Version:  f.versions[deviceID],
		})
	}
	return devices, nil
}

func (f *fakeRemote) DiffAgainst(_ context.Context, deviceID string, snap *merkle.Snapshot) (*mbsdk.DiffResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var serverEntries []*merkle.FileEntry
	var serverRoot *string
	if stored, ok := f.trees[deviceID]; ok {
		serverEntries = stored.Files
		serverRoot = stored.RootHash
	} else {
		empty := merkle.EmptyRootHash
		serverRoot = &empty
	}

	result := merkle.Diff(serverEntries, snap.Files)

	resp := &mbsdk.DiffResponse{
		Deleted:        result.Deleted,
		ServerRootHash: serverRoot,
		CallerRootHash: snap.RootHash,
	}
	for _, e := range result.Added {
		resp.Added = append(resp.Added, withRetrievalURL(e))
	}
	for _, e := range result.Modified {
		resp.Modified = append(resp.Modified, withRetrievalURL(e))
	}
	return resp, nil
}

func withRetrievalURL(e *merkle.FileEntry) *merkle.FileEntry {
	cp := e.Clone()
	url := "fake://" + e.Hash
	cp.DownloadURL = &url
	return cp
}

func (f *fakeRemote) UploadFile(_ context.Context, params *mbsdk.UploadParams) (*mbsdk.UploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.uploadErr != nil {
		return nil, f.uploadErr
	}

	data, err := os.ReadFile(params.FilePath)
	if err != nil {
		return nil, err
	}
	hash := utils.BytesHash(data)
	f.blobs[hash] = data
	f.uploadedPaths = append(f.uploadedPaths, params.Path)
	f.uploadedHashes = append(f.uploadedHashes, hash)

	return &mbsdk.UploadResponse{
		BlobRef: "users/test/blobs/" + hash,
		Hash:    hash,
		Size:    int64(len(data)),
	}, nil
}

func (f *fakeRemote) DeleteByHash(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.blobs, hash)
	f.deletedHashes = append(f.deletedHashes, hash)
	return nil
}

func (f *fakeRemote) DownloadEntry(_ context.Context, entry *merkle.FileEntry) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if entry.Hash == f.corruptHash {
		return []byte("corrupted payload"), nil
	}
	data, ok := f.blobs[entry.Hash]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", entry.Hash)
	}
	return data, nil
}

func (f *fakeRemote) setUploadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadErr = err
}

func (f *fakeRemote) uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploadedPaths...)
}

func (f *fakeRemote) lastUploadedHash() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.uploadedHashes) == 0 {
		return ""
	}
	return f.uploadedHashes[len(f.uploadedHashes)-1]
}

// testPeer bundles one simulated device: its own workspace dir, tree, store,
// detector and engine, all sharing the common fake remote.
type testPeer struct {
	deviceID string
	rootDir  string
	tree     *merkle.Tree
	store    *TreeStore
	guard    *DownloadGuard
	detector *ChangeDetector
	engine   *SyncEngine
}

func newTestPeer(t *testing.T, deviceID string, remote Remote) *testPeer {
	t.Helper()

	rootDir := t.TempDir()
	store, err := NewTreeStore(filepath.Join(t.TempDir(), "tree.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tree := merkle.NewTree()
	guard := NewDownloadGuard(DefaultRecentDownloadTTL)
	ignore := NewIgnoreList()

	detector := NewChangeDetector(rootDir, deviceID, tree, store, remote, guard, ignore,
		WithDebounce(10*time.Millisecond), WithDrainDelay(0))
	engine := NewSyncEngine(rootDir, deviceID, tree, store, remote, guard, ignore, detector)

	return &testPeer{
		deviceID: deviceID,
		rootDir:  rootDir,
		tree:     tree,
		store:    store,
		guard:    guard,
		detector: detector,
		engine:   engine,
	}
}

func (p *testPeer) writeFile(t *testing.T, rel, content string) string {
	t.Helper()
	absPath := filepath.Join(p.rootDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(absPath), 0o755))
	require.NoError(t, os.WriteFile(absPath, []byte(content), 0o644))
	return absPath
}

// waitFor polls until the condition holds or the deadline expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition never met", msg)
}
