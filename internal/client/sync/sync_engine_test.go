package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merklebox/merklebox/internal/utils"
)

// seedPeerFile writes a file on the peer, runs the detector pipeline to
// upload it, and waits for the snapshot to land on the fake remote.
func seedPeerFile(t *testing.T, peer *testPeer, remote *fakeRemote, rel, content string) {
	t.Helper()
	absPath := peer.writeFile(t, rel, content)
	peer.detector.HandleEvent(absPath, OpCreate)
	waitFor(t, 2*time.Second, func() bool {
		remote.mu.Lock()
		defer remote.mu.Unlock()
		snap, ok := remote.trees[peer.deviceID]
		if !ok {
			return false
		}
		for _, e := range snap.Files {
			if e.Path == rel && e.BlobRef != nil {
				return true
			}
		}
		return false
	}, "seed file never reached the remote")
}

func TestSyncEngine_FilePropagatesBetweenDevices(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	laptop := newTestPeer(t, "laptop", remote)
	desktop := newTestPeer(t, "desktop", remote)

	seedPeerFile(t, laptop, remote, "shared/report.md", "quarterly numbers")

	require.NoError(t, desktop.engine.RunCycle(ctx))

	downloaded := filepath.Join(desktop.rootDir, "shared", "report.md")
	data, err := os.ReadFile(downloaded)
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", string(data))

	entry := desktop.tree.Get("shared/report.md")
	require.NotNil(t, entry)
	assert.Equal(t, utils.BytesHash([]byte("quarterly numbers")), entry.Hash)
	assert.Nil(t, entry.DownloadURL)

	// the download must not echo back as an upload from the desktop
	assert.Equal(t, []string{"shared/report.md"}, remote.uploads())

	// with both trees converged, the next cycle moves nothing
	before := len(remote.uploads())
	require.NoError(t, desktop.engine.RunCycle(ctx))
	assert.Len(t, remote.uploads(), before)
}

func TestSyncEngine_DownloadEchoEventDiscarded(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	laptop := newTestPeer(t, "laptop", remote)
	desktop := newTestPeer(t, "desktop", remote)

	seedPeerFile(t, laptop, remote, "photo.jpg", "jpeg bytes")

	require.NoError(t, desktop.engine.RunCycle(ctx))

	// the watcher delivers the write event for the file the engine just
	// wrote; it must be recognized as an echo
	downloaded := filepath.Join(desktop.rootDir, "photo.jpg")
	desktop.detector.HandleEvent(downloaded, OpModify)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"photo.jpg"}, remote.uploads())
}

func TestSyncEngine_DeletePropagates(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	laptop := newTestPeer(t, "laptop", remote)
	desktop := newTestPeer(t, "desktop", remote)

	seedPeerFile(t, laptop, remote, "a.txt", "content a")
	seedPeerFile(t, laptop, remote, "b.txt", "content b")
	require.NoError(t, desktop.engine.RunCycle(ctx))
	require.FileExists(t, filepath.Join(desktop.rootDir, "a.txt"))

	// laptop deletes a.txt locally
	absA := filepath.Join(laptop.rootDir, "a.txt")
	require.NoError(t, os.Remove(absA))
	laptop.detector.HandleEvent(absA, OpDelete)
	_, err := laptop.engine.remote.UpdateTree(ctx, "laptop", laptop.tree.Snapshot())
	require.NoError(t, err)

	require.NoError(t, desktop.engine.RunCycle(ctx))

	assert.NoFileExists(t, filepath.Join(desktop.rootDir, "a.txt"))
	assert.Nil(t, desktop.tree.Get("a.txt"))
	assert.FileExists(t, filepath.Join(desktop.rootDir, "b.txt"))
}

func TestSyncEngine_EmptyPeerTreeDoesNotDelete(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	laptop := newTestPeer(t, "laptop", remote)
	phone := newTestPeer(t, "phone", remote)

	seedPeerFile(t, laptop, remote, "keep.txt", "precious")

	// the phone registers with an empty tree before its first cycle pulls
	// anything down
	_, err := remote.UpdateTree(ctx, "phone", phone.tree.Snapshot())
	require.NoError(t, err)

	require.NoError(t, laptop.engine.RunCycle(ctx))

	assert.FileExists(t, filepath.Join(laptop.rootDir, "keep.txt"))
	assert.NotNil(t, laptop.tree.Get("keep.txt"))
}

func TestSyncEngine_CorruptDownloadRejected(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	laptop := newTestPeer(t, "laptop", remote)
	desktop := newTestPeer(t, "desktop", remote)

	seedPeerFile(t, laptop, remote, "good.txt", "good bytes")
	seedPeerFile(t, laptop, remote, "bad.txt", "bad bytes")
	remote.corruptHash = utils.BytesHash([]byte("bad bytes"))

	// per-item failure never fails the cycle
	require.NoError(t, desktop.engine.RunCycle(ctx))

	assert.FileExists(t, filepath.Join(desktop.rootDir, "good.txt"))
	assert.NoFileExists(t, filepath.Join(desktop.rootDir, "bad.txt"))
	assert.Nil(t, desktop.tree.Get("bad.txt"))
	assert.False(t, desktop.guard.IsDownloading("bad.txt"))

	// once the corruption clears, the next cycle completes the item
	remote.corruptHash = ""
	require.NoError(t, desktop.engine.RunCycle(ctx))
	assert.FileExists(t, filepath.Join(desktop.rootDir, "bad.txt"))
}

func TestSyncEngine_SameContentTwoPaths(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	laptop := newTestPeer(t, "laptop", remote)
	desktop := newTestPeer(t, "desktop", remote)

	seedPeerFile(t, laptop, remote, "one.txt", "same bytes")
	seedPeerFile(t, laptop, remote, "two.txt", "same bytes")

	require.NoError(t, desktop.engine.RunCycle(ctx))

	for _, rel := range []string{"one.txt", "two.txt"} {
		data, err := os.ReadFile(filepath.Join(desktop.rootDir, rel))
		require.NoError(t, err)
		assert.Equal(t, "same bytes", string(data))
	}
}

func TestSyncEngine_CyclesNeverOverlap(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	peer.engine.muSync.Lock()
	defer peer.engine.muSync.Unlock()

	err := peer.engine.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrSyncAlreadyRunning)
}

func TestSyncEngine_RecordsLastSyncTime(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	before, err := peer.store.LastSyncAt()
	require.NoError(t, err)
	assert.True(t, before.IsZero())

	require.NoError(t, peer.engine.RunCycle(context.Background()))

	after, err := peer.store.LastSyncAt()
	require.NoError(t, err)
	assert.False(t, after.IsZero())
}

func TestSyncEngine_ModifiedContentReplaces(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	laptop := newTestPeer(t, "laptop", remote)
	desktop := newTestPeer(t, "desktop", remote)

	seedPeerFile(t, laptop, remote, "draft.txt", "first draft")
	require.NoError(t, desktop.engine.RunCycle(ctx))

	// laptop rewrites the file
	absPath := filepath.Join(laptop.rootDir, "draft.txt")
	require.NoError(t, os.WriteFile(absPath, []byte("second draft"), 0o644))
	laptop.detector.HandleEvent(absPath, OpModify)
	waitFor(t, 2*time.Second, func() bool {
		return remote.lastUploadedHash() == utils.BytesHash([]byte("second draft"))
	}, "rewrite never uploaded")

	require.NoError(t, desktop.engine.RunCycle(ctx))

	data, err := os.ReadFile(filepath.Join(desktop.rootDir, "draft.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second draft", string(data))
}
