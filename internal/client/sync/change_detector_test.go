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

func TestChangeDetector_RapidWritesCoalesceToOneUpload(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	absPath := peer.writeFile(t, "notes.txt", "v1")
	peer.detector.HandleEvent(absPath, OpModify)

	require.NoError(t, os.WriteFile(absPath, []byte("v2"), 0o644))
	peer.detector.HandleEvent(absPath, OpModify)

	require.NoError(t, os.WriteFile(absPath, []byte("final"), 0o644))
	peer.detector.HandleEvent(absPath, OpModify)

	waitFor(t, 2*time.Second, func() bool {
		return len(remote.uploads()) > 0
	}, "upload never happened")

	// three writes inside the debounce window produce exactly one upload,
	// carrying the final content
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"notes.txt"}, remote.uploads())
	assert.Equal(t, utils.BytesHash([]byte("final")), remote.lastUploadedHash())

	entry := peer.tree.Get("notes.txt")
	require.NotNil(t, entry)
	require.NotNil(t, entry.BlobRef)
	assert.Equal(t, utils.BytesHash([]byte("final")), entry.Hash)
}

func TestChangeDetector_DownloadEchoSuppressed(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	content := []byte("synced content")
	absPath := peer.writeFile(t, "synced.txt", string(content))

	// simulate the sync engine having just written this file
	peer.guard.BeginDownload("synced.txt")
	peer.guard.EndDownload("synced.txt", utils.BytesHash(content))

	peer.detector.HandleEvent(absPath, OpModify)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, remote.uploads())
	assert.Nil(t, peer.tree.Get("synced.txt"))
}

func TestChangeDetector_EventDuringDownloadDiscarded(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	absPath := peer.writeFile(t, "inflight.txt", "partial")
	peer.guard.BeginDownload("inflight.txt")

	peer.detector.HandleEvent(absPath, OpModify)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, remote.uploads())
}

func TestChangeDetector_EditAfterDownloadNotSuppressed(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	peer.guard.BeginDownload("doc.txt")
	peer.guard.EndDownload("doc.txt", utils.BytesHash([]byte("downloaded")))

	// the user overwrites the freshly downloaded file with new content
	absPath := peer.writeFile(t, "doc.txt", "user edit")
	peer.detector.HandleEvent(absPath, OpModify)

	waitFor(t, 2*time.Second, func() bool {
		return len(remote.uploads()) == 1
	}, "genuine edit after download was not uploaded")
	assert.Equal(t, utils.BytesHash([]byte("user edit")), remote.lastUploadedHash())
}

func TestChangeDetector_DeletePropagatesByHash(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	absPath := peer.writeFile(t, "gone.txt", "bye")
	peer.detector.HandleEvent(absPath, OpCreate)

	waitFor(t, 2*time.Second, func() bool {
		return len(remote.uploads()) == 1
	}, "upload never happened")
	hash := remote.lastUploadedHash()

	require.NoError(t, os.Remove(absPath))
	peer.detector.HandleEvent(absPath, OpDelete)

	assert.Equal(t, []string{hash}, remote.deletedHashes)
	assert.Nil(t, peer.tree.Get("gone.txt"))

	// a second remove event for the same path is a no-op
	peer.detector.HandleEvent(absPath, OpDelete)
	assert.Len(t, remote.deletedHashes, 1)
}

func TestChangeDetector_EmptyFilesNeverUploaded(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	absPath := peer.writeFile(t, "empty.txt", "")
	peer.detector.HandleEvent(absPath, OpCreate)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, remote.uploads())
	assert.Nil(t, peer.tree.Get("empty.txt"))
	assert.Empty(t, peer.detector.PendingUploads())
}

func TestChangeDetector_FileTruncatedToEmptyDroppedFromQueue(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	// park the item in the queue with a failing upload, then truncate it
	remote.setUploadErr(os.ErrDeadlineExceeded)
	absPath := peer.writeFile(t, "shrunk.txt", "payload")
	peer.detector.HandleEvent(absPath, OpCreate)

	waitFor(t, 2*time.Second, func() bool {
		return len(peer.detector.PendingUploads()) == 1
	}, "failed upload not requeued")

	remote.setUploadErr(nil)
	require.NoError(t, os.WriteFile(absPath, nil, 0o644))
	peer.detector.Drain()

	// zero-byte content is dropped instead of retried forever
	assert.Empty(t, remote.uploads())
	assert.Empty(t, peer.detector.PendingUploads())
}

func TestChangeDetector_DirectoryDeleteRemovesChildren(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	aHash := utils.BytesHash([]byte("alpha"))
	bHash := utils.BytesHash([]byte("beta"))
	peer.detector.HandleEvent(peer.writeFile(t, "docs/a.txt", "alpha"), OpCreate)
	peer.detector.HandleEvent(peer.writeFile(t, "docs/b.txt", "beta"), OpCreate)
	peer.detector.HandleEvent(peer.writeFile(t, "docs2/keep.txt", "keep"), OpCreate)
	peer.detector.HandleEvent(peer.writeFile(t, "docs-other.txt", "keep too"), OpCreate)
	waitFor(t, 2*time.Second, func() bool {
		return len(remote.uploads()) == 4
	}, "seed uploads never finished")

	// moving a directory away yields one remove event for the directory path
	docsDir := filepath.Join(peer.rootDir, "docs")
	require.NoError(t, os.RemoveAll(docsDir))
	peer.detector.HandleEvent(docsDir, OpDelete)

	assert.Nil(t, peer.tree.Get("docs/a.txt"))
	assert.Nil(t, peer.tree.Get("docs/b.txt"))
	assert.ElementsMatch(t, []string{aHash, bHash}, remote.deletedHashes)

	// sibling paths sharing the name prefix are untouched
	assert.NotNil(t, peer.tree.Get("docs2/keep.txt"))
	assert.NotNil(t, peer.tree.Get("docs-other.txt"))
}

func TestChangeDetector_IgnoredPathsNeverTracked(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	for _, rel := range []string{".hidden", "cache.tmp", "debug.log", ".git/config"} {
		absPath := peer.writeFile(t, rel, "noise")
		peer.detector.HandleEvent(absPath, OpCreate)
	}

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, remote.uploads())
	assert.Equal(t, 0, peer.tree.Len())
}

func TestChangeDetector_FailedUploadRetriedOnNextDrain(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	remote.setUploadErr(os.ErrDeadlineExceeded)
	absPath := peer.writeFile(t, "flaky.txt", "payload")
	peer.detector.HandleEvent(absPath, OpCreate)

	waitFor(t, 2*time.Second, func() bool {
		return len(peer.detector.PendingUploads()) == 1
	}, "failed upload not requeued")

	remote.setUploadErr(nil)
	peer.detector.Drain()

	assert.Equal(t, []string{"flaky.txt"}, remote.uploads())
	assert.Empty(t, peer.detector.PendingUploads())
}

func TestChangeDetector_ScanWorkspacePicksUpOfflineChanges(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	// state from a previous run: one tracked file that no longer exists and
	// one that was edited while the daemon was down
	stale := peer.writeFile(t, "edited.txt", "old content")
	peer.detector.HandleEvent(stale, OpCreate)
	waitFor(t, 2*time.Second, func() bool { return len(remote.uploads()) == 1 }, "seed upload")

	removedHash := utils.BytesHash([]byte("to be removed"))
	removedAbs := peer.writeFile(t, "removed.txt", "to be removed")
	peer.detector.HandleEvent(removedAbs, OpCreate)
	waitFor(t, 2*time.Second, func() bool { return len(remote.uploads()) == 2 }, "seed upload 2")

	require.NoError(t, os.WriteFile(stale, []byte("edited offline"), 0o644))
	require.NoError(t, os.Remove(removedAbs))

	require.NoError(t, peer.detector.ScanWorkspace(context.Background()))

	waitFor(t, 2*time.Second, func() bool {
		return remote.lastUploadedHash() == utils.BytesHash([]byte("edited offline"))
	}, "offline edit not re-uploaded")

	assert.Nil(t, peer.tree.Get("removed.txt"))
	assert.Contains(t, remote.deletedHashes, removedHash)
}

func TestChangeDetector_EventOutsideWorkspaceIgnored(t *testing.T) {
	remote := newFakeRemote()
	peer := newTestPeer(t, "laptop", remote)

	outside := filepath.Join(t.TempDir(), "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	peer.detector.HandleEvent(outside, OpCreate)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, peer.tree.Len())
}
