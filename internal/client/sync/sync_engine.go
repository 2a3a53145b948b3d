package sync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/merklebox/merklebox/internal/mbsdk"
	"github.com/merklebox/merklebox/internal/merkle"
	"github.com/merklebox/merklebox/internal/utils"
)

const DefaultSyncInterval = 30 * time.Second

// SyncEngine runs the periodic convergence loop: it diffs this device's tree
// against every other device registered for the user, downloads what they
// have that we lack, removes what they deleted, then publishes our snapshot.
// Cycles never overlap; a tick that fires mid-cycle is dropped.
type SyncEngine struct {
	rootDir  string
	deviceID string
	tree     *merkle.Tree
	store    *TreeStore
	remote   Remote
	guard    *DownloadGuard
	ignore   *IgnoreList
	detector *ChangeDetector
	interval time.Duration

	muSync sync.Mutex
	wg     sync.WaitGroup
}

type EngineOption func(*SyncEngine)

// WithSyncInterval overrides the delay between periodic cycles.
func WithSyncInterval(d time.Duration) EngineOption {
	return func(e *SyncEngine) {
		e.interval = d
	}
}

func NewSyncEngine(rootDir, deviceID string, tree *merkle.Tree, store *TreeStore, remote Remote, guard *DownloadGuard, ignore *IgnoreList, detector *ChangeDetector, opts ...EngineOption) *SyncEngine {
	e := &SyncEngine{
		rootDir:  rootDir,
		deviceID: deviceID,
		tree:     tree,
		store:    store,
		remote:   remote,
		guard:    guard,
		ignore:   ignore,
		detector: detector,
		interval: DefaultSyncInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start runs one immediate cycle, then schedules periodic ones until the
// context is cancelled.
func (e *SyncEngine) Start(ctx context.Context) {
	if err := e.RunCycle(ctx); err != nil {
		slog.Error("initial sync cycle", "error", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		// a timer rearmed after each cycle, so slow cycles delay the next
		// tick instead of stacking up behind a ticker
		timer := time.NewTimer(e.interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if err := e.RunCycle(ctx); err != nil && err != ErrSyncAlreadyRunning {
					slog.Error("sync cycle", "error", err)
				}
				timer.Reset(e.interval)
			}
		}
	}()
}

// Stop waits for the scheduler goroutine to exit. The context passed to
// Start must already be cancelled.
func (e *SyncEngine) Stop() {
	e.wg.Wait()
}

// RunCycle executes one full sync pass. Per-item failures are logged and
// skipped so one bad entry never stalls the rest; only failures that make
// the whole cycle impossible are returned.
func (e *SyncEngine) RunCycle(ctx context.Context) error {
	if !e.muSync.TryLock() {
		return ErrSyncAlreadyRunning
	}
	defer e.muSync.Unlock()

	start := time.Now()

	snap := e.tree.Snapshot()
	devices, err := e.remote.ListDevices(ctx)
	if err != nil {
		return err
	}

	applied := 0
	for _, dev := range devices {
		if dev.DeviceID == e.deviceID {
			continue
		}
		if rootsEqual(snap.RootHash, dev.RootHash) {
			// identical root hashes, nothing to compare
			continue
		}

		resp, err := e.remote.DiffAgainst(ctx, dev.DeviceID, snap)
		if err != nil {
			slog.Warn("diff against device failed", "device", dev.DeviceID, "error", err)
			continue
		}
		applied += e.applyDiff(ctx, dev.DeviceID, resp)
	}

	if _, err := e.remote.UpdateTree(ctx, e.deviceID, e.tree.Snapshot()); err != nil {
		slog.Warn("publish snapshot failed", "error", err)
	}

	if err := e.store.Save(e.tree.Entries()); err != nil {
		slog.Error("persist tree", "error", err)
	}
	if err := e.store.SetLastSyncAt(time.Now().UTC()); err != nil {
		slog.Error("persist sync time", "error", err)
	}

	// local edits that failed to upload earlier get another chance now
	if e.detector != nil {
		e.detector.Drain()
	}

	slog.Info("sync cycle complete",
		"devices", len(devices),
		"applied", applied,
		"took", time.Since(start).Round(time.Millisecond))
	return nil
}

// applyDiff pulls remote additions and modifications into the workspace and
// propagates deletions. Returns the number of entries applied.
func (e *SyncEngine) applyDiff(ctx context.Context, deviceID string, diff *mbsdk.DiffResponse) int {
	applied := 0

	for _, entry := range append(diff.Added, diff.Modified...) {
		if e.ignore.ShouldIgnore(entry.Path) {
			continue
		}
		if err := e.applyEntry(ctx, entry); err != nil {
			slog.Warn("apply entry failed", "device", deviceID, "path", entry.Path, "error", err)
			continue
		}
		applied++
	}

	// an empty server tree means the device has not published content yet,
	// not that it deleted everything; never propagate deletes from it
	if diff.ServerRootHash == nil || *diff.ServerRootHash == merkle.EmptyRootHash {
		return applied
	}

	for _, entry := range diff.Deleted {
		if e.ignore.ShouldIgnore(entry.Path) {
			continue
		}
		if err := e.applyDelete(entry); err != nil {
			slog.Warn("apply delete failed", "device", deviceID, "path", entry.Path, "error", err)
			continue
		}
		applied++
	}

	return applied
}

func (e *SyncEngine) applyEntry(ctx context.Context, entry *merkle.FileEntry) error {
	rel := entry.Path

	if local := e.tree.Get(rel); local != nil && local.Hash == entry.Hash {
		// content already converged; adopt the remote timestamp so the
		// entry stops showing up as modified
		if !local.LastModified.Equal(entry.LastModified) {
			updated := local.Clone()
			updated.LastModified = entry.LastModified
			e.tree.Upsert(updated)
		}
		return nil
	}

	if entry.DownloadURL == nil {
		slog.Debug("entry has no retrieval url, skipped", "path", rel)
		return nil
	}

	e.guard.BeginDownload(rel)

	data, err := e.remote.DownloadEntry(ctx, entry)
	if err != nil {
		e.guard.Abort(rel)
		return err
	}

	gotHash := utils.BytesHash(data)
	if gotHash != entry.Hash {
		e.guard.Abort(rel)
		return &IntegrityError{Path: rel, Expected: entry.Hash, Actual: gotHash}
	}

	absPath := filepath.Join(e.rootDir, filepath.FromSlash(rel))
	if err := utils.WriteFileAtomic(absPath, data, 0o644); err != nil {
		e.guard.Abort(rel)
		return err
	}

	e.guard.EndDownload(rel, gotHash)

	adopted := entry.Clone()
	adopted.LocalURL = &absPath
	adopted.DownloadURL = nil
	e.tree.Upsert(adopted)

	slog.Info("downloaded", "path", rel, "hash", gotHash, "size", entry.Size)
	return nil
}

func (e *SyncEngine) applyDelete(entry *merkle.FileEntry) error {
	rel := entry.Path

	local := e.tree.Get(rel)
	if local == nil {
		return nil
	}
	if local.Hash != entry.Hash {
		// local content diverged since the other device deleted its copy;
		// keep ours and let the next upload win
		return nil
	}

	absPath := filepath.Join(e.rootDir, filepath.FromSlash(rel))

	// the guard swallows the watcher's remove event for our own deletion
	e.guard.BeginDownload(rel)
	defer e.guard.Abort(rel)

	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	e.tree.Remove(rel)
	slog.Info("deleted", "path", rel, "hash", entry.Hash)
	return nil
}

func rootsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
