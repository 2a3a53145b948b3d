package sync

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/merklebox/merklebox/internal/mbsdk"
	"github.com/merklebox/merklebox/internal/merkle"
	"github.com/merklebox/merklebox/internal/utils"
)

const (
	defaultDebounce   = 2 * time.Second
	defaultDrainDelay = 200 * time.Millisecond
)

// EventOp classifies a raw filesystem event.
type EventOp int

const (
	OpCreate EventOp = iota
	OpModify
	OpDelete
)

// ChangeDetector turns raw filesystem events into tree mutations and
// debounced upload jobs. Events for paths the sync engine itself is writing
// are discarded through the DownloadGuard so downloads never echo back as
// uploads.
type ChangeDetector struct {
	rootDir  string
	deviceID string
	tree     *merkle.Tree
	store    *TreeStore
	remote   Remote
	guard    *DownloadGuard
	ignore   *IgnoreList

	debounce   time.Duration
	drainDelay time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	queued  map[string]struct{}

	muDrain sync.Mutex

	ctx context.Context
}

type DetectorOption func(*ChangeDetector)

// WithDebounce overrides the upload debounce delay.
func WithDebounce(d time.Duration) DetectorOption {
	return func(cd *ChangeDetector) {
		cd.debounce = d
	}
}

// WithDrainDelay overrides the inter-item delay that throttles burst uploads.
func WithDrainDelay(d time.Duration) DetectorOption {
	return func(cd *ChangeDetector) {
		cd.drainDelay = d
	}
}

func NewChangeDetector(rootDir, deviceID string, tree *merkle.Tree, store *TreeStore, remote Remote, guard *DownloadGuard, ignore *IgnoreList, opts ...DetectorOption) *ChangeDetector {
	cd := &ChangeDetector{
		rootDir:    rootDir,
		deviceID:   deviceID,
		tree:       tree,
		store:      store,
		remote:     remote,
		guard:      guard,
		ignore:     ignore,
		debounce:   defaultDebounce,
		drainDelay: defaultDrainDelay,
		pending:    make(map[string]*time.Timer),
		queued:     make(map[string]struct{}),
		ctx:        context.Background(),
	}
	for _, opt := range opts {
		opt(cd)
	}
	return cd
}

// Start binds the detector to a lifecycle context used by debounce timers.
func (cd *ChangeDetector) Start(ctx context.Context) {
	cd.ctx = ctx
}

// Stop cancels all pending debounce timers.
func (cd *ChangeDetector) Stop() {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	for path, timer := range cd.pending {
		timer.Stop()
		delete(cd.pending, path)
	}
}

// HandleEvent processes one filesystem event for an absolute path.
func (cd *ChangeDetector) HandleEvent(absPath string, op EventOp) {
	rel, err := filepath.Rel(cd.rootDir, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "..\\") {
		slog.Debug("event outside workspace", "path", absPath)
		return
	}
	rel = filepath.ToSlash(rel)

	if cd.ignore.ShouldIgnore(rel) {
		return
	}

	if cd.guard.IsDownloading(rel) {
		slog.Debug("event for in-flight download, skipping", "path", rel)
		return
	}

	switch op {
	case OpDelete:
		cd.handleDelete(rel)
	default:
		cd.handleUpsert(rel)
	}
}

func (cd *ChangeDetector) handleUpsert(rel string) {
	absPath := cd.absPath(rel)

	info, err := os.Stat(absPath)
	if err != nil {
		// deleted between event and processing; the remove event follows
		return
	}
	if info.IsDir() {
		return
	}
	if info.Size() == 0 {
		slog.Debug("empty contents, skipped", "path", rel)
		return
	}

	hash, err := utils.FileHash(absPath)
	if err != nil {
		slog.Error("hash file", "path", rel, "error", err)
		return
	}

	if cd.guard.MatchesRecentDownload(rel, hash) {
		slog.Debug("echo of completed download, suppressed", "path", rel)
		return
	}

	if existing := cd.tree.Get(rel); existing != nil && existing.Hash == hash && existing.BlobRef != nil {
		// content unchanged and already durably stored
		return
	}

	mimeType := utils.DetectContentType(rel)
	entry := &merkle.FileEntry{
		Filename:     filepath.Base(rel),
		Path:         rel,
		LocalURL:     &absPath,
		BlobRef:      nil,
		Hash:         hash,
		Size:         info.Size(),
		MIMEType:     &mimeType,
		LastModified: info.ModTime().UTC(),
	}

	rootHash := cd.tree.Upsert(entry)
	cd.persistEntry(entry)
	slog.Debug("local change", "path", rel, "hash", hash, "root", rootHash)

	cd.scheduleUpload(rel)
}

func (cd *ChangeDetector) handleDelete(rel string) {
	if entry := cd.tree.Get(rel); entry != nil {
		cd.deleteEntry(rel, entry)
		return
	}

	// Removing or renaming a directory delivers a single event for the
	// directory path. Only files are tracked, so delete every entry under
	// the prefix.
	prefix := rel + "/"
	for _, entry := range cd.tree.Entries() {
		if strings.HasPrefix(entry.Path, prefix) {
			cd.deleteEntry(entry.Path, entry)
		}
	}
}

func (cd *ChangeDetector) deleteEntry(rel string, entry *merkle.FileEntry) {
	cd.cancelPending(rel)

	// Deletion propagates by content hash, not path: identical content under
	// another path elsewhere is unaffected. Best effort; local removal
	// proceeds regardless of the remote outcome.
	if err := cd.remote.DeleteByHash(cd.ctx, entry.Hash); err != nil {
		slog.Warn("remote delete failed", "path", rel, "hash", entry.Hash, "error", err)
	}

	cd.tree.Remove(rel)
	if err := cd.store.Delete(rel); err != nil {
		slog.Error("persist delete", "path", rel, "error", err)
	}
	slog.Info("local delete", "path", rel, "hash", entry.Hash)
}

// scheduleUpload queues the path for upload after the debounce delay. A path
// already scheduled has its pending job replaced, coalescing rapid writes
// into one upload.
func (cd *ChangeDetector) scheduleUpload(rel string) {
	cd.mu.Lock()
	defer cd.mu.Unlock()

	if timer, ok := cd.pending[rel]; ok {
		timer.Stop()
	}
	cd.pending[rel] = time.AfterFunc(cd.debounce, func() {
		cd.enqueue(rel)
	})
}

func (cd *ChangeDetector) cancelPending(rel string) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	if timer, ok := cd.pending[rel]; ok {
		timer.Stop()
		delete(cd.pending, rel)
	}
	delete(cd.queued, rel)
}

func (cd *ChangeDetector) enqueue(rel string) {
	cd.mu.Lock()
	delete(cd.pending, rel)
	cd.queued[rel] = struct{}{}
	cd.mu.Unlock()

	go cd.Drain()
}

// PendingUploads returns the paths currently queued for upload.
func (cd *ChangeDetector) PendingUploads() []string {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	paths := make([]string, 0, len(cd.queued))
	for p := range cd.queued {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Drain uploads all queued paths. Only one drain runs at a time; re-entrant
// triggers are ignored and the next natural trigger picks up newly queued
// work. Items that fail stay queued for a later drain instead of being
// retried in a tight loop.
func (cd *ChangeDetector) Drain() {
	if !cd.muDrain.TryLock() {
		return
	}
	defer cd.muDrain.Unlock()

	batch := cd.takeQueued()
	for i, rel := range batch {
		if err := cd.uploadOne(rel); err != nil {
			slog.Error("upload failed, requeued", "path", rel, "error", err)
			cd.requeue(rel)
		}
		if i < len(batch)-1 {
			time.Sleep(cd.drainDelay)
		}
	}
}

func (cd *ChangeDetector) takeQueued() []string {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	paths := make([]string, 0, len(cd.queued))
	for p := range cd.queued {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	cd.queued = make(map[string]struct{})
	return paths
}

func (cd *ChangeDetector) requeue(rel string) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.queued[rel] = struct{}{}
}

func (cd *ChangeDetector) uploadOne(rel string) error {
	entry := cd.tree.Get(rel)
	if entry == nil {
		// deleted after queuing
		return nil
	}

	absPath := cd.absPath(rel)
	info, err := os.Stat(absPath)
	if err != nil {
		// deleted after queuing; the remove event cleans up the tree
		return nil
	}
	if info.Size() == 0 {
		// truncated after queuing; the server rejects zero-byte blobs
		slog.Debug("empty contents, dropped from queue", "path", rel)
		return nil
	}

	hash, err := utils.FileHash(absPath)
	if err != nil {
		return err
	}

	if cd.guard.MatchesRecentDownload(rel, hash) {
		slog.Debug("queued item matches recent download, skipped", "path", rel)
		return nil
	}

	resp, err := cd.remote.UploadFile(cd.ctx, &mbsdk.UploadParams{
		Path:     rel,
		FilePath: absPath,
		MIMEType: utils.DetectContentType(rel),
		LocalRef: absPath,
	})
	if err != nil {
		return err
	}

	updated := entry.Clone()
	updated.Hash = resp.Hash
	updated.Size = resp.Size
	updated.BlobRef = &resp.BlobRef
	updated.LastModified = info.ModTime().UTC()
	cd.tree.Upsert(updated)
	cd.persistEntry(updated)

	if _, err := cd.remote.UpdateTree(cd.ctx, cd.deviceID, cd.tree.Snapshot()); err != nil {
		slog.Warn("push snapshot after upload failed", "path", rel, "error", err)
	}

	slog.Info("uploaded", "path", rel, "hash", resp.Hash, "size", humanize.Bytes(uint64(resp.Size)))
	return nil
}

// ScanWorkspace reconciles the tree with the filesystem on startup so edits
// made while the daemon was down are detected without watcher events.
func (cd *ChangeDetector) ScanWorkspace(ctx context.Context) error {
	seen := make(map[string]struct{})

	err := filepath.WalkDir(cd.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(cd.rootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if cd.ignore.ShouldIgnore(rel) {
			return nil
		}

		seen[rel] = struct{}{}

		existing := cd.tree.Get(rel)
		if existing != nil {
			hash, err := utils.FileHash(path)
			if err != nil {
				return nil
			}
			if existing.Hash == hash && existing.BlobRef != nil {
				return nil
			}
		}
		cd.handleUpsert(rel)
		return nil
	})
	if err != nil {
		return err
	}

	// paths tracked in the tree but gone from disk were deleted offline
	for _, entry := range cd.tree.Entries() {
		if _, ok := seen[entry.Path]; !ok {
			cd.handleDelete(entry.Path)
		}
	}

	return nil
}

func (cd *ChangeDetector) persistEntry(e *merkle.FileEntry) {
	if err := cd.store.Set(e); err != nil {
		slog.Error("persist entry", "path", e.Path, "error", err)
	}
}

func (cd *ChangeDetector) absPath(rel string) string {
	return filepath.Join(cd.rootDir, filepath.FromSlash(rel))
}
