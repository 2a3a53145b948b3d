package sync

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultRecentDownloadTTL bounds how long a completed download keeps
	// suppressing same-hash filesystem events for its path.
	DefaultRecentDownloadTTL = 10 * time.Second

	recentDownloadCap = 4096
)

// DownloadGuard is the loop-prevention coordinator. The sync engine marks a
// path before writing downloaded content to disk and records the written hash
// after; the change detector consults the guard to discard echo events so a
// download can never re-trigger an upload.
type DownloadGuard struct {
	downloading mapset.Set[string]
	recent      *expirable.LRU[string, string]
}

func NewDownloadGuard(ttl time.Duration) *DownloadGuard {
	if ttl <= 0 {
		ttl = DefaultRecentDownloadTTL
	}
	return &DownloadGuard{
		downloading: mapset.NewSet[string](),
		recent:      expirable.NewLRU[string, string](recentDownloadCap, nil, ttl),
	}
}

// BeginDownload marks a path as being written by the sync engine itself.
// Filesystem events for it must be ignored until the write settles.
func (g *DownloadGuard) BeginDownload(path string) {
	g.downloading.Add(path)
}

// EndDownload moves the path out of the downloading set and records the hash
// just written, with a TTL.
func (g *DownloadGuard) EndDownload(path, hash string) {
	g.downloading.Remove(path)
	g.recent.Add(path, hash)
}

// Abort releases the downloading mark without recording a hash, for writes
// that failed partway.
func (g *DownloadGuard) Abort(path string) {
	g.downloading.Remove(path)
}

// IsDownloading reports whether the sync engine is currently writing the
// path.
func (g *DownloadGuard) IsDownloading(path string) bool {
	return g.downloading.Contains(path)
}

// MatchesRecentDownload reports whether a freshly computed hash for the path
// equals the one the sync engine just wrote. A different hash means a real
// local edit and must not be suppressed.
func (g *DownloadGuard) MatchesRecentDownload(path, hash string) bool {
	recorded, ok := g.recent.Get(path)
	return ok && recorded == hash
}
