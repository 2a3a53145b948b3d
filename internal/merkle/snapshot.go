package merkle

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Snapshot is the wire form of a device tree: the flat list of leaf entries
// plus a claimed root hash and timestamp. The internal tree shape is never
// transmitted; receivers reconstruct it locally. The claimed root hash is an
// optimistic equality check, not independently re-verified.
type Snapshot struct {
	RootHash  *string      `json:"rootHash"`
	Timestamp time.Time    `json:"timestamp"`
	Files     []*FileEntry `json:"files"`
}

// Snapshot captures the tree's current entries as a wire snapshot.
func (t *Tree) Snapshot() *Snapshot {
	entries := t.Entries()
	files := make([]*FileEntry, len(entries))
	for i, e := range entries {
		files[i] = e.Clone()
	}

	var rootHash *string
	if rh := t.RootHash(); rh != EmptyRootHash {
		rootHash = &rh
	}

	return &Snapshot{
		RootHash:  rootHash,
		Timestamp: time.Now().UTC(),
		Files:     files,
	}
}

// FromSnapshot rebuilds a tree from a snapshot's leaf entries.
func FromSnapshot(snap *Snapshot) *Tree {
	t := NewTree()
	if snap == nil {
		return t
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range snap.Files {
		t.entries[f.Path] = f.Clone()
	}
	t.rebuild()
	return t
}

// Validate checks the snapshot's shape: entries must have a path and a hash,
// and paths must be unique.
func (s *Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s.Files))
	for _, f := range s.Files {
		if f == nil || f.Path == "" {
			return fmt.Errorf("snapshot entry missing path")
		}
		if f.Hash == "" {
			return fmt.Errorf("snapshot entry %q missing hash", f.Path)
		}
		if _, dup := seen[f.Path]; dup {
			return fmt.Errorf("snapshot has duplicate path %q", f.Path)
		}
		seen[f.Path] = struct{}{}
	}
	return nil
}

// Encode serializes the snapshot to JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot deserializes a JSON snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
