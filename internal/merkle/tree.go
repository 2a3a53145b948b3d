package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
)

// EmptyRootHash is the sentinel root of a tree with no entries. It is the
// empty string, which can never collide with a real sha256 hex digest.
const EmptyRootHash = ""

// Node is a binary hash tree node. Leaf nodes wrap exactly one FileEntry and
// carry its content hash; internal nodes carry a hash derived from both
// children.
type Node struct {
	Hash  string
	Left  *Node
	Right *Node
	Entry *FileEntry
}

// IsLeaf reports whether the node wraps a file entry.
func (n *Node) IsLeaf() bool {
	return n.Entry != nil
}

// Tree is a content-addressed Merkle tree over a set of file entries, indexed
// by relative path. The shape is rebuilt bottom-up from the full leaf set on
// every mutation; leaves are paired in lexicographic path order so the root
// hash is independent of insertion history.
type Tree struct {
	mu      sync.RWMutex
	root    *Node
	entries map[string]*FileEntry
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{
		entries: make(map[string]*FileEntry),
	}
}

// Upsert inserts or replaces the entry for its path and returns the new root
// hash.
func (t *Tree) Upsert(entry *FileEntry) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[entry.Path] = entry
	t.rebuild()
	return t.rootHashLocked()
}

// Remove deletes the entry at path, if present, and returns the new root
// hash.
func (t *Tree) Remove(path string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, path)
	t.rebuild()
	return t.rootHashLocked()
}

// Get returns the entry at path, or nil.
func (t *Tree) Get(path string) *FileEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[path]
}

// Len returns the number of tracked entries.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// RootHash returns the current root hash, or EmptyRootHash for an empty tree.
func (t *Tree) RootHash() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootHashLocked()
}

// Entries returns all entries sorted by path.
func (t *Tree) Entries() []*FileEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedEntriesLocked()
}

func (t *Tree) rootHashLocked() string {
	if t.root == nil {
		return EmptyRootHash
	}
	return t.root.Hash
}

func (t *Tree) sortedEntriesLocked() []*FileEntry {
	entries := make([]*FileEntry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries
}

// rebuild reconstructs the tree shape from the full leaf set. Cost is linear
// in the leaf count per mutation.
func (t *Tree) rebuild() {
	entries := t.sortedEntriesLocked()
	if len(entries) == 0 {
		t.root = nil
		return
	}

	level := make([]*Node, len(entries))
	for i, e := range entries {
		level[i] = &Node{Hash: e.Hash, Entry: e}
	}

	for len(level) > 1 {
		next := make([]*Node, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				// unpaired trailing node is promoted unchanged
				next = append(next, level[i])
				continue
			}
			left, right := level[i], level[i+1]
			next = append(next, &Node{
				Hash:  hashPair(left.Hash, right.Hash),
				Left:  left,
				Right: right,
			})
		}
		level = next
	}

	t.root = level[0]
}

func hashPair(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}
