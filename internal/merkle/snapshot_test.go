package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	tree := NewTree()
	tree.Upsert(testEntry("a.txt", "aaa"))
	tree.Upsert(testEntry("dir/b.txt", "bbb"))
	tree.Upsert(testEntry("dir/c.txt", "ccc"))

	snap := tree.Snapshot()
	require.NotNil(t, snap.RootHash)
	assert.Equal(t, tree.RootHash(), *snap.RootHash)
	assert.Len(t, snap.Files, 3)

	rebuilt := FromSnapshot(snap)
	assert.Equal(t, tree.RootHash(), rebuilt.RootHash())
	assert.Equal(t, tree.Len(), rebuilt.Len())
}

func TestSnapshot_EncodeDecode(t *testing.T) {
	tree := NewTree()
	tree.Upsert(testEntry("a.txt", "aaa"))

	data, err := tree.Snapshot().Encode()
	require.NoError(t, err)

	snap, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, tree.RootHash(), FromSnapshot(snap).RootHash())
}

func TestSnapshot_EmptyTreeHasNilRoot(t *testing.T) {
	snap := NewTree().Snapshot()
	assert.Nil(t, snap.RootHash)
	assert.Empty(t, snap.Files)

	rebuilt := FromSnapshot(snap)
	assert.Equal(t, EmptyRootHash, rebuilt.RootHash())
}

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		snap    *Snapshot
		wantErr bool
	}{
		{
			name: "valid",
			snap: &Snapshot{Files: []*FileEntry{testEntry("a.txt", "a")}},
		},
		{
			name:    "missing path",
			snap:    &Snapshot{Files: []*FileEntry{{Hash: "abc"}}},
			wantErr: true,
		},
		{
			name:    "missing hash",
			snap:    &Snapshot{Files: []*FileEntry{{Path: "a.txt"}}},
			wantErr: true,
		},
		{
			name: "duplicate path",
			snap: &Snapshot{Files: []*FileEntry{
				testEntry("a.txt", "a"),
				testEntry("a.txt", "b"),
			}},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.snap.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSnapshot_MutationDoesNotLeakIntoSource(t *testing.T) {
	tree := NewTree()
	tree.Upsert(testEntry("a.txt", "aaa"))

	snap := tree.Snapshot()
	snap.Files[0].Hash = "tampered"

	assert.NotEqual(t, "tampered", tree.Get("a.txt").Hash)
}
