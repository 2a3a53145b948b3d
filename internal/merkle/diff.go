package merkle

// DiffResult is the outcome of a directional tree comparison. All entries are
// from the authoritative side except Deleted, which lists the proposing
// side's entries that the authoritative side no longer has.
type DiffResult struct {
	Added    []*FileEntry `json:"added"`
	Modified []*FileEntry `json:"modified"`
	Deleted  []*FileEntry `json:"deleted"`
}

// Empty reports whether the diff carries no work.
func (r *DiffResult) Empty() bool {
	return len(r.Added) == 0 && len(r.Modified) == 0 && len(r.Deleted) == 0
}

// Diff compares two flat entry sets directionally. The authoritative side is
// "mine": entries it has that the proposing side lacks are Added, entries
// both have whose content hash OR timestamp differ are Modified, and entries
// only the proposing side has are Deleted. Timestamp inequality alone counts
// as modified: a false positive from clock skew just causes a redundant,
// convergent resync, while a false negative would miss a change.
//
// Callers choose which side is authoritative; swapping the arguments yields
// the logically opposite action set. This is the single diff entry point for
// both client and server.
func Diff(authoritative, proposed []*FileEntry) *DiffResult {
	mine := indexByPath(authoritative)
	theirs := indexByPath(proposed)

	result := &DiffResult{
		Added:    []*FileEntry{},
		Modified: []*FileEntry{},
		Deleted:  []*FileEntry{},
	}

	for _, e := range authoritative {
		other, ok := theirs[e.Path]
		if !ok {
			result.Added = append(result.Added, e)
			continue
		}
		if e.Hash != other.Hash || !e.LastModified.Equal(other.LastModified) {
			result.Modified = append(result.Modified, e)
		}
	}

	for _, e := range proposed {
		if _, ok := mine[e.Path]; !ok {
			result.Deleted = append(result.Deleted, e)
		}
	}

	return result
}

func indexByPath(entries []*FileEntry) map[string]*FileEntry {
	idx := make(map[string]*FileEntry, len(entries))
	for _, e := range entries {
		idx[e.Path] = e
	}
	return idx
}
