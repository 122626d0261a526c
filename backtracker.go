package hopdb

// BackTracker maps any intermediate-hop vertex back to the start vertex it
// originated from. It exists only for multi-hop queries and is populated
// before each non-final hop completes.
//
// Query-local state: accessed only from the query's serial runner, so no
// locking. Note that a vertex reachable from two different starts keeps
// only the first recorded origin; multi-ancestry is collapsed.
type BackTracker struct {
	origins map[VID]VID
}

// NewBackTracker creates an empty tracker.
func NewBackTracker() *BackTracker {
	return &BackTracker{origins: make(map[VID]VID)}
}

// Add records dst as originating from src's root. If src itself was
// reached from an earlier hop, the mapping is walked back to the true
// start vertex before recording.
func (b *BackTracker) Add(src, dst VID) {
	root := b.Get(src)
	if _, exists := b.origins[dst]; !exists {
		b.origins[dst] = root
	}
}

// Get returns the start vertex id that led to vid, or vid itself when no
// mapping exists.
func (b *BackTracker) Get(vid VID) VID {
	if root, ok := b.origins[vid]; ok {
		return root
	}
	return vid
}

// Len returns the number of tracked vertices.
func (b *BackTracker) Len() int { return len(b.origins) }
