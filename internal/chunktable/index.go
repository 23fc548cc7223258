// Package chunktable implements the logical-chunk to physical-location
// index described in spec.md section 4.3: a flat array populated
// incrementally as each segment's table section is decoded.
package chunktable

import (
	"sync"

	"github.com/go-ewf/ewf/internal/iopool"
)

// Flags on a chunk-table entry, per spec.md section 3.
type Flags uint8

const (
	FlagCompressed      Flags = 1 << 0
	FlagTrailingChecksum Flags = 1 << 1
	FlagIsDelta         Flags = 1 << 2
)

// Entry locates one logical chunk's stored bytes.
type Entry struct {
	SegmentID  iopool.PathID
	FileOffset uint64
	StoredSize uint32
	Flags      Flags
}

func (e Entry) Compressed() bool { return e.Flags&FlagCompressed != 0 }
func (e Entry) HasTrailingChecksum() bool { return e.Flags&FlagTrailingChecksum != 0 }
func (e Entry) IsDelta() bool { return e.Flags&FlagIsDelta != 0 }

// Index is the O(1)-lookup chunk-index array, built incrementally while
// segments are parsed. Safe for concurrent Get calls; Set/Grow calls must
// be externally serialized to the single-threaded open path (the parser
// never opens a segment's table sections concurrently with another
// segment's).
type Index struct {
	mu      sync.RWMutex
	entries []Entry
	chunkSize uint32
}

func New(chunkSize uint32) *Index {
	return &Index{chunkSize: chunkSize}
}

// ChunkSize returns the declared uncompressed chunk size.
func (idx *Index) ChunkSize() uint32 { return idx.chunkSize }

// Grow extends the index to hold at least n chunks.
func (idx *Index) Grow(n int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if n <= len(idx.entries) {
		return
	}
	grown := make([]Entry, n)
	copy(grown, idx.entries)
	idx.entries = grown
}

// Set records the primary entry for logical chunk i. Table sections are
// always written after their sectors section, so by the time a table is
// decoded the stored size of every entry but the last is already known
// from the delta between consecutive offsets; the last entry's stored
// size is resolved by the caller from the sectors-section end before
// calling Set.
func (idx *Index) Set(i int, e Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if i >= len(idx.entries) {
		grown := make([]Entry, i+1)
		copy(grown, idx.entries)
		idx.entries = grown
	}
	idx.entries[i] = e
}

// Get returns the primary entry for logical chunk i.
func (idx *Index) Get(i int) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if i < 0 || i >= len(idx.entries) {
		return Entry{}, false
	}
	e := idx.entries[i]
	return e, e.StoredSize != 0 || e.FileOffset != 0
}

// Len returns the number of chunks currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Validate checks the invariants of spec.md section 4.3: every chunk has
// an entry, offsets are sane, and entries from the same segment do not
// overlap. segmentSizes maps a segment id to its file size.
func (idx *Index) Validate(segmentSizes map[iopool.PathID]int64) []int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var bad []int
	bySegment := make(map[iopool.PathID][]int)
	for i, e := range idx.entries {
		if e.StoredSize == 0 && e.FileOffset == 0 {
			bad = append(bad, i) // hole: no table recorded this chunk
			continue
		}
		size, ok := segmentSizes[e.SegmentID]
		if !ok || e.FileOffset+uint64(e.StoredSize) > uint64(size) {
			bad = append(bad, i)
			continue
		}
		bySegment[e.SegmentID] = append(bySegment[e.SegmentID], i)
	}
	for _, idxs := range bySegment {
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				ea, eb := idx.entries[idxs[a]], idx.entries[idxs[b]]
				if overlaps(ea, eb) {
					bad = append(bad, idxs[a], idxs[b])
				}
			}
		}
	}
	return bad
}

func overlaps(a, b Entry) bool {
	aEnd := a.FileOffset + uint64(a.StoredSize)
	bEnd := b.FileOffset + uint64(b.StoredSize)
	return a.FileOffset < bEnd && b.FileOffset < aEnd
}
