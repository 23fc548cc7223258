// Package delta implements the per-chunk override chain of spec.md
// section 4.8: an ordered list of delta segment files, parsed after every
// primary segment, whose table entries replace the primary chunk-table
// entry for the same logical index.
package delta

import (
	"sync"

	"github.com/go-ewf/ewf/internal/chunktable"
)

// Overlay tracks which logical chunks have a delta replacement and where
// it lives. Set is idempotent; the last call for a given index wins,
// matching spec.md's "last-wins" rule for re-opened delta chains.
type Overlay struct {
	mu      sync.RWMutex
	entries map[int]chunktable.Entry
}

func New() *Overlay {
	return &Overlay{entries: make(map[int]chunktable.Entry)}
}

// Set records (or replaces) the delta entry for logical chunk i.
func (o *Overlay) Set(i int, e chunktable.Entry) {
	e.Flags |= chunktable.FlagIsDelta
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[i] = e
}

// Get returns the delta entry for chunk i, if one has been written.
func (o *Overlay) Get(i int) (chunktable.Entry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[i]
	return e, ok
}

// Len reports how many chunks currently have a delta override.
func (o *Overlay) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.entries)
}

// Indices returns the overridden chunk indices, in no particular order, for
// diagnostics and for re-emitting a delta chain.
func (o *Overlay) Indices() []int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]int, 0, len(o.entries))
	for i := range o.entries {
		out = append(out, i)
	}
	// insertion order is not meaningful here; callers that need sorted
	// output should sort.Ints(out) themselves to avoid paying for it when
	// they don't.
	return out
}
