package delta

import (
	"sort"
	"testing"

	"github.com/go-ewf/ewf/internal/chunktable"
)

func TestOverlaySetGet(t *testing.T) {
	o := New()
	o.Set(5, chunktable.Entry{SegmentID: 2, FileOffset: 100, StoredSize: 200})

	e, ok := o.Get(5)
	if !ok {
		t.Fatalf("expected chunk 5 to have a delta entry")
	}
	if !e.IsDelta() {
		t.Errorf("expected Set to tag the entry with FlagIsDelta")
	}
	if e.StoredSize != 200 {
		t.Errorf("StoredSize = %d, want 200", e.StoredSize)
	}

	if _, ok := o.Get(6); ok {
		t.Errorf("expected chunk 6 to have no delta entry")
	}
}

func TestOverlayLastWriteWins(t *testing.T) {
	o := New()
	o.Set(1, chunktable.Entry{FileOffset: 10})
	o.Set(1, chunktable.Entry{FileOffset: 99})

	e, _ := o.Get(1)
	if e.FileOffset != 99 {
		t.Errorf("FileOffset = %d, want 99 (last write should win)", e.FileOffset)
	}
	if o.Len() != 1 {
		t.Errorf("Len() = %d, want 1", o.Len())
	}
}

func TestOverlayIndices(t *testing.T) {
	o := New()
	o.Set(3, chunktable.Entry{})
	o.Set(1, chunktable.Entry{})
	o.Set(2, chunktable.Entry{})

	got := o.Indices()
	sort.Ints(got)
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("Indices() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Indices()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
