package ewf

import (
	"testing"

	"github.com/go-ewf/ewf/internal/chunktable"
	"github.com/go-ewf/ewf/internal/format"
	"github.com/go-ewf/ewf/internal/iopool"
	"go.uber.org/zap"
)

func TestHandleTableSkipsRedundantTable2(t *testing.T) {
	pool := iopool.New(0)
	defer pool.Close()

	p := &segmentParser{
		pool:  pool,
		index: chunktable.New(1024),
		log:   zap.NewNop(),
	}
	p.lastSectorsEnd = 2048 // two 1024-byte chunks

	table := format.RawTable{BaseOffset: 0, Entries: []uint32{0, 1024}}
	payload := format.EncodeTable(table)

	var id iopool.PathID
	if err := p.handleTable(id, payload, false); err != nil {
		t.Fatalf("handleTable (table): %v", err)
	}
	if p.chunkCounter != 2 {
		t.Fatalf("chunkCounter after table = %d, want 2", p.chunkCounter)
	}
	if !p.tableAppliedForRun {
		t.Fatalf("tableAppliedForRun should be true after a successful table")
	}

	// table2 carries the identical payload, as the v1 writer always emits
	// it; it must not be folded into the index a second time.
	if err := p.handleTable(id, payload, true); err != nil {
		t.Fatalf("handleTable (table2): %v", err)
	}
	if p.chunkCounter != 2 {
		t.Fatalf("chunkCounter after redundant table2 = %d, want still 2", p.chunkCounter)
	}
	if p.index.Len() != 2 {
		t.Fatalf("index.Len() = %d, want 2", p.index.Len())
	}
}

func TestHandleTableAppliesTable2WhenPrimaryFailed(t *testing.T) {
	pool := iopool.New(0)
	defer pool.Close()

	p := &segmentParser{
		pool:  pool,
		index: chunktable.New(1024),
		log:   zap.NewNop(),
	}
	p.lastSectorsEnd = 2048

	table := format.RawTable{BaseOffset: 0, Entries: []uint32{0, 1024}}
	payload := format.EncodeTable(table)
	corrupt := append([]byte(nil), payload...)
	corrupt[20] ^= 0xff // break the table payload's own header checksum

	var id iopool.PathID
	if err := p.handleTable(id, corrupt, false); err != nil {
		t.Fatalf("handleTable (corrupt table) should be recoverable, got: %v", err)
	}
	if p.tableAppliedForRun {
		t.Fatalf("tableAppliedForRun should still be false after a failed primary table")
	}
	if p.chunkCounter != 0 {
		t.Fatalf("chunkCounter after a failed primary table = %d, want 0", p.chunkCounter)
	}

	if err := p.handleTable(id, payload, true); err != nil {
		t.Fatalf("handleTable (table2 recovery): %v", err)
	}
	if p.chunkCounter != 2 {
		t.Fatalf("chunkCounter after table2 recovery = %d, want 2", p.chunkCounter)
	}
}

func TestDispatchResetsTableAppliedForRunOnNewSectorsSection(t *testing.T) {
	pool := iopool.New(0)
	defer pool.Close()

	p := &segmentParser{
		pool:  pool,
		index: chunktable.New(1024),
		log:   zap.NewNop(),
	}
	p.tableAppliedForRun = true

	if err := p.dispatch(0, format.SectionSectors, 0, make([]byte, 16)); err != nil {
		t.Fatalf("dispatch(sectors): %v", err)
	}
	if p.tableAppliedForRun {
		t.Fatalf("a new sectors section must reset tableAppliedForRun")
	}
}
