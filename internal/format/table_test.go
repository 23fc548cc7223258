package format

import (
	"reflect"
	"testing"
)

func TestTableRoundTrip(t *testing.T) {
	table := RawTable{
		BaseOffset: 13,
		Entries: []uint32{
			MakeEntry(0, false),
			MakeEntry(16384, true),
			MakeEntry(32000, false),
		},
	}
	buf := EncodeTable(table)
	got, ok := DecodeTable(buf)
	if !ok {
		t.Fatalf("decode reported invalid checksum")
	}
	if got.BaseOffset != table.BaseOffset {
		t.Errorf("BaseOffset = %d, want %d", got.BaseOffset, table.BaseOffset)
	}
	if !reflect.DeepEqual(got.Entries, table.Entries) {
		t.Errorf("Entries = %v, want %v", got.Entries, table.Entries)
	}
}

func TestTableHeaderChecksumMismatch(t *testing.T) {
	table := RawTable{BaseOffset: 0, Entries: []uint32{1, 2, 3}}
	buf := EncodeTable(table)
	buf[0] ^= 0xff // corrupt the entry count without fixing up the header checksum

	if _, ok := DecodeTable(buf); ok {
		t.Fatalf("expected header checksum mismatch to be detected")
	}
}

func TestTableTruncatedPayload(t *testing.T) {
	table := RawTable{BaseOffset: 0, Entries: []uint32{1, 2, 3}}
	buf := EncodeTable(table)
	if _, ok := DecodeTable(buf[:TableHeaderSize+4]); ok {
		t.Fatalf("expected truncated entries to be rejected")
	}
}

func TestEntryOffsetAndCompressed(t *testing.T) {
	raw := MakeEntry(4096, true)
	if !EntryCompressed(raw) {
		t.Errorf("expected compressed flag set")
	}
	if off := EntryOffset(100, raw); off != 4196 {
		t.Errorf("EntryOffset() = %d, want 4196", off)
	}

	raw2 := MakeEntry(4096, false)
	if EntryCompressed(raw2) {
		t.Errorf("expected compressed flag clear")
	}
}
