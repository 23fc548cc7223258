package format

import "encoding/binary"

// TableEntryCompressedFlag is the high bit of a raw table entry word,
// marking the chunk at that offset as deflate-compressed.
const TableEntryCompressedFlag = uint32(1) << 31

// TableHeaderSize is the size of a table section's fixed header: count,
// padding, base_offset, padding, checksum.
const TableHeaderSize = 24

// RawTable is the decoded-but-unresolved form of a table/table2 section:
// base offset plus raw 32-bit entry words (high bit = compressed, low 31
// bits = offset relative to base_offset).
type RawTable struct {
	BaseOffset uint64
	Entries    []uint32
}

// DecodeTable parses a table/table2 payload per spec.md's wire layout:
//
//	u32 entry_count; u32 pad; u64 base_offset; u32 pad; u32 checksum;
//	u32 entries[entry_count]; u32 trailing_checksum (optional)
//
// The header checksum is validated against the preceding 20 bytes; a
// mismatch returns ok=false so the caller can fall back to table2.
func DecodeTable(buf []byte) (RawTable, bool) {
	if len(buf) < TableHeaderSize {
		return RawTable{}, false
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	baseOffset := binary.LittleEndian.Uint64(buf[8:16])
	checksum := binary.LittleEndian.Uint32(buf[20:24])
	if checksum != ChecksumAdler32(buf[0:20]) {
		return RawTable{}, false
	}
	need := TableHeaderSize + int(count)*4
	if len(buf) < need {
		return RawTable{}, false
	}
	entries := make([]uint32, count)
	for i := range entries {
		off := TableHeaderSize + i*4
		entries[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	return RawTable{BaseOffset: baseOffset, Entries: entries}, true
}

// EncodeTable serializes a RawTable, including the trailing checksum over
// all entries.
func EncodeTable(t RawTable) []byte {
	buf := make([]byte, TableHeaderSize+len(t.Entries)*4+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(t.Entries)))
	binary.LittleEndian.PutUint64(buf[8:16], t.BaseOffset)
	binary.LittleEndian.PutUint32(buf[20:24], ChecksumAdler32(buf[0:20]))
	for i, e := range t.Entries {
		off := TableHeaderSize + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], e)
	}
	trailerOff := TableHeaderSize + len(t.Entries)*4
	binary.LittleEndian.PutUint32(buf[trailerOff:trailerOff+4], ChecksumAdler32(buf[TableHeaderSize:trailerOff]))
	return buf
}

// EntryOffset returns the file offset encoded by a raw entry relative to
// base.
func EntryOffset(base uint64, raw uint32) uint64 {
	return base + uint64(raw&^TableEntryCompressedFlag)
}

// EntryCompressed reports whether the compressed flag is set on a raw
// entry.
func EntryCompressed(raw uint32) bool {
	return raw&TableEntryCompressedFlag != 0
}

// MakeEntry packs an offset-from-base and compressed flag into a raw table
// entry word.
func MakeEntry(offsetFromBase uint32, compressed bool) uint32 {
	if compressed {
		return offsetFromBase | TableEntryCompressedFlag
	}
	return offsetFromBase
}
