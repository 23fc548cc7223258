package format

import "encoding/binary"

// MagicSize is the byte length of the version-discriminating magic at the
// start of every segment file.
const MagicSize = 8

// FileHeaderV1Size is the byte size of the classic file header fields
// (fields_start through fields_end), not counting the magic.
const FileHeaderV1Size = 5

// SectionsStartV1 is the absolute offset of the first section in a v1
// segment: magic (8) + fields_start/segment_number/fields_end (5) = 13,
// matching spec.md section 6.
const SectionsStartV1 = MagicSize + FileHeaderV1Size

// FileHeaderV1 is the 5-byte field header at offset 8 of a v1 segment,
// right after the 8-byte magic.
type FileHeaderV1 struct {
	FieldsStart   uint8
	SegmentNumber uint16
	FieldsEnd     uint16
}

func DecodeFileHeaderV1(buf [FileHeaderV1Size]byte) FileHeaderV1 {
	return FileHeaderV1{
		FieldsStart:   buf[0],
		SegmentNumber: binary.LittleEndian.Uint16(buf[1:3]),
		FieldsEnd:     binary.LittleEndian.Uint16(buf[3:5]),
	}
}

func EncodeFileHeaderV1(h FileHeaderV1) [FileHeaderV1Size]byte {
	var buf [FileHeaderV1Size]byte
	buf[0] = h.FieldsStart
	binary.LittleEndian.PutUint16(buf[1:3], h.SegmentNumber)
	binary.LittleEndian.PutUint16(buf[3:5], h.FieldsEnd)
	return buf
}

// FileHeaderV2Size is the byte size of the EWF2 file header following the
// 8-byte magic.
const FileHeaderV2Size = 22

// SectionsStartV2 is the absolute offset of the first section in a v2
// segment: magic (8) + the 22-byte v2 field header.
const SectionsStartV2 = MagicSize + FileHeaderV2Size

// FileHeaderV2 is the header of an EWF2/EnCase7 segment.
type FileHeaderV2 struct {
	MajorVersion       uint8
	MinorVersion       uint8
	CompressionMethod  uint16
	SegmentNumber      uint16
	SetIdentifier      [16]byte
}

func DecodeFileHeaderV2(buf [FileHeaderV2Size]byte) FileHeaderV2 {
	var h FileHeaderV2
	h.MajorVersion = buf[0]
	h.MinorVersion = buf[1]
	h.CompressionMethod = binary.LittleEndian.Uint16(buf[2:4])
	h.SegmentNumber = binary.LittleEndian.Uint16(buf[4:6])
	copy(h.SetIdentifier[:], buf[6:22])
	return h
}

func EncodeFileHeaderV2(h FileHeaderV2) [FileHeaderV2Size]byte {
	var buf [FileHeaderV2Size]byte
	buf[0] = h.MajorVersion
	buf[1] = h.MinorVersion
	binary.LittleEndian.PutUint16(buf[2:4], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[4:6], h.SegmentNumber)
	copy(buf[6:22], h.SetIdentifier[:])
	return buf
}
