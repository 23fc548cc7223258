package format

import "encoding/binary"

// HashSectionSize is the payload size of a "hash" section: MD5 only.
const HashSectionSize = 36

// DigestSectionSize is the payload size of a "digest" section: MD5+SHA1.
const DigestSectionSize = 80

// Hash holds the MD5 recorded in a "hash" section.
type Hash struct {
	MD5 [16]byte
}

func DecodeHash(buf []byte) (Hash, bool) {
	if len(buf) < 16 {
		return Hash{}, false
	}
	var h Hash
	copy(h.MD5[:], buf[:16])
	return h, true
}

func EncodeHash(h Hash) []byte {
	buf := make([]byte, HashSectionSize)
	copy(buf[:16], h.MD5[:])
	binary.LittleEndian.PutUint32(buf[HashSectionSize-4:], ChecksumAdler32(buf[:HashSectionSize-4]))
	return buf
}

// Digest holds MD5 and SHA1 as recorded in a "digest" section.
type Digest struct {
	MD5  [16]byte
	SHA1 [20]byte
}

func DecodeDigest(buf []byte) (Digest, bool) {
	if len(buf) < 36 {
		return Digest{}, false
	}
	var d Digest
	copy(d.MD5[:], buf[:16])
	copy(d.SHA1[:], buf[16:36])
	return d, true
}

func EncodeDigest(d Digest) []byte {
	buf := make([]byte, DigestSectionSize)
	copy(buf[:16], d.MD5[:])
	copy(buf[16:36], d.SHA1[:])
	binary.LittleEndian.PutUint32(buf[DigestSectionSize-4:], ChecksumAdler32(buf[:DigestSectionSize-4]))
	return buf
}

// ErrorRange is one first-sector/count entry from an "error2" section,
// recording an acquisition read failure.
type ErrorRange struct {
	FirstSector uint32
	SectorCount uint32
}

// DecodeErrorRanges parses an "error2" payload: a u32 count, padding, a u32
// checksum, then count {first_sector,count} pairs plus a trailing checksum.
func DecodeErrorRanges(buf []byte) ([]ErrorRange, bool) {
	if len(buf) < 8 {
		return nil, false
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	const headerLen = 24
	if len(buf) < headerLen+int(count)*8 {
		return nil, false
	}
	ranges := make([]ErrorRange, count)
	off := headerLen
	for i := range ranges {
		ranges[i].FirstSector = binary.LittleEndian.Uint32(buf[off : off+4])
		ranges[i].SectorCount = binary.LittleEndian.Uint32(buf[off+4 : off+8])
		off += 8
	}
	return ranges, true
}

func EncodeErrorRanges(ranges []ErrorRange) []byte {
	const headerLen = 24
	buf := make([]byte, headerLen+len(ranges)*8+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(ranges)))
	binary.LittleEndian.PutUint32(buf[16:20], ChecksumAdler32(buf[0:16]))
	off := headerLen
	for _, r := range ranges {
		binary.LittleEndian.PutUint32(buf[off:off+4], r.FirstSector)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], r.SectorCount)
		off += 8
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], ChecksumAdler32(buf[headerLen:off]))
	return buf
}

// Session is one session/track entry from a "session" section, used for
// optical-disc images.
type Session struct {
	FirstSector uint32
	SectorCount uint32
	Flags       uint32
}

func DecodeSessions(buf []byte) ([]Session, bool) {
	if len(buf) < 4 {
		return nil, false
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	const headerLen = 24
	if len(buf) < headerLen+int(count)*16 {
		return nil, false
	}
	sessions := make([]Session, count)
	off := headerLen
	for i := range sessions {
		sessions[i].FirstSector = binary.LittleEndian.Uint32(buf[off : off+4])
		sessions[i].SectorCount = binary.LittleEndian.Uint32(buf[off+4 : off+8])
		sessions[i].Flags = binary.LittleEndian.Uint32(buf[off+8 : off+12])
		off += 16
	}
	return sessions, true
}
