// Package chunkio implements the per-chunk read and write pipeline of
// spec.md section 4.4: decompression and checksum verification on read,
// and the inverse compress-or-store-raw decision on write.
package chunkio

import (
	"bytes"
	"encoding/binary"

	"github.com/go-ewf/ewf/internal/ewferr"
	"github.com/go-ewf/ewf/internal/format"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// DecodedChunk is the result of a successful or partially-successful read,
// per spec.md's "surface the bytes so callers can choose to continue" rule
// for checksum failures.
type DecodedChunk struct {
	Data     []byte
	Checksum error // non-nil => ChecksumError or DecompressError, Data may still be valid-length
}

// Decode implements the read path: stored is the exact StoredSize bytes
// read from disk for logical chunk index i; compressed/hasChecksum come
// from the table-entry flags; rawSize is the declared uncompressed chunk
// size (short for the final chunk).
func Decode(i int, stored []byte, compressed, hasChecksum bool, rawSize int) DecodedChunk {
	if compressed {
		return decodeCompressed(i, stored, rawSize)
	}
	return decodeRaw(i, stored, hasChecksum)
}

func decodeCompressed(i int, stored []byte, rawSize int) DecodedChunk {
	zr, err := zlib.NewReader(bytes.NewReader(stored))
	if err != nil {
		return DecodedChunk{Data: nil, Checksum: ewferr.Decompress(i, err)}
	}
	defer zr.Close()
	buf := make([]byte, 0, rawSize)
	out := bytes.NewBuffer(buf)
	if _, err := out.ReadFrom(zr); err != nil {
		// zlib.Reader validates the Adler-32 trailer as part of Read/Close;
		// a checksum mismatch surfaces here as a generic read error.
		return DecodedChunk{Data: out.Bytes(), Checksum: ewferr.Decompress(i, err)}
	}
	return DecodedChunk{Data: out.Bytes()}
}

func decodeRaw(i int, stored []byte, hasChecksum bool) DecodedChunk {
	if !hasChecksum {
		return DecodedChunk{Data: stored}
	}
	if len(stored) < 4 {
		return DecodedChunk{Data: stored, Checksum: ewferr.Checksum(i, 0, 0)}
	}
	data := stored[:len(stored)-4]
	expected := binary.LittleEndian.Uint32(stored[len(stored)-4:])
	actual := format.ChunkChecksum(data)
	if expected != actual {
		return DecodedChunk{Data: data, Checksum: ewferr.Checksum(i, expected, actual)}
	}
	return DecodedChunk{Data: data}
}

// EncodeResult is the write-path output: the bytes to append to the
// sectors section, and whether they ended up compressed.
type EncodeResult struct {
	Stored     []byte
	Compressed bool
}

// CompressionLevel mirrors the volume section's declared level.
type CompressionLevel int

const (
	LevelNone CompressionLevel = iota
	LevelFast
	LevelBest
)

func (l CompressionLevel) flateLevel() int {
	switch l {
	case LevelFast:
		return flate.BestSpeed
	case LevelBest:
		return flate.BestCompression
	default:
		return flate.NoCompression
	}
}

// Encode implements the write path of spec.md section 4.4: compute the
// trailing checksum, attempt deflate at level, and keep whichever
// representation is smaller — unless emptyBlockCompression is set and raw
// is all-zero, in which case the compressed form is always chosen
// regardless of size (so an all-zero chunk never costs a full chunk's
// worth of disk).
func Encode(raw []byte, level CompressionLevel, emptyBlockCompression bool) (EncodeResult, error) {
	if level == LevelNone {
		return encodeRaw(raw), nil
	}

	compressed, err := deflateZlib(raw, level.flateLevel())
	if err != nil {
		return EncodeResult{}, ewferr.Wrap("chunkio: compress", err)
	}

	if len(compressed) < len(raw) {
		return EncodeResult{Stored: compressed, Compressed: true}, nil
	}
	if emptyBlockCompression && isAllZero(raw) {
		return EncodeResult{Stored: compressed, Compressed: true}, nil
	}
	return encodeRaw(raw), nil
}

func encodeRaw(raw []byte) EncodeResult {
	checksum := format.ChunkChecksum(raw)
	stored := make([]byte, len(raw)+4)
	copy(stored, raw)
	binary.LittleEndian.PutUint32(stored[len(raw):], checksum)
	return EncodeResult{Stored: stored, Compressed: false}
}

func deflateZlib(raw []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
