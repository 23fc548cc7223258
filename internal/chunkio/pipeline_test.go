package chunkio

import (
	"bytes"
	"testing"

	"github.com/go-ewf/ewf/internal/ewferr"
)

func TestEncodeDecodeRawRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab, 0xcd}, 1024)
	enc, err := Encode(raw, LevelNone, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if enc.Compressed {
		t.Fatalf("expected LevelNone to store raw")
	}

	dec := Decode(0, enc.Stored, enc.Compressed, true, len(raw))
	if dec.Checksum != nil {
		t.Fatalf("unexpected checksum error: %v", dec.Checksum)
	}
	if !bytes.Equal(dec.Data, raw) {
		t.Fatalf("decoded data mismatch")
	}
}

func TestEncodeDecodeCompressedRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x00}, 16384) // a highly compressible chunk
	enc, err := Encode(raw, LevelBest, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !enc.Compressed {
		t.Fatalf("expected an all-zero chunk to compress smaller than raw")
	}

	dec := Decode(0, enc.Stored, true, false, len(raw))
	if dec.Checksum != nil {
		t.Fatalf("unexpected checksum error: %v", dec.Checksum)
	}
	if !bytes.Equal(dec.Data, raw) {
		t.Fatalf("decoded data mismatch, got %d bytes", len(dec.Data))
	}
}

func TestEncodeIncompressibleFallsBackToRaw(t *testing.T) {
	raw := make([]byte, 4096)
	x := uint32(1)
	for i := range raw {
		x = x*1664525 + 1013904223
		raw[i] = byte(x >> 24) // pseudo-random, not worth compressing
	}
	enc, err := Encode(raw, LevelBest, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if enc.Compressed {
		t.Fatalf("expected incompressible data to fall back to raw storage")
	}
	if len(enc.Stored) != len(raw)+4 {
		t.Fatalf("stored length = %d, want %d (raw + trailing checksum)", len(enc.Stored), len(raw)+4)
	}
}

func TestEmptyBlockCompressionForcesCompressedEvenIfLarger(t *testing.T) {
	raw := make([]byte, 64) // tiny all-zero chunk: compressed form may not beat raw+4
	enc, err := Encode(raw, LevelBest, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !enc.Compressed {
		t.Fatalf("expected emptyBlockCompression to force the compressed form")
	}
}

func TestDecodeRawChecksumMismatch(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, 512)
	enc, err := Encode(raw, LevelNone, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	enc.Stored[0] ^= 0xff // flip a data bit without touching the trailing checksum

	dec := Decode(0, enc.Stored, false, true, len(raw))
	if dec.Checksum == nil {
		t.Fatalf("expected a checksum mismatch to be detected")
	}
	if !ewferr.IsCode(dec.Checksum, ewferr.CodeChecksum) {
		t.Errorf("Checksum error code = %v, want CodeChecksum", dec.Checksum)
	}
	if len(dec.Data) != len(raw) {
		t.Errorf("expected the bit-flipped bytes to still be surfaced, got %d bytes", len(dec.Data))
	}
}

func TestDecodeCompressedCorruptPayload(t *testing.T) {
	dec := Decode(0, []byte{0x00, 0x01, 0x02, 0x03}, true, false, 16384)
	if dec.Checksum == nil {
		t.Fatalf("expected corrupt zlib stream to report an error")
	}
	if !ewferr.IsCode(dec.Checksum, ewferr.CodeDecompress) {
		t.Errorf("error code = %v, want CodeDecompress", dec.Checksum)
	}
}
