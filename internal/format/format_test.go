package format

import "testing"

func TestSectionHeaderRoundTrip(t *testing.T) {
	var h SectionDescriptor
	copy(h.Type[:], SectionSectors)
	h.NextOffset = 1024
	h.Size = 512

	buf := EncodeSectionHeader(h)
	got, ok := DecodeSectionHeader(buf)
	if !ok {
		t.Fatalf("decode reported invalid checksum")
	}
	if got.TypeString() != SectionSectors {
		t.Errorf("type = %q, want %q", got.TypeString(), SectionSectors)
	}
	if got.NextOffset != h.NextOffset || got.Size != h.Size {
		t.Errorf("got %+v, want next=%d size=%d", got, h.NextOffset, h.Size)
	}
}

func TestSectionHeaderChecksumMismatch(t *testing.T) {
	var h SectionDescriptor
	copy(h.Type[:], SectionDone)
	buf := EncodeSectionHeader(h)
	buf[0] ^= 0xff // corrupt the type field without touching the checksum

	if _, ok := DecodeSectionHeader(buf); ok {
		t.Fatalf("expected checksum mismatch to be detected")
	}
}

func TestTypeStringTrimsPadding(t *testing.T) {
	var h SectionDescriptor
	copy(h.Type[:], "table")
	if got := h.TypeString(); got != "table" {
		t.Errorf("TypeString() = %q, want %q", got, "table")
	}
}

func TestChunkChecksum(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	// seed 1 plus sum of bytes
	want := uint32(1 + 1 + 2 + 3 + 4)
	if got := ChunkChecksum(data); got != want {
		t.Errorf("ChunkChecksum() = %d, want %d", got, want)
	}
}

func TestDetectVersion(t *testing.T) {
	if v := DetectVersion(MagicV1); v != Version1 {
		t.Errorf("DetectVersion(MagicV1) = %v, want Version1", v)
	}
	if v := DetectVersion(MagicV2); v != Version2 {
		t.Errorf("DetectVersion(MagicV2) = %v, want Version2", v)
	}
	var bogus [8]byte
	copy(bogus[:], "bogus!!!")
	if v := DetectVersion(bogus); v != VersionUnknown {
		t.Errorf("DetectVersion(bogus) = %v, want VersionUnknown", v)
	}
}
