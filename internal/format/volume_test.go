package format

import "testing"

func TestVolumeRoundTrip(t *testing.T) {
	v := Volume{
		MediaType:       MediaTypeFixed,
		SectorsPerChunk: 32,
		BytesPerSector:  512,
		SectorCount:     2048,
		MediaFlags:      MediaFlagImage,
	}
	buf := EncodeVolume(v)
	got, ok := DecodeVolume(buf)
	if !ok {
		t.Fatalf("DecodeVolume reported a short buffer")
	}
	if got.MediaType != v.MediaType || got.SectorsPerChunk != v.SectorsPerChunk ||
		got.BytesPerSector != v.BytesPerSector || got.SectorCount != v.SectorCount ||
		got.MediaFlags != v.MediaFlags {
		t.Errorf("got %+v, want %+v", got, v)
	}
}

func TestVolumeChunkSize(t *testing.T) {
	v := Volume{SectorsPerChunk: 64, BytesPerSector: 512}
	if got := v.ChunkSize(); got != 32768 {
		t.Errorf("ChunkSize() = %d, want 32768", got)
	}
}

func TestDecodeVolumeTooShort(t *testing.T) {
	if _, ok := DecodeVolume(make([]byte, VolumeSize-1)); ok {
		t.Fatalf("expected short buffer to be rejected")
	}
}
