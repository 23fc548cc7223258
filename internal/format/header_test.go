package format

import "testing"

func TestFileHeaderV1RoundTrip(t *testing.T) {
	h := FileHeaderV1{FieldsStart: 1, SegmentNumber: 7, FieldsEnd: 0}
	got := DecodeFileHeaderV1(EncodeFileHeaderV1(h))
	if got != h {
		t.Errorf("got %+v, want %+v", got, h)
	}
}

func TestFileHeaderV2RoundTrip(t *testing.T) {
	h := FileHeaderV2{MajorVersion: 2, MinorVersion: 0, SegmentNumber: 3}
	h.SetIdentifier[0] = 0xaa
	got := DecodeFileHeaderV2(EncodeFileHeaderV2(h))
	if got.MajorVersion != h.MajorVersion || got.MinorVersion != h.MinorVersion ||
		got.SegmentNumber != h.SegmentNumber || got.SetIdentifier != h.SetIdentifier {
		t.Errorf("got %+v, want %+v", got, h)
	}
}
