package format

import "testing"

func buildHeaderValues() *HeaderValues {
	hv := NewHeaderValues()
	hv.Set(HeaderKeyCaseNumber, "CASE-001")
	hv.Set(HeaderKeyDescription, "sample acquisition")
	hv.Set(HeaderKeyEvidenceNumber, "EV-1")
	hv.Set(HeaderKeyExaminer, "J. Doe")
	hv.Set(HeaderKeyNotes, "test run")
	return hv
}

func TestHeaderValuesRoundTripASCII(t *testing.T) {
	hv := buildHeaderValues()
	payload, err := EncodeHeaderValues(hv, EncodingASCII)
	if err != nil {
		t.Fatalf("EncodeHeaderValues: %v", err)
	}
	got, err := DecodeHeaderValues(payload, EncodingASCII)
	if err != nil {
		t.Fatalf("DecodeHeaderValues: %v", err)
	}
	for _, key := range []string{HeaderKeyCaseNumber, HeaderKeyDescription, HeaderKeyEvidenceNumber, HeaderKeyExaminer, HeaderKeyNotes} {
		want, _ := hv.Get(key)
		gotVal, ok := got.Get(key)
		if !ok || gotVal != want {
			t.Errorf("key %q = %q, want %q", key, gotVal, want)
		}
	}
}

func TestHeaderValuesRoundTripUTF16LE(t *testing.T) {
	hv := buildHeaderValues()
	payload, err := EncodeHeaderValues(hv, EncodingUTF16LE)
	if err != nil {
		t.Fatalf("EncodeHeaderValues: %v", err)
	}
	got, err := DecodeHeaderValues(payload, EncodingUTF16LE)
	if err != nil {
		t.Fatalf("DecodeHeaderValues: %v", err)
	}
	want, _ := hv.Get(HeaderKeyCaseNumber)
	gotVal, ok := got.Get(HeaderKeyCaseNumber)
	if !ok || gotVal != want {
		t.Errorf("case_number = %q, want %q", gotVal, want)
	}
}

func TestHeaderValuesKeysPreservesInsertionOrder(t *testing.T) {
	hv := NewHeaderValues()
	hv.Set("z", "1")
	hv.Set("a", "2")
	hv.Set("z", "3") // re-setting an existing key must not move it

	keys := hv.Keys()
	if len(keys) != 2 || keys[0] != "z" || keys[1] != "a" {
		t.Errorf("Keys() = %v, want [z a]", keys)
	}
	if v, _ := hv.Get("z"); v != "3" {
		t.Errorf("Get(z) = %q, want 3", v)
	}
}

func TestDecodeHeaderValuesBadZlib(t *testing.T) {
	if _, err := DecodeHeaderValues([]byte("not zlib"), EncodingASCII); err == nil {
		t.Fatalf("expected an error decoding non-zlib payload")
	}
}
