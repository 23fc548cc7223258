package format

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// HeaderEncoding distinguishes the three textual encodings a header-family
// section may carry its zlib-compressed payload in.
type HeaderEncoding int

const (
	EncodingASCII HeaderEncoding = iota // "header": plain ASCII
	EncodingUTF16LE                     // "header2": UTF-16LE with BOM
	EncodingUTF8                        // "xheader": UTF-8, XML-ish tag soup in real EnCase but tab/value here
)

// HeaderValues is an ordered key/value dictionary decoded from a
// header/header2/xheader section: case number, examiner, acquisition date,
// and the rest of spec.md's acquisition metadata.
type HeaderValues struct {
	order  []string
	values map[string]string
}

func NewHeaderValues() *HeaderValues {
	return &HeaderValues{values: make(map[string]string)}
}

func (h *HeaderValues) Set(key, value string) {
	if _, ok := h.values[key]; !ok {
		h.order = append(h.order, key)
	}
	h.values[key] = value
}

func (h *HeaderValues) Get(key string) (string, bool) {
	v, ok := h.values[key]
	return v, ok
}

func (h *HeaderValues) Keys() []string {
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// Known header value keys (libewf's single-letter legacy column scheme).
const (
	HeaderKeyCaseNumber      = "case_number"
	HeaderKeyDescription     = "description"
	HeaderKeyEvidenceNumber  = "evidence_number"
	HeaderKeyExaminer        = "examiner_name"
	HeaderKeyNotes           = "notes"
	HeaderKeyVersion         = "acquiry_software_version"
	HeaderKeyPlatform        = "acquiry_operating_system"
	HeaderKeyAcquiryDate     = "acquiry_date"
	HeaderKeySystemDate      = "system_date"
	HeaderKeyPasswordHash    = "password_hash"
	HeaderKeyModel           = "model"
	HeaderKeySerialNumber    = "sn"
	HeaderKeyBusType         = "bus_type"
)

// legacyColumns is the single-letter ordering used by the classic "header"
// section's tab-separated table (libewf's 'c n a e t av ov m u p' line).
var legacyColumns = []string{"c", "n", "a", "e", "t", "av", "ov", "m", "u", "p"}

var legacyColumnKey = map[string]string{
	"c":  HeaderKeyCaseNumber,
	"n":  HeaderKeyEvidenceNumber,
	"a":  HeaderKeyDescription,
	"e":  HeaderKeyExaminer,
	"t":  HeaderKeyNotes,
	"av": HeaderKeyVersion,
	"ov": HeaderKeyPlatform,
	"m":  HeaderKeyAcquiryDate,
	"u":  HeaderKeySystemDate,
	"p":  HeaderKeyPasswordHash,
}

var legacyKeyColumn = func() map[string]string {
	m := make(map[string]string, len(legacyColumnKey))
	for col, key := range legacyColumnKey {
		m[key] = col
	}
	return m
}()

// DecodeHeaderValues inflates a zlib-compressed header/header2/xheader
// payload, decodes it to UTF-8 text per enc, and parses libewf's
// three-line tab-separated table:
//
//	1
//	c<TAB>n<TAB>a<TAB>e<TAB>t<TAB>av<TAB>ov<TAB>m<TAB>u<TAB>p
//	<values...>
func DecodeHeaderValues(payload []byte, enc HeaderEncoding) (*HeaderValues, error) {
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("format: header zlib: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("format: header inflate: %w", err)
	}

	text, err := decodeHeaderText(raw, enc)
	if err != nil {
		return nil, err
	}

	return parseHeaderTable(text), nil
}

func decodeHeaderText(raw []byte, enc HeaderEncoding) (string, error) {
	switch enc {
	case EncodingUTF16LE:
		d := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(d, raw)
		if err != nil {
			return "", fmt.Errorf("format: utf16 header: %w", err)
		}
		return string(out), nil
	case EncodingUTF8, EncodingASCII:
		return string(raw), nil
	default:
		return "", fmt.Errorf("format: unknown header encoding %d", enc)
	}
}

func parseHeaderTable(text string) *HeaderValues {
	hv := NewHeaderValues()
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	// line 0: value-count marker ("1"); line 1: column names; line 2+: rows.
	var columns []string
	row := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		row++
		switch row {
		case 1:
			continue // count marker, not needed once columns are known
		case 2:
			columns = strings.Split(line, "\t")
		default:
			fields := strings.Split(line, "\t")
			for i, col := range columns {
				if i >= len(fields) {
					break
				}
				key, ok := legacyColumnKey[col]
				if !ok {
					key = col
				}
				hv.Set(key, fields[i])
			}
		}
	}
	return hv
}

// EncodeHeaderValues renders hv back into the legacy tab-separated table
// and zlib-compresses it, ready to embed in a header/header2/xheader
// section payload.
func EncodeHeaderValues(hv *HeaderValues, enc HeaderEncoding) ([]byte, error) {
	var text bytes.Buffer
	w := bufio.NewWriter(&text)
	fmt.Fprintln(w, "1")
	fmt.Fprintln(w, strings.Join(legacyColumns, "\t"))
	row := make([]string, len(legacyColumns))
	for i, col := range legacyColumns {
		key := legacyColumnKey[col]
		v, _ := hv.Get(key)
		row[i] = v
	}
	fmt.Fprintln(w, strings.Join(row, "\t"))
	w.Flush()

	var raw []byte
	switch enc {
	case EncodingUTF16LE:
		e := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
		out, _, err := transform.Bytes(e, text.Bytes())
		if err != nil {
			return nil, fmt.Errorf("format: utf16 encode header: %w", err)
		}
		raw = out
	default:
		raw = text.Bytes()
	}

	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("format: header zlib write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("format: header zlib close: %w", err)
	}
	return zbuf.Bytes(), nil
}
