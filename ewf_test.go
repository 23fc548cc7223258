package ewf

import (
	"bytes"
	"crypto/md5"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-ewf/ewf/internal/chunkio"
	"github.com/go-ewf/ewf/internal/ewferr"
)

func writeSampleImage(t *testing.T, basePath string, data []byte, opts ...CreateOption) {
	t.Helper()
	allOpts := append([]CreateOption{
		WithChunkSize(2, 512), // 1024-byte chunks, small enough to span several per test image
		WithCaseMetadata("CASE-001", "unit test image", "EV-1", "tester", "created by a test"),
	}, opts...)

	img, err := Create(basePath, allOpts...)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := img.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := img.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestImageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "case")

	data := bytes.Repeat([]byte("0123456789abcdef"), 224) // 3584 bytes: sector-aligned but not a whole number of chunks
	writeSampleImage(t, basePath, data)

	img, err := Open(basePath + ".E01")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if got := img.Size(); got != int64(len(data)) {
		t.Fatalf("Size() = %d, want %d", got, len(data))
	}

	got := make([]byte, len(data))
	n, err := img.ReadAt(got, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != len(data) || !bytes.Equal(got, data) {
		t.Fatalf("ReadAt returned mismatched data (n=%d)", n)
	}

	if v, ok := img.HeaderValue("case_number"); !ok || v != "CASE-001" {
		t.Errorf("HeaderValue(case_number) = %q, ok=%v", v, ok)
	}

	wantMD5 := md5.Sum(data)
	gotMD5, ok := img.Hash("MD5")
	if !ok || !bytes.Equal(gotMD5, wantMD5[:]) {
		t.Errorf("Hash(MD5) = %x, want %x", gotMD5, wantMD5)
	}
}

func TestImageRoundTripMultiSegment(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "case")

	data := bytes.Repeat([]byte{0xaa, 0x55}, 4096) // 8192 bytes
	writeSampleImage(t, basePath, data, WithMaxSegmentSize(3000))

	img, err := Open(basePath + ".E01")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	got := make([]byte, len(data))
	if _, err := img.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("multi-segment image round trip mismatch")
	}
}

func TestImageRoundTripCompressed(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "case")

	data := make([]byte, 1024*10) // all-zero: highly compressible
	writeSampleImage(t, basePath, data, WithCompression(chunkio.LevelBest))

	img, err := Open(basePath + ".E01")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	got := make([]byte, len(data))
	if _, err := img.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("compressed round trip mismatch")
	}
}

func TestOpenRecoversFromCorruptTableDescriptorChecksum(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "case")

	data := bytes.Repeat([]byte{0x07}, 1024*3)
	writeSampleImage(t, basePath, data)

	segPath := basePath + ".E01"
	raw, err := os.ReadFile(segPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var typeField [16]byte
	copy(typeField[:], "table")
	idx := bytes.Index(raw, typeField[:])
	if idx < 0 {
		t.Fatalf("couldn't locate the table section descriptor")
	}
	// Flip only the descriptor's trailing checksum byte, leaving Size and
	// NextOffset (earlier in the same 76-byte header) intact so the chain
	// stays walkable toward the table2 recovery copy.
	raw[idx+75] ^= 0xff
	if err := os.WriteFile(segPath, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	img, err := Open(segPath)
	if err != nil {
		t.Fatalf("Open should recover a corrupt table descriptor via table2: %v", err)
	}
	defer img.Close()

	got := make([]byte, len(data))
	if _, err := img.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("recovered image data mismatch")
	}
}

func TestPatchChunkOverridesRead(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "case")

	original := bytes.Repeat([]byte{0x11}, 1024*3)
	writeSampleImage(t, basePath, original)

	img, err := Open(basePath + ".E01")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	patch := bytes.Repeat([]byte{0x99}, 1024)
	if err := img.PatchChunk(0, patch); err != nil {
		t.Fatalf("PatchChunk: %v", err)
	}

	got := make([]byte, 1024)
	if _, err := img.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, patch) {
		t.Fatalf("ReadAt after PatchChunk = %x, want %x", got[:8], patch[:8])
	}

	rest := make([]byte, 1024)
	if _, err := img.ReadAt(rest, 1024); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(rest, original[1024:2048]) {
		t.Fatalf("unpatched chunk changed unexpectedly")
	}
}

func TestPatchChunkPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "case")

	original := bytes.Repeat([]byte{0x11}, 1024*2)
	writeSampleImage(t, basePath, original)

	img, err := Open(basePath + ".E01")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	patch := bytes.Repeat([]byte{0x77}, 1024)
	if err := img.PatchChunk(1, patch); err != nil {
		t.Fatalf("PatchChunk: %v", err)
	}
	if err := img.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(basePath + ".E01")
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	defer reopened.Close()

	got := make([]byte, 1024)
	if _, err := reopened.ReadAt(got, 1024); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, patch) {
		t.Fatalf("delta overlay did not survive a reopen")
	}
}

type flakySource struct {
	data     []byte
	failOffs map[int64]bool
}

func (f *flakySource) ReadAt(p []byte, off int64) (int, error) {
	if f.failOffs[off] {
		return 0, errors.New("simulated read failure")
	}
	n := copy(p, f.data[off:])
	return n, nil
}

func TestAcquireZeroFillsFailingChunks(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "case")

	chunkSize := int64(1024)
	total := chunkSize * 4
	data := bytes.Repeat([]byte{0x42}, int(total))
	src := &flakySource{data: data, failOffs: map[int64]bool{chunkSize * 2: true}}

	img, err := Create(basePath, WithChunkSize(2, 512))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := Acquire(img, src, total, WithAcquireWorkers(2), WithAcquireRetries(0)); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := img.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(basePath + ".E01")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	got := make([]byte, total)
	if _, err := reopened.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got[:chunkSize*2], data[:chunkSize*2]) {
		t.Errorf("chunk 0/1 should match the source")
	}
	zeroChunk := make([]byte, chunkSize)
	if !bytes.Equal(got[chunkSize*2:chunkSize*3], zeroChunk) {
		t.Errorf("failing chunk 2 should be zero-filled")
	}
	if !bytes.Equal(got[chunkSize*3:], data[chunkSize*3:]) {
		t.Errorf("chunk 3 should match the source")
	}

	ranges := reopened.ErrorRanges()
	if len(ranges) != 1 {
		t.Fatalf("ErrorRanges() = %v, want 1 entry", ranges)
	}
}

func TestOpenRejectsMissingSegment(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "case")
	writeSampleImage(t, basePath, bytes.Repeat([]byte{1}, 4096), WithMaxSegmentSize(2000))

	segments, err := discoverSegmentChain(basePath + ".E01")
	if err != nil {
		t.Fatalf("discoverSegmentChain: %v", err)
	}
	if len(segments) < 2 {
		t.Fatalf("expected a multi-segment image, got %d segments", len(segments))
	}

	// removing the last segment leaves the chain ending in "next" instead
	// of "done"; Open must refuse to treat it as a complete image.
	if err := os.Remove(segments[len(segments)-1]); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := Open(basePath + ".E01"); err == nil {
		t.Fatalf("Open succeeded on a truncated segment chain")
	} else if !ewferr.IsCode(err, ewferr.CodeWriteResumeNeeded) {
		t.Fatalf("Open error = %v, want CodeWriteResumeNeeded", err)
	}

	if _, err := Open(basePath+".E01", WithAllowIncomplete()); err != nil {
		t.Fatalf("Open with WithAllowIncomplete should salvage the intact prefix: %v", err)
	}
}

func TestReadAtSurfacesChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "case")

	data := bytes.Repeat([]byte{0xab}, 1024) // exactly one chunk, raw (uncompressed)
	writeSampleImage(t, basePath, data)

	segPath := basePath + ".E01"
	raw, err := os.ReadFile(segPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	idx := bytes.IndexByte(raw, 0xab)
	if idx < 0 {
		t.Fatalf("couldn't locate chunk payload in segment file")
	}
	raw[idx] ^= 0xff
	if err := os.WriteFile(segPath, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	img, err := Open(segPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	got := make([]byte, len(data))
	_, err = img.ReadAt(got, 0)
	if err == nil {
		t.Fatalf("expected a checksum error reading a flipped chunk")
	}
	if !ewferr.IsCode(err, ewferr.CodeChecksum) {
		t.Fatalf("ReadAt error = %v, want CodeChecksum", err)
	}
}

func TestReadChunkConcurrentCallsShareOneDecode(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "case")

	data := bytes.Repeat([]byte{0x5a}, 1024*4)
	writeSampleImage(t, basePath, data)

	img, err := Open(basePath + ".E01")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	const goroutines = 16
	results := make([][]byte, goroutines)
	errs := make([]error, goroutines)
	done := make(chan int, goroutines)
	for g := 0; g < goroutines; g++ {
		go func(idx int) {
			results[idx], errs[idx] = img.ReadChunk(0)
			done <- idx
		}(g)
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: ReadChunk: %v", i, err)
		}
		if !bytes.Equal(results[i], data[:1024]) {
			t.Fatalf("goroutine %d: ReadChunk returned mismatched data", i)
		}
	}
}

func TestOpenAllowIncomplete(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "case")
	writeSampleImage(t, basePath, bytes.Repeat([]byte{2}, 1024*3))

	img, err := Open(basePath+".E01", WithAllowIncomplete())
	if err != nil {
		t.Fatalf("Open with WithAllowIncomplete on a healthy image should still succeed: %v", err)
	}
	defer img.Close()
	if img.Size() != 1024*3 {
		t.Errorf("Size() = %d, want %d", img.Size(), 1024*3)
	}
}
