package ewf

import (
	"crypto/md5"
	"crypto/sha1"
	"hash"
	"io"
	"sync/atomic"

	"github.com/go-ewf/ewf/internal/chunkio"
	"github.com/go-ewf/ewf/internal/ewferr"
	"github.com/go-ewf/ewf/internal/format"
	"github.com/go-ewf/ewf/internal/iopool"
	"github.com/orcaman/writerseeker"
	"go.uber.org/zap"
)

// writer implements the segmented writer / layout planner of spec.md
// section 4.7: it splits an incoming byte stream into fixed-size chunks,
// groups them into segments under a maximum size, and emits the section
// sequence each format variant requires.
//
// Digest computation (MD5/SHA1) uses the standard library directly: per
// spec.md section 1, cryptographic hash algorithms are an external
// collaborator of the core, not a format concern the teacher or pack
// vendors in a third-party library for — see DESIGN.md.
type writer struct {
	pool *iopool.Pool
	cfg  *createConfig
	log  *zap.Logger

	version format.Version

	segmentNumber int
	segmentID     iopool.PathID
	offset        int64

	segment1ID          iopool.PathID
	volumeTemplate      format.Volume
	volumePayloadOffset int64

	lastHeader       format.SectionDescriptor
	lastHeaderOffset int64

	sectorsHeaderOffset int64
	sectorsPayloadStart int64
	pendingEntries      []uint32
	chunksInSegment     int

	partial      []byte // bytes of an in-progress chunk, carried across Write calls
	totalChunks  int
	totalWritten atomic.Int64

	md5  hash.Hash
	sha1 hash.Hash

	errorRanges []format.ErrorRange
	closed      bool
}

func variantVersion(v format.Variant) format.Version {
	switch v {
	case format.VariantEWF2, format.VariantLogical2:
		return format.Version2
	default:
		return format.Version1
	}
}

// Create opens a fresh segment chain at basePath (no extension) and
// returns a write-only Image ready to accept Write calls, per spec.md
// section 4.7.
func Create(basePath string, opts ...CreateOption) (*Image, error) {
	cfg := defaultCreateConfig()
	for _, o := range opts {
		o(cfg)
	}
	pool := iopool.New(0)

	w := &writer{
		pool:    pool,
		cfg:     cfg,
		log:     cfg.logger,
		version: variantVersion(cfg.variant),
		md5:     md5.New(),
		sha1:    sha1.New(),
	}
	if err := w.openSegment(1, basePath); err != nil {
		pool.Close()
		return nil, err
	}

	img := &Image{
		cfg:       defaultOpenConfig(),
		log:       cfg.logger,
		pool:      pool,
		chunkSize: cfg.chunkSize,
		writer:    w,
	}
	return img, nil
}

// Write implements io.Writer over the logical byte stream: it buffers a
// partial chunk across calls and emits full chunks as soon as enough
// bytes have accumulated.
func (img *Image) Write(p []byte) (int, error) {
	if img.writer == nil {
		return 0, ewferr.InvalidArgument("ewf: image is not open for write")
	}
	w := img.writer
	if w.closed {
		return 0, ewferr.InvalidArgument("ewf: write after close")
	}

	n := len(p)
	w.md5.Write(p)
	w.sha1.Write(p)

	w.partial = append(w.partial, p...)
	chunkSize := int(img.chunkSize)
	for len(w.partial) >= chunkSize {
		if err := w.writeChunk(w.partial[:chunkSize]); err != nil {
			return n, err
		}
		w.partial = append([]byte(nil), w.partial[chunkSize:]...)
	}
	w.totalWritten.Add(int64(n))
	return n, nil
}

// Written returns the number of logical bytes accepted by Write so far,
// for progress reporting during Acquire.
func (img *Image) Written() int64 {
	if img.writer == nil {
		return 0
	}
	return img.writer.totalWritten.Load()
}

// Close flushes any remaining partial chunk, emits the table/hash/digest/
// done sections, fsyncs, and releases descriptors.
func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.partial) > 0 {
		if err := w.writeChunk(w.partial); err != nil {
			return err
		}
		w.partial = nil
	}
	if err := w.finalizeVolumeSectorCount(); err != nil {
		return err
	}
	return w.closeSegment(true)
}

// writeChunk encodes and appends one chunk to the currently open segment,
// rolling over to a new segment first if the chunk would not fit under
// the configured maximum segment size (spec.md section 4.7 step 2b).
func (w *writer) writeChunk(raw []byte) error {
	enc, err := chunkio.Encode(raw, w.cfg.compression, w.cfg.emptyBlock)
	if err != nil {
		return err
	}

	reserve := int64((w.chunksInSegment+1)*4) + format.TableHeaderSize + 4 + format.SectionHeaderSize*3
	if w.chunksInSegment > 0 && w.offset+int64(len(enc.Stored))+reserve > w.cfg.maxSegment {
		basePath := w.basePathOfCurrentSegment()
		if err := w.closeSegment(false); err != nil {
			return err
		}
		if err := w.openSegment(w.segmentNumber+1, basePath); err != nil {
			return err
		}
	}

	entryOffset := uint64(w.offset) - uint64(w.sectorsPayloadStart)
	if entryOffset > uint64(^uint32(0)>>1) {
		return ewferr.InvalidArgument("ewf: sectors section too large for one table")
	}
	w.pendingEntries = append(w.pendingEntries, format.MakeEntry(uint32(entryOffset), enc.Compressed))

	if _, err := w.pool.WriteAt(w.segmentID, w.offset, enc.Stored); err != nil {
		return err
	}
	w.offset += int64(len(enc.Stored))
	w.chunksInSegment++
	w.totalChunks++
	return nil
}

// basePathOfCurrentSegment strips the extension the pool registered the
// current segment under, so the next segment number can be recomputed.
func (w *writer) basePathOfCurrentSegment() string {
	base, _, err := format.SplitSegmentPath(w.pool.Path(w.segmentID))
	if err != nil {
		// Segment 1's path is always basePath+extension; this only fails
		// if a caller hand-rolled an unrecognizable basePath, which
		// openSegment would already have rejected.
		return w.pool.Path(w.segmentID)
	}
	return base
}

// openSegment starts a new segment file: magic, file header, and — for
// segment 1 only — the acquisition metadata and volume sections, per
// spec.md section 4.7 step 1/2c. It leaves a "sectors" section open for
// writeChunk to append to.
func (w *writer) openSegment(n int, basePath string) error {
	path, err := format.SegmentPath(basePath, n, w.cfg.variant)
	if err != nil {
		return err
	}
	id := w.pool.Register(path, true)
	w.segmentID = id
	w.segmentNumber = n
	w.offset = 0
	w.lastHeaderOffset = -1

	if err := w.writeFileHeader(id, n); err != nil {
		return err
	}

	if n == 1 {
		w.segment1ID = id
		if err := w.writeMetadataSections(id); err != nil {
			return err
		}
	}
	return w.openSectorsSection(id)
}

func (w *writer) writeFileHeader(id iopool.PathID, n int) error {
	switch w.version {
	case format.Version2:
		if _, err := w.pool.WriteAt(id, 0, format.MagicV2[:]); err != nil {
			return err
		}
		h := format.EncodeFileHeaderV2(format.FileHeaderV2{MajorVersion: 2, MinorVersion: 0, SegmentNumber: uint16(n)})
		if _, err := w.pool.WriteAt(id, format.MagicSize, h[:]); err != nil {
			return err
		}
		w.offset = format.SectionsStartV2
	default:
		if _, err := w.pool.WriteAt(id, 0, format.MagicV1[:]); err != nil {
			return err
		}
		h := format.EncodeFileHeaderV1(format.FileHeaderV1{FieldsStart: 1, SegmentNumber: uint16(n), FieldsEnd: 0})
		if _, err := w.pool.WriteAt(id, format.MagicSize, h[:]); err != nil {
			return err
		}
		w.offset = format.SectionsStartV1
	}
	return nil
}

func (w *writer) writeMetadataSections(id iopool.PathID) error {
	hv := format.NewHeaderValues()
	hv.Set(format.HeaderKeyCaseNumber, w.cfg.caseNumber)
	hv.Set(format.HeaderKeyDescription, w.cfg.description)
	hv.Set(format.HeaderKeyEvidenceNumber, w.cfg.evidenceNum)
	hv.Set(format.HeaderKeyExaminer, w.cfg.examiner)
	hv.Set(format.HeaderKeyNotes, w.cfg.notes)

	headerPayload, err := format.EncodeHeaderValues(hv, format.EncodingASCII)
	if err != nil {
		return err
	}
	if err := w.writeSection(id, format.SectionHeader, headerPayload); err != nil {
		return err
	}
	header2Payload, err := format.EncodeHeaderValues(hv, format.EncodingUTF16LE)
	if err != nil {
		return err
	}
	if err := w.writeSection(id, format.SectionHeader2, header2Payload); err != nil {
		return err
	}

	vol := format.Volume{
		MediaType:        w.cfg.mediaType,
		MediaFlags:       w.cfg.mediaFlags,
		SectorsPerChunk:  w.cfg.chunkSize / w.cfg.bytesPerSector,
		BytesPerSector:   w.cfg.bytesPerSector,
		CompressionLevel: compressionLevelByte(w.cfg.compression),
	}
	w.volumeTemplate = vol
	w.volumePayloadOffset = w.offset + format.SectionHeaderSize
	return w.writeSection(id, format.SectionVolume, format.EncodeVolume(vol))
}

// finalizeVolumeSectorCount backpatches the volume section's ChunkCount and
// SectorCount once the true acquired length is known, mirroring how
// finalizeSectorsHeader backpatches the sectors section's Size. The volume
// section is written at segment-1-open time, before any chunk data exists,
// so these fields can't be correct until Close.
func (w *writer) finalizeVolumeSectorCount() error {
	bps := int64(w.cfg.bytesPerSector)
	if bps <= 0 {
		return nil
	}
	vol := w.volumeTemplate
	vol.ChunkCount = uint32(w.totalChunks)
	vol.SectorCount = uint64(w.totalWritten.Load() / bps)
	_, err := w.pool.WriteAt(w.segment1ID, w.volumePayloadOffset, format.EncodeVolume(vol))
	return err
}

func compressionLevelByte(l chunkio.CompressionLevel) uint8 {
	switch l {
	case chunkio.LevelFast:
		return format.CompressionFast
	case chunkio.LevelBest:
		return format.CompressionBest
	default:
		return format.CompressionNone
	}
}

// openSectorsSection reserves a 76-byte section header for the sectors
// section about to be filled by writeChunk; its Size and NextOffset are
// unknown until the segment (or the chunk-size rollover) closes it.
func (w *writer) openSectorsSection(id iopool.PathID) error {
	headerOffset := w.offset
	var empty [format.SectionHeaderSize]byte
	if _, err := w.pool.WriteAt(id, headerOffset, empty[:]); err != nil {
		return err
	}

	if err := w.linkPrevious(id, headerOffset); err != nil {
		return err
	}

	w.sectorsHeaderOffset = headerOffset
	w.sectorsPayloadStart = headerOffset + format.SectionHeaderSize
	w.offset = w.sectorsPayloadStart
	w.pendingEntries = nil
	w.chunksInSegment = 0

	var sh format.SectionDescriptor
	copy(sh.Type[:], format.SectionSectors)
	w.lastHeader = sh
	w.lastHeaderOffset = headerOffset
	return nil
}

// finalizeSectorsHeader fills in the sectors section's now-known Size and
// writes it, leaving it as the "previous section" for the next
// writeSection call to backpatch its NextOffset.
func (w *writer) finalizeSectorsHeader() error {
	size := uint64(w.offset - w.sectorsHeaderOffset)
	w.lastHeader.Size = size
	encoded := format.EncodeSectionHeader(w.lastHeader)
	_, err := w.pool.WriteAt(w.segmentID, w.sectorsHeaderOffset, encoded[:])
	return err
}

// writeSection appends a fully-known section (header+payload) at the
// current offset and backpatches the previous section's NextOffset to
// point at it, implementing the singly-linked section chain of spec.md
// section 3.
func (w *writer) writeSection(id iopool.PathID, sectionType string, payload []byte) error {
	selfOffset := w.offset
	var sh format.SectionDescriptor
	copy(sh.Type[:], sectionType)
	sh.Size = uint64(format.SectionHeaderSize + len(payload))
	encodedHeader := format.EncodeSectionHeader(sh)

	var ws writerseeker.WriterSeeker
	ws.Write(encodedHeader[:])
	ws.Write(payload)
	buf, err := io.ReadAll(ws.BytesReader())
	if err != nil {
		return err
	}
	if _, err := w.pool.WriteAt(id, selfOffset, buf); err != nil {
		return err
	}

	if err := w.linkPrevious(id, selfOffset); err != nil {
		return err
	}
	w.lastHeader = sh
	w.lastHeaderOffset = selfOffset
	w.offset = selfOffset + int64(len(buf))
	return nil
}

// linkPrevious backpatches the most recently written section header's
// NextOffset to point at selfOffset, implementing the singly-linked
// section chain of spec.md section 3. A no-op for the first section of a
// segment, where there is nothing to link from.
func (w *writer) linkPrevious(id iopool.PathID, selfOffset int64) error {
	if w.lastHeaderOffset < 0 {
		return nil
	}
	w.lastHeader.NextOffset = uint64(selfOffset)
	patched := format.EncodeSectionHeader(w.lastHeader)
	_, err := w.pool.WriteAt(id, w.lastHeaderOffset, patched[:])
	return err
}

// closeSegment finalizes the open sectors section, emits the table (and,
// for v1, a redundant table2), and — for the final segment — the hash,
// digest, and any error2 section before the terminating "done" section;
// non-final segments end in "next".
func (w *writer) closeSegment(isLast bool) error {
	if err := w.finalizeSectorsHeader(); err != nil {
		return err
	}

	table := format.RawTable{BaseOffset: uint64(w.sectorsPayloadStart), Entries: w.pendingEntries}
	payload := format.EncodeTable(table)
	if err := w.writeSection(w.segmentID, format.SectionTable, payload); err != nil {
		return err
	}
	if w.version == format.Version1 {
		if err := w.writeSection(w.segmentID, format.SectionTable2, payload); err != nil {
			return err
		}
	}

	if isLast {
		if err := w.writeSection(w.segmentID, format.SectionHash, format.EncodeHash(format.Hash{MD5: md5Array(w.md5)})); err != nil {
			return err
		}
		if err := w.writeSection(w.segmentID, format.SectionDigest, format.EncodeDigest(format.Digest{MD5: md5Array(w.md5), SHA1: sha1Array(w.sha1)})); err != nil {
			return err
		}
		if len(w.errorRanges) > 0 {
			if err := w.writeSection(w.segmentID, format.SectionError2, format.EncodeErrorRanges(w.errorRanges)); err != nil {
				return err
			}
		}
		if err := w.writeSection(w.segmentID, format.SectionDone, nil); err != nil {
			return err
		}
	} else {
		if err := w.writeSection(w.segmentID, format.SectionNext, nil); err != nil {
			return err
		}
	}

	return w.pool.Sync(w.segmentID)
}

func md5Array(h hash.Hash) [16]byte {
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

func sha1Array(h hash.Hash) [20]byte {
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}
