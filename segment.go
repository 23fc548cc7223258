package ewf

import (
	"github.com/go-ewf/ewf/internal/chunktable"
	"github.com/go-ewf/ewf/internal/delta"
	"github.com/go-ewf/ewf/internal/ewferr"
	"github.com/go-ewf/ewf/internal/format"
	"github.com/go-ewf/ewf/internal/iopool"
	"github.com/go-ewf/ewf/internal/ltree"
	"github.com/go-ewf/ewf/internal/metadata"
	"go.uber.org/zap"
)

// segmentInfo is what the parser keeps about one physical segment file
// after reading its header, per spec.md section 3 (Segment).
type segmentInfo struct {
	id      iopool.PathID
	path    string
	number  int
	version format.Version
	size    int64
	endedIn string // "next" or "done"
}

// segmentParser walks the section chain of one segment file and folds its
// table/header/hash/error2/session sections into the shared index and
// metadata store. One parser instance is reused across all segments of an
// image (primary or delta) so the chunk counter stays global.
type segmentParser struct {
	pool  *iopool.Pool
	index *chunktable.Index
	meta  *metadata.Store
	delta *delta.Overlay // non-nil only when parsing a delta chain
	log   *zap.Logger

	chunkCounter       int
	chunkSize          uint32
	volumeSeen         bool
	volume             format.Volume
	lastSectorsEnd     uint64
	tableAppliedForRun bool        // true once a table/table2 has populated the index for the current sectors run
	tree               *ltree.Tree // non-nil once an "ltree" section has been parsed

	deltaCounterSeeded bool // true once a delta chain's starting chunk index has been read
}

// parseSegment reads the magic, dispatches to the v1/v2 decoder, and walks
// the section chain. It returns the parsed segmentInfo.
func (p *segmentParser) parseSegment(id iopool.PathID) (segmentInfo, error) {
	path := p.pool.Path(id)
	size, err := p.pool.Size(id)
	if err != nil {
		return segmentInfo{}, err
	}

	var magic [8]byte
	if _, err := p.pool.ReadAt(id, 0, magic[:]); err != nil {
		return segmentInfo{}, err
	}
	version := format.DetectVersion(magic)
	if version == format.VersionUnknown {
		return segmentInfo{}, ewferr.UnsupportedFormat(bytesHexPrefix(magic[:]))
	}

	var (
		segNumber int
		start     uint64
	)
	switch version {
	case format.Version1:
		var hbuf [format.FileHeaderV1Size]byte
		if _, err := p.pool.ReadAt(id, format.MagicSize, hbuf[:]); err != nil {
			return segmentInfo{}, err
		}
		h := format.DecodeFileHeaderV1(hbuf)
		segNumber = int(h.SegmentNumber)
		start = format.SectionsStartV1
		// Each delta segment carries the logical index of the first chunk
		// it overrides in the otherwise-unused FieldsEnd field (see
		// patch.go); table entries in a delta chain are not a contiguous
		// run from chunk 0 the way the primary chain's are.
		if p.delta != nil {
			p.chunkCounter = int(h.FieldsEnd)
			p.deltaCounterSeeded = true
		}
	case format.Version2:
		var hbuf [format.FileHeaderV2Size]byte
		if _, err := p.pool.ReadAt(id, format.MagicSize, hbuf[:]); err != nil {
			return segmentInfo{}, err
		}
		h := format.DecodeFileHeaderV2(hbuf)
		segNumber = int(h.SegmentNumber)
		start = format.SectionsStartV2
	}

	info := segmentInfo{id: id, path: path, number: segNumber, version: version, size: size}

	endedIn, err := p.walkSections(id, size, start)
	if err != nil {
		return info, err
	}
	info.endedIn = endedIn
	return info, nil
}

// walkSections follows next-offset from start to a terminator, decoding
// each section along the way. It returns the terminator's type ("next" or
// "done").
func (p *segmentParser) walkSections(id iopool.PathID, fileSize int64, start uint64) (string, error) {
	offset := start
	visited := map[uint64]bool{}
	for {
		if visited[offset] {
			return "", ewferr.CorruptSection(p.pool.Path(id), int64(offset), "<cycle>")
		}
		visited[offset] = true

		var hbuf [format.SectionHeaderSize]byte
		if _, err := p.pool.ReadAt(id, int64(offset), hbuf[:]); err != nil {
			return "", err
		}
		sh, ok := format.DecodeSectionHeader(hbuf)
		sectionType := sh.TypeString()
		if !ok {
			if sectionType != format.SectionTable && sectionType != format.SectionTable2 {
				return "", ewferr.CorruptSection(p.pool.Path(id), int64(offset), "<header>")
			}
			// A table/table2 descriptor checksum failure is recoverable per
			// spec.md section 4.2: skip this copy (its payload can't be
			// trusted either) and keep walking toward whichever of the pair
			// is still intact, instead of failing the whole segment.
			p.log.Warn("ewf: table section descriptor checksum mismatch, skipping",
				zap.String("type", sectionType), zap.Int64("offset", int64(offset)))
			if sh.NextOffset == 0 || sh.NextOffset <= offset || int64(sh.NextOffset) >= fileSize {
				return "", ewferr.CorruptSection(p.pool.Path(id), int64(offset), "<next-offset>")
			}
			offset = sh.NextOffset
			continue
		}

		payloadLen := int64(sh.Size) - format.SectionHeaderSize
		var payload []byte
		if payloadLen > 0 {
			payload = make([]byte, payloadLen)
			if _, err := p.pool.ReadAt(id, int64(offset)+format.SectionHeaderSize, payload); err != nil {
				return "", err
			}
		}

		if err := p.dispatch(id, sectionType, offset, payload); err != nil {
			return "", err
		}

		if sectionType == format.SectionDone || sectionType == format.SectionNext {
			return sectionType, nil
		}
		if sh.NextOffset == 0 || sh.NextOffset <= offset || int64(sh.NextOffset) >= fileSize {
			return "", ewferr.CorruptSection(p.pool.Path(id), int64(offset), "<next-offset>")
		}
		offset = sh.NextOffset
	}
}

func (p *segmentParser) dispatch(id iopool.PathID, sectionType string, offset uint64, payload []byte) error {
	switch sectionType {
	case format.SectionHeader:
		hv, err := format.DecodeHeaderValues(payload, format.EncodingASCII)
		if err == nil {
			p.meta.SetHeaderValues(hv)
		}
	case format.SectionHeader2:
		hv, err := format.DecodeHeaderValues(payload, format.EncodingUTF16LE)
		if err == nil {
			p.meta.SetHeaderValues(hv)
		}
	case format.SectionXHeader:
		hv, err := format.DecodeHeaderValues(payload, format.EncodingUTF8)
		if err == nil {
			p.meta.SetHeaderValues(hv)
		}
	case format.SectionVolume, format.SectionDisk:
		v, ok := format.DecodeVolume(payload)
		if !ok {
			return ewferr.CorruptSection(p.pool.Path(id), int64(offset), sectionType)
		}
		p.chunkSize = v.ChunkSize()
		p.index = chunktable.New(p.chunkSize)
		p.volumeSeen = true
		p.volume = v
	case format.SectionSectors, format.SectionDeltaSectors:
		p.lastSectorsEnd = offset + format.SectionHeaderSize + uint64(len(payload))
		p.tableAppliedForRun = false
	case format.SectionTable:
		return p.handleTable(id, payload, false)
	case format.SectionTable2:
		return p.handleTable(id, payload, true)
	case format.SectionError2:
		ranges, ok := format.DecodeErrorRanges(payload)
		if ok {
			for _, r := range ranges {
				p.meta.AddErrorRange(r)
			}
		}
	case format.SectionSession:
		sessions, ok := format.DecodeSessions(payload)
		if ok {
			p.meta.SetSessions(sessions)
		}
	case format.SectionHash:
		h, ok := format.DecodeHash(payload)
		if ok {
			p.meta.SetHash("MD5", h.MD5[:])
		}
	case format.SectionDigest:
		d, ok := format.DecodeDigest(payload)
		if ok {
			p.meta.SetHash("MD5", d.MD5[:])
			p.meta.SetHash("SHA1", d.SHA1[:])
		}
	case format.SectionLtree:
		tree, ok := format.DecodeLtree(payload)
		if !ok {
			return ewferr.CorruptSection(p.pool.Path(id), int64(offset), sectionType)
		}
		p.tree = tree
	case format.SectionNext, format.SectionDone, format.SectionLtype:
		// handled by the caller (terminator); ltype extensions are folded
		// directly into ltree.Node by this module, not decoded separately
	}
	return nil
}

// handleTable decodes a table (or, on a prior table's checksum failure,
// table2) section and folds its entries into the shared chunk-table index,
// per spec.md section 4.2/4.3. table2 is a verified copy of the
// immediately preceding table, used only when the table checksum fails; if
// the primary table already populated the index for this sectors run,
// table2 is redundant and must be skipped rather than folded in again.
func (p *segmentParser) handleTable(id iopool.PathID, payload []byte, isRedundant bool) error {
	raw, ok := format.DecodeTable(payload)
	if !ok {
		if isRedundant {
			return ewferr.CorruptTable(p.pool.Path(id))
		}
		// Primary table failed; the caller's next section may be a table2
		// recovery copy — that arrives as its own dispatch call and will
		// apply these entries for the same chunk range.
		return nil
	}
	if isRedundant && p.tableAppliedForRun {
		return nil
	}
	if p.index == nil && p.delta == nil {
		return ewferr.CorruptSection(p.pool.Path(id), 0, "table-before-volume")
	}

	n := len(raw.Entries)
	offsets := make([]uint64, n)
	compressed := make([]bool, n)
	for i, e := range raw.Entries {
		offsets[i] = format.EntryOffset(raw.BaseOffset, e)
		compressed[i] = format.EntryCompressed(e)
	}

	for i := 0; i < n; i++ {
		var storedSize uint32
		if i < n-1 {
			storedSize = uint32(offsets[i+1] - offsets[i])
		} else {
			if p.lastSectorsEnd <= offsets[i] {
				return ewferr.CorruptSection(p.pool.Path(id), int64(offsets[i]), "table-past-sectors")
			}
			storedSize = uint32(p.lastSectorsEnd - offsets[i])
		}

		flags := chunktable.Flags(0)
		if compressed[i] {
			flags |= chunktable.FlagCompressed
		} else {
			flags |= chunktable.FlagTrailingChecksum
		}

		entry := chunktable.Entry{SegmentID: id, FileOffset: offsets[i], StoredSize: storedSize, Flags: flags}
		if p.delta != nil {
			p.delta.Set(p.chunkCounter, entry)
		} else {
			p.index.Set(p.chunkCounter, entry)
		}
		p.chunkCounter++
	}
	p.tableAppliedForRun = true
	return nil
}

func bytesHexPrefix(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, hexdigits[c>>4], hexdigits[c&0xf])
	}
	return string(out)
}
