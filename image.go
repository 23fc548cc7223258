// Package ewf opens, reads, verifies, and creates Expert Witness
// Compression Format (EWF/E01) forensic disk images: a set of segmented
// container files exposed as one contiguous, random-access, integrity
// checked byte stream of the originally acquired media.
package ewf

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-ewf/ewf/internal/cache"
	"github.com/go-ewf/ewf/internal/chunkio"
	"github.com/go-ewf/ewf/internal/chunktable"
	"github.com/go-ewf/ewf/internal/delta"
	"github.com/go-ewf/ewf/internal/ewferr"
	"github.com/go-ewf/ewf/internal/format"
	"github.com/go-ewf/ewf/internal/iopool"
	"github.com/go-ewf/ewf/internal/ltree"
	"github.com/go-ewf/ewf/internal/metadata"
	"go.uber.org/zap"
)

// Image is the user-facing handle on one acquired piece of media: it owns
// the segment set, the chunk-table index, the chunk cache, the delta
// overlay, and the metadata store, per spec.md section 3.
type Image struct {
	cfg *openConfig
	log *zap.Logger

	pool     *iopool.Pool
	segments []segmentInfo
	index    *chunktable.Index
	overlay  *delta.Overlay
	meta     *metadata.Store
	cache    *cache.Cache
	tree     *ltree.Tree

	mu        sync.Mutex // guards size bookkeeping, not chunk reads
	totalSize int64
	chunkSize uint32
	volume    format.Volume

	writer *writer // non-nil when the Image is open for write (Create)

	firstSegmentPath string       // set by Open; empty for a Create'd image
	deltaChainLen    int          // number of .d0N segments discovered at Open time
	deltaW           *deltaWriter // lazily opened by the first PatchChunk call
}

// Open opens a primary segment chain (and any .d0n delta chain beside it)
// starting from the given first-segment path, parses every section,
// validates the chunk-table invariants of spec.md section 4.3, and returns
// a ready-to-read Image.
func Open(firstSegmentPath string, opts ...OpenOption) (*Image, error) {
	cfg := defaultOpenConfig()
	for _, o := range opts {
		o(cfg)
	}

	pool := iopool.New(cfg.poolCeiling)
	img := &Image{
		cfg:     cfg,
		log:     cfg.logger,
		pool:    pool,
		meta:    metadata.New(),
		overlay: delta.New(),
		cache:   cache.New(cfg.cacheChunks),
	}

	paths, err := discoverSegmentChain(firstSegmentPath)
	if err != nil {
		pool.Close()
		return nil, err
	}

	parser := &segmentParser{pool: pool, meta: img.meta, log: img.log}
	for n, path := range paths {
		id := pool.Register(path, false)
		info, err := parser.parseSegment(id)
		if err != nil {
			if cfg.allowIncomplete && len(img.segments) > 0 {
				img.log.Warn("ewf: stopping at last intact segment", zap.Int("segment", n+1), zap.Error(err))
				break
			}
			pool.Close()
			return nil, ewferr.Wrap(fmt.Sprintf("ewf: parse segment %d (%s)", n+1, path), err)
		}
		img.segments = append(img.segments, info)
		if n < len(paths)-1 && info.endedIn != format.SectionNext {
			if cfg.allowIncomplete {
				break
			}
			pool.Close()
			return nil, ewferr.MissingSegment(n + 2)
		}
	}
	if len(img.segments) == 0 {
		pool.Close()
		return nil, ewferr.WriteResumeNeeded(firstSegmentPath)
	}
	last := img.segments[len(img.segments)-1]
	if last.endedIn != format.SectionDone && !cfg.allowIncomplete {
		pool.Close()
		return nil, ewferr.WriteResumeNeeded(last.path)
	}
	img.index = parser.index
	img.chunkSize = parser.chunkSize
	img.volume = parser.volume
	img.tree = parser.tree

	deltaPaths, err := discoverDeltaChain(firstSegmentPath)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if len(deltaPaths) > 0 {
		deltaParser := &segmentParser{pool: pool, meta: metadata.New(), delta: img.overlay, log: img.log, chunkSize: img.chunkSize}
		for _, path := range deltaPaths {
			id := pool.Register(path, false)
			if _, err := deltaParser.parseSegment(id); err != nil {
				pool.Close()
				return nil, ewferr.Wrap("ewf: parse delta segment "+path, err)
			}
		}
	}
	img.firstSegmentPath = firstSegmentPath
	img.deltaChainLen = len(deltaPaths)

	if !cfg.allowIncomplete && img.volume.ChunkCount != 0 && int(img.volume.ChunkCount) != img.index.Len() {
		pool.Close()
		return nil, ewferr.CorruptSection(last.path, 0, fmt.Sprintf("volume declares %d chunks, tables index %d", img.volume.ChunkCount, img.index.Len()))
	}

	sizes := make(map[iopool.PathID]int64, len(img.segments))
	for _, s := range img.segments {
		sizes[s.id] = s.size
	}
	if bad := img.index.Validate(sizes); len(bad) > 0 {
		sort.Ints(bad)
		pool.Close()
		return nil, ewferr.CorruptSection(last.path, 0, fmt.Sprintf("invalid entries at chunks %v", bad[:min(len(bad), 8)]))
	}

	img.totalSize = computeLogicalSize(img.index, img.chunkSize, img.volume)
	img.log.Info("ewf image opened",
		zap.Int("segments", len(img.segments)),
		zap.Int("chunks", img.index.Len()),
		zap.Int64("size", img.totalSize),
		zap.Int("delta_overrides", img.overlay.Len()),
	)
	return img, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// computeLogicalSize derives stream.size() per spec.md section 4.6: N*C
// minus the short tail of the last chunk. The volume section's declared
// sector count is authoritative when present and no larger than the
// indexed chunks (Open rejects an image whose volume chunk count differs
// from the tables' as CorruptSection, except under WithAllowIncomplete,
// where a declared size past the indexed chunks is cut back to them); it
// falls back to a whole number of chunks when the volume section didn't
// carry sector geometry (e.g. a logical-evidence image with no raw-sector
// volume section).
func computeLogicalSize(idx *chunktable.Index, chunkSize uint32, vol format.Volume) int64 {
	n := idx.Len()
	if n == 0 || chunkSize == 0 {
		return 0
	}
	if vol.BytesPerSector != 0 && vol.SectorCount != 0 {
		declared := int64(vol.SectorCount) * int64(vol.BytesPerSector)
		if declared <= int64(n)*int64(chunkSize) {
			return declared
		}
	}
	return int64(n) * int64(chunkSize)
}

// Close releases every open segment descriptor.
func (img *Image) Close() error {
	if img.writer != nil {
		if err := img.writer.Close(); err != nil {
			return err
		}
	}
	if img.deltaW != nil {
		if err := img.closeDeltaWriter(); err != nil {
			return err
		}
	}
	return img.pool.Close()
}

// ChunkSize returns the declared uncompressed chunk size in bytes.
func (img *Image) ChunkSize() uint32 { return img.chunkSize }

// ChunkCount returns the number of logical chunks in the image.
func (img *Image) ChunkCount() int { return img.index.Len() }

// Size returns the logical byte length of the acquired media, per
// spec.md section 4.6.
func (img *Image) Size() int64 {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.totalSize
}

// HeaderValue looks up one acquisition metadata field (case number,
// examiner, and so on — see internal/format.HeaderKey* constants).
func (img *Image) HeaderValue(key string) (string, bool) {
	return img.meta.HeaderValue(key)
}

// HeaderKeys returns every acquisition metadata key present, in the order
// the header section declared them.
func (img *Image) HeaderKeys() []string {
	return img.meta.HeaderValues().Keys()
}

// Volume returns the declared media geometry (media type/flags, sector
// count, bytes per sector) from the volume/disk section.
func (img *Image) Volume() format.Volume {
	return img.volume
}

// Sessions returns the optical-disc session/track table, if the image
// carries one.
func (img *Image) Sessions() []format.Session {
	return img.meta.Sessions()
}

// Tree returns the logical-evidence file tree, for images acquired in
// files mode (spec.md section 4.9). nil for a raw-volume image.
func (img *Image) Tree() *ltree.Tree {
	return img.tree
}

// Hash returns the stored digest of the given name ("MD5", "SHA1"), as
// recorded at acquisition time.
func (img *Image) Hash(name string) ([]byte, bool) {
	return img.meta.Hash(name)
}

// ErrorRanges returns the acquisition error ranges recorded in the image's
// error2 section, if any. For an image from Create it returns the ranges
// Acquire has recorded so far.
func (img *Image) ErrorRanges() []format.ErrorRange {
	if img.meta == nil {
		if img.writer != nil {
			return append([]format.ErrorRange(nil), img.writer.errorRanges...)
		}
		return nil
	}
	return img.meta.ErrorRanges()
}

// readChunk implements the read path of spec.md section 4.4: resolve the
// entry (delta overlay first), read the stored bytes through the pool, and
// decode them. It is the Loader passed to the chunk cache.
func (img *Image) readChunk(i int) ([]byte, error) {
	entry, ok := img.overlay.Get(i)
	if !ok {
		entry, ok = img.index.Get(i)
		if !ok {
			return nil, ewferr.InvalidArgument("ewf: chunk %d out of range", i)
		}
	}

	stored := make([]byte, entry.StoredSize)
	if _, err := img.pool.ReadAt(entry.SegmentID, int64(entry.FileOffset), stored); err != nil {
		return nil, err
	}

	rawSize := int(img.chunkSize)
	if i == img.index.Len()-1 {
		// last chunk may be short; decode at full declared size and let the
		// decompressor/caller trim to the actual payload length.
		rawSize = int(img.chunkSize)
	}
	decoded := chunkio.Decode(i, stored, entry.Compressed(), entry.HasTrailingChecksum(), rawSize)
	if decoded.Checksum != nil {
		img.log.Warn("chunk integrity check failed", zap.Int("chunk", i), zap.Error(decoded.Checksum))
		return decoded.Data, decoded.Checksum
	}
	return decoded.Data, nil
}

// ReadChunk returns the decoded bytes of logical chunk i, going through
// the chunk cache. Exported for callers (e.g. the ltree file-tree reader
// and the FUSE adapter) that need direct chunk-granularity access.
func (img *Image) ReadChunk(i int) ([]byte, error) {
	return img.cache.Get(i, img.readChunk)
}
