package ewf

import (
	"github.com/go-ewf/ewf/internal/chunkio"
	"github.com/go-ewf/ewf/internal/format"
	"go.uber.org/zap"
)

// Defaults from spec.md: 32 sectors/chunk * 512 B/sector = 16 KiB chunks,
// an 8-chunk (~128 KiB) decode cache, and a 1.4 GiB segment ceiling.
const (
	DefaultBytesPerSector  = 512
	DefaultSectorsPerChunk = 32
	DefaultChunkSize       = DefaultBytesPerSector * DefaultSectorsPerChunk
	DefaultCacheChunks     = 8
	DefaultMaxSegmentSize  = int64(1.4 * 1024 * 1024 * 1024)
)

// openConfig holds the resolved options for Open.
type openConfig struct {
	poolCeiling     int
	cacheChunks     int
	logger          *zap.Logger
	abort           <-chan struct{}
	allowIncomplete bool
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

func defaultOpenConfig() *openConfig {
	return &openConfig{
		cacheChunks: DefaultCacheChunks,
		logger:      zap.NewNop(),
	}
}

// WithPoolCeiling overrides the byte-I/O pool's open-descriptor ceiling
// (default: min(RLIMIT_NOFILE/2, 128), see internal/iopool.DefaultCeiling).
func WithPoolCeiling(n int) OpenOption {
	return func(c *openConfig) { c.poolCeiling = n }
}

// WithCacheChunks overrides the decoded-chunk LRU cache capacity.
func WithCacheChunks(n int) OpenOption {
	return func(c *openConfig) {
		if n > 0 {
			c.cacheChunks = n
		}
	}
}

// WithLogger supplies a per-Image structured logger, replacing the
// source's process-global notify stream (spec.md section 9). Pass
// zap.NewNop() (the default) to stay silent.
func WithLogger(l *zap.Logger) OpenOption {
	return func(c *openConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAbort stores an abort channel in the Image's open configuration. No
// read path of Image polls it: ReadAt, ReadChunk and Reader run to
// completion whether or not it is closed. Acquire is cancelled through
// WithCreateAbort or WithAcquireAbort.
func WithAbort(ch <-chan struct{}) OpenOption {
	return func(c *openConfig) { c.abort = ch }
}

// WithAllowIncomplete opens the image in resume/recovery mode (ewfrecover,
// spec.md's "WriteResumeNeeded ... Resume-mode only" recovery path): a
// chain missing its terminating "done" section, or a segment that fails to
// parse, no longer fails Open — the chain is truncated at the last intact
// segment and whatever chunks it indexed are served as the whole image.
func WithAllowIncomplete() OpenOption {
	return func(c *openConfig) { c.allowIncomplete = true }
}

// createConfig holds the resolved options for Create.
type createConfig struct {
	variant       format.Variant
	maxSegment    int64
	chunkSize     uint32
	compression   chunkio.CompressionLevel
	emptyBlock    bool
	logger        *zap.Logger
	abort         <-chan struct{}
	caseNumber    string
	description   string
	evidenceNum   string
	examiner      string
	notes         string
	mediaType     uint8
	mediaFlags    uint8
	bytesPerSector uint32
	retries       int
}

// CreateOption configures Create.
type CreateOption func(*createConfig)

func defaultCreateConfig() *createConfig {
	return &createConfig{
		variant:        format.VariantEWF,
		maxSegment:     DefaultMaxSegmentSize,
		chunkSize:      DefaultChunkSize,
		compression:    chunkio.LevelNone,
		logger:         zap.NewNop(),
		mediaType:      format.MediaTypeFixed,
		mediaFlags:     format.MediaFlagImage,
		bytesPerSector: DefaultBytesPerSector,
		retries:        0,
	}
}

func WithFormatVariant(v format.Variant) CreateOption {
	return func(c *createConfig) { c.variant = v }
}

func WithMaxSegmentSize(n int64) CreateOption {
	return func(c *createConfig) {
		if n > 0 {
			c.maxSegment = n
		}
	}
}

func WithChunkSize(sectorsPerChunk uint32, bytesPerSector uint32) CreateOption {
	return func(c *createConfig) {
		if sectorsPerChunk > 0 {
			c.bytesPerSector = bytesPerSector
			c.chunkSize = sectorsPerChunk * bytesPerSector
		}
	}
}

func WithCompression(level chunkio.CompressionLevel) CreateOption {
	return func(c *createConfig) { c.compression = level }
}

// WithEmptyBlockCompression forces all-zero chunks to always be stored
// compressed, regardless of whether the compressed form is actually
// smaller, per spec.md section 4.4.
func WithEmptyBlockCompression() CreateOption {
	return func(c *createConfig) { c.emptyBlock = true }
}

func WithCaseMetadata(caseNumber, description, evidenceNumber, examiner, notes string) CreateOption {
	return func(c *createConfig) {
		c.caseNumber = caseNumber
		c.description = description
		c.evidenceNum = evidenceNumber
		c.examiner = examiner
		c.notes = notes
	}
}

func WithMediaType(mediaType, mediaFlags uint8) CreateOption {
	return func(c *createConfig) {
		c.mediaType = mediaType
		c.mediaFlags = mediaFlags
	}
}

// WithRetries sets how many times ewfacquire re-reads a failing source
// range before recording it into the error2 acquisition-error list
// (ported from libewf's device_handle.c, see SPEC_FULL.md section 4).
func WithRetries(n int) CreateOption {
	return func(c *createConfig) {
		if n >= 0 {
			c.retries = n
		}
	}
}

func WithCreateLogger(l *zap.Logger) CreateOption {
	return func(c *createConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCreateAbort supplies the abort channel Acquire polls when no
// WithAcquireAbort channel is given; once it is closed, Acquire stops
// scheduling chunk reads and returns ErrAborted.
func WithCreateAbort(ch <-chan struct{}) CreateOption {
	return func(c *createConfig) { c.abort = ch }
}
