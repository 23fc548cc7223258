package ewf

import (
	"context"
	"io"
	"sync"

	"github.com/go-ewf/ewf/internal/ewferr"
	"github.com/go-ewf/ewf/internal/format"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// AcquireSource is the positioned-read source Acquire pulls raw media
// bytes from, typically an *os.File opened on the physical or logical
// device being imaged.
type AcquireSource interface {
	io.ReaderAt
}

type acquireOptions struct {
	workers int
	retries int
	abort   <-chan struct{}
}

// AcquireOption configures Acquire.
type AcquireOption func(*acquireOptions)

// WithAcquireWorkers bounds how many chunk reads from the source run
// concurrently (spec.md section 5). Default 4.
func WithAcquireWorkers(n int) AcquireOption {
	return func(o *acquireOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithAcquireRetries overrides the per-chunk retry count set by
// WithRetries at Create time.
func WithAcquireRetries(n int) AcquireOption {
	return func(o *acquireOptions) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithAcquireAbort supplies a channel that, once closed, stops Acquire
// from scheduling further chunk reads; in-flight reads are allowed to
// finish.
func WithAcquireAbort(ch <-chan struct{}) AcquireOption {
	return func(o *acquireOptions) { o.abort = ch }
}

// Acquire reads totalSize bytes from src in chunkSize-sized pieces through
// a bounded worker pool, per spec.md section 5: reads are fanned out
// across WithAcquireWorkers goroutines (golang.org/x/sync/semaphore caps
// concurrency, golang.org/x/sync/errgroup collects the first error), while
// a single drain goroutine feeds completed chunks to img.Write in strict
// logical order, since the segmented writer requires sequential input.
//
// A chunk that fails every retry attempt is zero-filled and its sector
// range is recorded in the image's error2 section rather than aborting
// the whole acquisition, matching libewf's acquire-time error handling.
func Acquire(img *Image, src AcquireSource, totalSize int64, opts ...AcquireOption) error {
	if img.writer == nil {
		return ewferr.InvalidArgument("ewf: Acquire requires an Image opened with Create")
	}

	o := &acquireOptions{workers: 4, retries: img.writer.cfg.retries, abort: img.writer.cfg.abort}
	for _, opt := range opts {
		opt(o)
	}

	chunkSize := int64(img.chunkSize)
	total := (totalSize + chunkSize - 1) / chunkSize
	if total == 0 {
		return nil
	}

	type chunkResult struct {
		data []byte
		ok   bool
	}

	var mu sync.Mutex
	cond := sync.NewCond(&mu)
	pending := make(map[int64]chunkResult, 2*o.workers)

	sem := semaphore.NewWeighted(int64(o.workers))
	g, ctx := errgroup.WithContext(context.Background())

	drainDone := make(chan error, 1)
	go func() {
		next := int64(0)
		mu.Lock()
		defer mu.Unlock()
		for next < total {
			r, ok := pending[next]
			if !ok {
				cond.Wait()
				continue
			}
			delete(pending, next)
			mu.Unlock()

			var err error
			if r.ok {
				_, err = img.Write(r.data)
			} else {
				img.recordAcquireError(next)
				_, err = img.Write(r.data) // zero-filled
			}

			mu.Lock()
			if err != nil {
				drainDone <- err
				return
			}
			next++
		}
		drainDone <- nil
	}()

	scheduled := int64(0)
schedule:
	for idx := int64(0); idx < total; idx++ {
		idx := idx
		if o.abort != nil {
			select {
			case <-o.abort:
				break schedule
			default:
			}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		scheduled++
		g.Go(func() error {
			defer sem.Release(1)
			off := idx * chunkSize
			want := chunkSize
			if off+want > totalSize {
				want = totalSize - off
			}
			buf := make([]byte, want)
			ok := readChunkWithRetries(src, buf, off, o.retries)

			mu.Lock()
			pending[idx] = chunkResult{data: buf, ok: ok}
			cond.Broadcast()
			mu.Unlock()
			return nil
		})
	}

	// An abort or semaphore failure can leave scheduled < total; shrink the
	// drain goroutine's target so it stops waiting on chunks that were
	// never dispatched instead of blocking forever.
	if scheduled < total {
		mu.Lock()
		total = scheduled
		cond.Broadcast()
		mu.Unlock()
	}

	workerErr := g.Wait()
	drainErr := <-drainDone
	if drainErr != nil {
		return drainErr
	}
	if workerErr != nil {
		return workerErr
	}
	if scheduled < int64((totalSize+chunkSize-1)/chunkSize) {
		return ewferr.Aborted
	}
	return nil
}

// readChunkWithRetries reads len(buf) bytes at off, retrying on error up
// to retries additional times. buf is left zeroed on total failure.
func readChunkWithRetries(src AcquireSource, buf []byte, off int64, retries int) bool {
	for attempt := 0; attempt <= retries; attempt++ {
		for i := range buf {
			buf[i] = 0
		}
		n, err := src.ReadAt(buf, off)
		if err == nil || (err == io.EOF && n == len(buf)) {
			return true
		}
	}
	for i := range buf {
		buf[i] = 0
	}
	return false
}

// recordAcquireError appends the sector range covered by logical chunk
// idx to the pending error2 list Close will persist.
func (img *Image) recordAcquireError(idx int64) {
	bps := img.writer.cfg.bytesPerSector
	if bps == 0 {
		bps = 1
	}
	sectorsPerChunk := img.chunkSize / bps
	if sectorsPerChunk == 0 {
		sectorsPerChunk = 1
	}
	img.writer.errorRanges = append(img.writer.errorRanges, format.ErrorRange{
		FirstSector: uint32(idx) * sectorsPerChunk,
		SectorCount: sectorsPerChunk,
	})
	img.log.Warn("acquisition read failed, chunk zero-filled", zap.Int64("chunk", idx))
}
