// Command ewfacquire reads a source device or file and writes it out as a
// segmented EWF/E01 image, per spec.md section 6.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	ewf "github.com/go-ewf/ewf"
	"github.com/go-ewf/ewf/internal/chunkio"
	"github.com/go-ewf/ewf/internal/cliutil"
	"github.com/go-ewf/ewf/internal/format"
	"go.uber.org/zap"
)

const usage = `ewfacquire [-b chunk] [-B bytes] [-c compression] [-f format] [-S segsize]
           [-t target] [-C case] [-D description] [-E evidence]
           [-e examiner] [-N notes] [-M media-type] [-m media-flags]
           [-o offset] [-P bytes-per-sector] [-r retries] [-w]
           SOURCE
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fset := flag.NewFlagSet("ewfacquire", flag.ContinueOnError)
	fset.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	sectorsPerChunk := fset.Uint("b", ewf.DefaultSectorsPerChunk, "sectors per chunk")
	bytesPerSector := fset.Uint("B", ewf.DefaultBytesPerSector, "bytes per sector")
	compression := fset.String("c", "none", "compression level: none, fast, best")
	formatName := fset.String("f", "ewf", "output format: ewf, ewf2, smart, logical, logical2")
	segsize := fset.String("S", "1.4GiB", "maximum segment size")
	target := fset.String("t", "image", "output base path (without extension)")
	caseNumber := fset.String("C", "", "case number")
	description := fset.String("D", "", "description")
	evidenceNum := fset.String("E", "", "evidence number")
	examiner := fset.String("e", "", "examiner name")
	notes := fset.String("N", "", "notes")
	mediaType := fset.Uint("M", format.MediaTypeFixed, "media type byte")
	mediaFlags := fset.Uint("m", format.MediaFlagImage, "media flags byte")
	offset := fset.Int64("o", 0, "byte offset into SOURCE to start reading from")
	retries := fset.Int("r", 2, "read retry count before recording a sector error")
	workers := fset.Int("j", 4, "concurrent reader goroutines")
	wipe := fset.Bool("w", false, "accept unrecoverable read errors (their chunks are always zero-filled and recorded); without -w they make the exit status non-zero")
	if err := fset.Parse(args); err != nil {
		return 1
	}
	if fset.NArg() != 1 {
		fset.Usage()
		return 1
	}
	source := fset.Arg(0)

	maxSegment, err := cliutil.ParseBytes(*segsize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ewfacquire: %v\n", err)
		return 1
	}
	level, err := parseCompression(*compression)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ewfacquire: %v\n", err)
		return 1
	}
	variant, err := parseVariant(*formatName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ewfacquire: %v\n", err)
		return 1
	}

	src, err := os.Open(source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ewfacquire: %v\n", err)
		return 2
	}
	defer src.Close()

	st, err := src.Stat()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ewfacquire: %v\n", err)
		return 2
	}
	totalSize := st.Size() - *offset
	if totalSize < 0 {
		fmt.Fprintf(os.Stderr, "ewfacquire: offset %d is past end of source\n", *offset)
		return 1
	}

	logger := zap.NewNop()
	img, err := ewf.Create(*target,
		ewf.WithFormatVariant(variant),
		ewf.WithMaxSegmentSize(maxSegment),
		ewf.WithChunkSize(uint32(*sectorsPerChunk), uint32(*bytesPerSector)),
		ewf.WithCompression(level),
		ewf.WithCaseMetadata(*caseNumber, *description, *evidenceNum, *examiner, *notes),
		ewf.WithMediaType(uint8(*mediaType), uint8(*mediaFlags)),
		ewf.WithRetries(*retries),
		ewf.WithCreateLogger(logger),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ewfacquire: %v\n", err)
		return 2
	}

	progress := cliutil.NewProgress(os.Stdout, "acquiring")
	done := make(chan struct{})
	go reportAcquireProgress(progress, img, totalSize, done)

	started := time.Now()
	acquireErr := ewf.Acquire(img, &offsetSource{f: src, base: *offset}, totalSize,
		ewf.WithAcquireWorkers(*workers),
		ewf.WithAcquireRetries(*retries),
	)
	close(done)
	progress.Done()

	closeErr := img.Close()
	if acquireErr != nil {
		fmt.Fprintf(os.Stderr, "ewfacquire: %v\n", acquireErr)
		if ewf.IsCode(acquireErr, ewf.ErrCodeAborted) {
			return 130
		}
		return 2
	}
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "ewfacquire: %v\n", closeErr)
		return 2
	}
	if !*wipe && len(img.ErrorRanges()) > 0 {
		fmt.Fprintf(os.Stderr, "ewfacquire: %d unrecoverable sector range(s); rerun with -w to accept a wiped image\n", len(img.ErrorRanges()))
		return 2
	}

	fmt.Printf("acquired %s in %s (%d read error range(s))\n", cliutil.FormatBytes(totalSize), time.Since(started).Round(time.Millisecond), len(img.ErrorRanges()))
	return 0
}

// offsetSource shifts every read by base, letting -o skip a leading range
// of the source device without copying it.
type offsetSource struct {
	f    *os.File
	base int64
}

func (s *offsetSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, s.base+off)
}

func reportAcquireProgress(p *cliutil.Progress, img *ewf.Image, total int64, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.Update(img.Written(), total, "reading")
		}
	}
}

func parseCompression(s string) (chunkio.CompressionLevel, error) {
	switch s {
	case "none", "":
		return chunkio.LevelNone, nil
	case "fast":
		return chunkio.LevelFast, nil
	case "best":
		return chunkio.LevelBest, nil
	default:
		return 0, fmt.Errorf("unknown compression level %q", s)
	}
}

func parseVariant(s string) (format.Variant, error) {
	switch s {
	case "ewf", "":
		return format.VariantEWF, nil
	case "ewf2":
		return format.VariantEWF2, nil
	case "smart":
		return format.VariantSmart, nil
	case "logical":
		return format.VariantLogical, nil
	case "logical2":
		return format.VariantLogical2, nil
	default:
		return 0, fmt.Errorf("unknown output format %q", s)
	}
}
