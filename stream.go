package ewf

import (
	"io"

	"github.com/go-ewf/ewf/internal/ewferr"
)

// ReadAt implements io.ReaderAt over the logical byte stream described in
// spec.md section 4.6: it decomposes [off, off+len(p)) into a head
// partial chunk, whole body chunks, and a tail partial chunk, each
// resolved through the chunk cache.
//
// Short-read semantics follow POSIX read(2): ReadAt returns fewer bytes
// than len(p) only at end of stream, signaled by io.EOF; when a chunk
// cannot be read after some bytes were delivered, ReadAt returns those
// bytes with a nil error, and the next call, which starts at the failing
// chunk, reports the error.
func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ewferr.InvalidArgument("ewf: negative offset %d", off)
	}
	size := img.Size()
	if off >= size {
		return 0, io.EOF
	}
	want := len(p)
	if int64(want) > size-off {
		want = int(size - off)
	}

	chunkSize := int64(img.chunkSize)
	n := 0
	for n < want {
		abs := off + int64(n)
		chunkIdx := int(abs / chunkSize)
		inChunk := int(abs % chunkSize)

		data, err := img.ReadChunk(chunkIdx)
		if err != nil && data == nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		if inChunk >= len(data) {
			// declared chunk size exceeds what this (short, final) chunk
			// actually holds; nothing more to deliver from it.
			break
		}
		take := len(data) - inChunk
		if take > want-n {
			take = want - n
		}
		copy(p[n:n+take], data[inChunk:inChunk+take])
		n += take
		if err != nil {
			// checksum/decompress error on this chunk: deliver what decoded
			// and surface the error rather than silently continuing.
			return n, err
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Reader returns an io.ReadSeeker over the image's logical byte stream,
// suitable for passing to code that wants a conventional stateful reader
// rather than positioned ReadAt calls.
func (img *Image) Reader() io.ReadSeeker {
	return &streamReader{img: img}
}

type streamReader struct {
	img *Image
	pos int64
}

func (r *streamReader) Read(p []byte) (int, error) {
	n, err := r.img.ReadAt(p, r.pos)
	r.pos += int64(n)
	return n, err
}

func (r *streamReader) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = r.pos
	case io.SeekEnd:
		base = r.img.Size()
	default:
		return 0, ewferr.InvalidArgument("ewf: invalid whence %d", whence)
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, ewferr.InvalidArgument("ewf: seek to negative offset %d", newPos)
	}
	r.pos = newPos
	return newPos, nil
}
