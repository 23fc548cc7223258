// Package iopool implements the positioned-read/write byte-I/O handle
// described in spec.md section 4.1: a pool of on-disk segment files opened
// on demand, capped at a configurable descriptor ceiling with LRU
// eviction. Every segment read or write in this module goes through a
// Pool rather than a raw *os.File held by an upper layer.
package iopool

import (
	"container/list"
	"fmt"
	"os"
	"sync"

	"github.com/go-ewf/ewf/internal/ewferr"
	"golang.org/x/sys/unix"
)

// PathID identifies one file registered with a Pool. Stable for the
// lifetime of the pool, independent of whether the file is currently open.
type PathID int

// Pool is a bounded cache of open file descriptors, keyed by PathID, with
// strict LRU eviction once the descriptor ceiling is reached. Reads/writes
// on different PathIDs may proceed concurrently; the pool serializes
// access to a single PathID's underlying *os.File.
type Pool struct {
	mu       sync.Mutex
	ceiling  int
	paths    []string
	writable []bool
	open     map[PathID]*list.Element // PathID -> LRU element
	lru      *list.List               // front = most recently used
	fileMu   map[PathID]*sync.Mutex
}

type entry struct {
	id   PathID
	file *os.File
}

// DefaultCeiling returns min(RLIMIT_NOFILE/2, 128), the pool ceiling
// spec.md section 4.1 specifies when the caller does not set one
// explicitly.
func DefaultCeiling() int {
	const fallback = 64
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return fallback
	}
	ceiling := int(rlim.Cur / 2)
	if ceiling > 128 {
		ceiling = 128
	}
	if ceiling < 1 {
		ceiling = fallback
	}
	return ceiling
}

// New creates an empty pool with the given descriptor ceiling. A ceiling
// <= 0 selects DefaultCeiling().
func New(ceiling int) *Pool {
	if ceiling <= 0 {
		ceiling = DefaultCeiling()
	}
	return &Pool{
		ceiling: ceiling,
		open:    make(map[PathID]*list.Element),
		lru:     list.New(),
		fileMu:  make(map[PathID]*sync.Mutex),
	}
}

// Register adds path to the pool (not yet opened) and returns its PathID.
func (p *Pool) Register(path string, writable bool) PathID {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := PathID(len(p.paths))
	p.paths = append(p.paths, path)
	p.writable = append(p.writable, writable)
	p.fileMu[id] = &sync.Mutex{}
	return id
}

// acquire returns an open *os.File for id, opening it (and evicting an LRU
// victim if at ceiling) if necessary. Caller must call release when done.
func (p *Pool) acquire(id PathID) (*os.File, error) {
	p.mu.Lock()
	if el, ok := p.open[id]; ok {
		p.lru.MoveToFront(el)
		f := el.Value.(*entry).file
		p.mu.Unlock()
		return f, nil
	}
	if len(p.paths) <= int(id) || int(id) < 0 {
		p.mu.Unlock()
		return nil, ewferr.InvalidArgument("iopool: unknown path id %d", id)
	}
	path := p.paths[id]
	writable := p.writable[id]

	if p.lru.Len() >= p.ceiling {
		p.evictLocked()
	}
	p.mu.Unlock()

	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, ewferr.IO(path, 0, err)
	}

	p.mu.Lock()
	el := p.lru.PushFront(&entry{id: id, file: f})
	p.open[id] = el
	p.mu.Unlock()
	return f, nil
}

// evictLocked closes and drops the least-recently-used open file. Caller
// holds p.mu.
func (p *Pool) evictLocked() {
	back := p.lru.Back()
	if back == nil {
		return
	}
	ent := back.Value.(*entry)
	ent.file.Close()
	p.lru.Remove(back)
	delete(p.open, ent.id)
}

// ReadAt performs a positioned read of len(buf) bytes from path id at
// offset, serialized per-PathID.
func (p *Pool) ReadAt(id PathID, offset int64, buf []byte) (int, error) {
	p.mu.Lock()
	fm := p.fileMu[id]
	p.mu.Unlock()
	if fm == nil {
		return 0, ewferr.InvalidArgument("iopool: unknown path id %d", id)
	}
	fm.Lock()
	defer fm.Unlock()

	f, err := p.acquire(id)
	if err != nil {
		return 0, err
	}
	n, err := f.ReadAt(buf, offset)
	if err != nil {
		return n, ewferr.IO(p.pathFor(id), offset, err)
	}
	return n, nil
}

// WriteAt performs a positioned write, serialized per-PathID.
func (p *Pool) WriteAt(id PathID, offset int64, buf []byte) (int, error) {
	p.mu.Lock()
	fm := p.fileMu[id]
	p.mu.Unlock()
	if fm == nil {
		return 0, ewferr.InvalidArgument("iopool: unknown path id %d", id)
	}
	fm.Lock()
	defer fm.Unlock()

	f, err := p.acquire(id)
	if err != nil {
		return 0, err
	}
	n, err := f.WriteAt(buf, offset)
	if err != nil {
		return n, ewferr.IO(p.pathFor(id), offset, err)
	}
	return n, nil
}

// Size returns the current size of path id.
func (p *Pool) Size(id PathID) (int64, error) {
	p.mu.Lock()
	fm := p.fileMu[id]
	p.mu.Unlock()
	if fm == nil {
		return 0, ewferr.InvalidArgument("iopool: unknown path id %d", id)
	}
	fm.Lock()
	defer fm.Unlock()

	f, err := p.acquire(id)
	if err != nil {
		return 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		return 0, ewferr.IO(p.pathFor(id), 0, err)
	}
	return fi.Size(), nil
}

// Sync flushes path id's data to stable storage.
func (p *Pool) Sync(id PathID) error {
	p.mu.Lock()
	fm := p.fileMu[id]
	p.mu.Unlock()
	if fm == nil {
		return ewferr.InvalidArgument("iopool: unknown path id %d", id)
	}
	fm.Lock()
	defer fm.Unlock()

	f, err := p.acquire(id)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return ewferr.IO(p.pathFor(id), 0, err)
	}
	return nil
}

func (p *Pool) pathFor(id PathID) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) < 0 || int(id) >= len(p.paths) {
		return fmt.Sprintf("<invalid:%d>", id)
	}
	return p.paths[id]
}

// Path returns the filesystem path registered for id.
func (p *Pool) Path(id PathID) string { return p.pathFor(id) }

// Close closes every currently-open descriptor.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for el := p.lru.Front(); el != nil; el = el.Next() {
		if err := el.Value.(*entry).file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.lru.Init()
	p.open = make(map[PathID]*list.Element)
	return firstErr
}
