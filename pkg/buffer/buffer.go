// Package buffer captures wire traffic for diagnostics.
//
// Captured bytes stay in memory up to a limit and are spooled to a temporary
// file past it, so a debug session that uploads a large file does not hold
// the whole payload in memory.
package buffer

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/WhileEndless/go-rawclient/pkg/constants"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
)

// Buffer is a write-only capture that spills to disk. It is safe for
// concurrent use.
type Buffer struct {
	mu     sync.Mutex
	mem    bytes.Buffer
	spill  *os.File
	size   int64
	limit  int64
	closed bool
}

// New creates a Buffer that keeps at most limit bytes in memory. A limit of
// zero or less uses constants.DefaultBodyMemLimit.
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = constants.DefaultBodyMemLimit
	}
	return &Buffer{limit: limit}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.NewIOError("capture write", os.ErrClosed)
	}
	if b.spill == nil && int64(b.mem.Len()+len(p)) > b.limit {
		if err := b.spillLocked(); err != nil {
			return 0, err
		}
	}

	var n int
	var err error
	if b.spill != nil {
		n, err = b.spill.Write(p)
	} else {
		n, err = b.mem.Write(p)
	}
	b.size += int64(n)
	if err != nil {
		return n, errors.NewIOError("capture write", err)
	}
	return n, nil
}

func (b *Buffer) spillLocked() error {
	f, err := os.CreateTemp("", "rawclient-capture-*.tmp")
	if err != nil {
		return errors.NewIOError("creating capture file", err)
	}
	if _, err := f.Write(b.mem.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return errors.NewIOError("spooling capture", err)
	}
	b.spill = f
	b.mem.Reset()
	return nil
}

// Size is the number of bytes captured.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Spilled reports whether the capture moved to disk.
func (b *Buffer) Spilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spill != nil
}

// Path is the spool file, or "" while the capture is in memory.
func (b *Buffer) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.spill == nil {
		return ""
	}
	return b.spill.Name()
}

// Head returns up to n captured bytes from the start.
func (b *Buffer) Head(n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.spill == nil {
		data := b.mem.Bytes()
		if len(data) > n {
			data = data[:n]
		}
		return append([]byte(nil), data...), nil
	}
	out := make([]byte, n)
	m, err := b.spill.ReadAt(out, 0)
	if err != nil && err != io.EOF {
		return nil, errors.NewIOError("reading capture", err)
	}
	return out[:m], nil
}

// String returns the in-memory capture, or the spool path once spilled.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.spill != nil {
		return "<" + b.spill.Name() + ">"
	}
	return b.mem.String()
}

// Close releases the spool file. It is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.mem.Reset()
	if b.spill == nil {
		return nil
	}
	name := b.spill.Name()
	err := b.spill.Close()
	if rerr := os.Remove(name); err == nil {
		err = rerr
	}
	b.spill = nil
	if err != nil {
		return errors.NewIOError("closing capture", err)
	}
	return nil
}

// Tee forwards every write to dst and, when capture is non-nil, mirrors it
// into capture. Capture failures never fail the forwarded write.
func Tee(dst io.Writer, capture *Buffer) io.Writer {
	if capture == nil {
		return dst
	}
	return &tee{dst: dst, capture: capture}
}

type tee struct {
	dst     io.Writer
	capture *Buffer
}

func (t *tee) Write(p []byte) (int, error) {
	n, err := t.dst.Write(p)
	if n > 0 {
		t.capture.Write(p[:n])
	}
	return n, err
}
