// Package counter measures bytes moved over the wire.
package counter

import (
	"io"
	"sync/atomic"
)

// DataCounter tracks uploaded and downloaded byte totals. A zero value is
// ready to use and may be shared between sessions.
type DataCounter struct {
	up   atomic.Int64
	down atomic.Int64
}

// AddUp records n uploaded bytes.
func (c *DataCounter) AddUp(n int64) { c.up.Add(n) }

// AddDown records n downloaded bytes.
func (c *DataCounter) AddDown(n int64) { c.down.Add(n) }

// Up returns the uploaded byte total.
func (c *DataCounter) Up() int64 { return c.up.Load() }

// Down returns the downloaded byte total.
func (c *DataCounter) Down() int64 { return c.down.Load() }

// Merge adds the totals of other to c.
func (c *DataCounter) Merge(other *DataCounter) {
	if other == nil {
		return
	}
	c.AddUp(other.Up())
	c.AddDown(other.Down())
}

// Reset zeroes both totals.
func (c *DataCounter) Reset() {
	c.up.Store(0)
	c.down.Store(0)
}

// Reader counts bytes read from the wrapped reader as downloaded.
type Reader struct {
	r io.Reader
	c *DataCounter
}

// NewReader wraps r so every read is added to c's download total.
func NewReader(r io.Reader, c *DataCounter) *Reader {
	return &Reader{r: r, c: c}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.c.AddDown(int64(n))
	}
	return n, err
}

// Writer counts bytes written to the wrapped writer as uploaded.
type Writer struct {
	w io.Writer
	c *DataCounter
}

// NewWriter wraps w so every write is added to c's upload total.
func NewWriter(w io.Writer, c *DataCounter) *Writer {
	return &Writer{w: w, c: c}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		w.c.AddUp(int64(n))
	}
	return n, err
}
