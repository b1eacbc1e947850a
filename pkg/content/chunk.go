package content

import (
	"fmt"
	"io"

	"github.com/WhileEndless/go-rawclient/pkg/constants"
)

// ChunkHandler splits a payload into fixed-size pieces sent one per
// round-trip. A write stays pending until Commit; Rewind undoes a pending
// write so the same piece is sent again.
type ChunkHandler struct {
	src       io.ReaderAt
	size      int64
	chunkSize int64

	next    int64
	sent    int64
	pending int64
}

// NewChunkHandler splits size bytes of src into pieces of chunkSize bytes.
// A non-positive chunkSize uses constants.DefaultChunkSize.
func NewChunkHandler(src io.ReaderAt, size, chunkSize int64) *ChunkHandler {
	if chunkSize <= 0 {
		chunkSize = constants.DefaultChunkSize
	}
	return &ChunkHandler{src: src, size: size, chunkSize: chunkSize}
}

// Count is the number of pieces.
func (c *ChunkHandler) Count() int64 {
	if c.size == 0 {
		return 1
	}
	return (c.size + c.chunkSize - 1) / c.chunkSize
}

// Index is the zero-based index of the piece the next write sends.
func (c *ChunkHandler) Index() int64 { return c.next }

// Range returns the inclusive byte range of the next piece.
func (c *ChunkHandler) Range() (start, end int64) {
	start = c.next * c.chunkSize
	end = min(start+c.chunkSize, c.size) - 1
	return start, end
}

// Len is the length of the next piece.
func (c *ChunkHandler) Len() int64 {
	start, end := c.Range()
	if end < start {
		return 0
	}
	return end - start + 1
}

// ContentRange formats the Content-Range header value of the next piece.
func (c *ChunkHandler) ContentRange() string {
	start, end := c.Range()
	return fmt.Sprintf("bytes %d-%d/%d", start, end, c.size)
}

// WriteChunk writes the next piece to w and advances.
func (c *ChunkHandler) WriteChunk(w io.Writer) (int64, error) {
	if c.Finished() {
		return 0, nil
	}
	start, _ := c.Range()
	n, err := io.Copy(w, io.NewSectionReader(c.src, start, c.Len()))
	if err != nil {
		return n, err
	}
	c.next++
	c.sent += n
	c.pending = n
	return n, nil
}

// Commit marks the last write as delivered.
func (c *ChunkHandler) Commit() { c.pending = 0 }

// Rewind undoes an uncommitted write.
func (c *ChunkHandler) Rewind() {
	if c.pending == 0 {
		return
	}
	c.next--
	c.sent -= c.pending
	c.pending = 0
}

// Sent is the number of bytes written so far.
func (c *ChunkHandler) Sent() int64 { return c.sent }

// Finished reports whether every piece has been written.
func (c *ChunkHandler) Finished() bool {
	return c.next >= c.Count()
}

// Progress is the percentage of the payload written.
func (c *ChunkHandler) Progress() int {
	if c.size == 0 {
		if c.Finished() {
			return 100
		}
		return 0
	}
	return int(c.sent * 100 / c.size)
}
