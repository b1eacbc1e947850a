package content

import (
	"io"
	"os"

	"github.com/WhileEndless/go-rawclient/pkg/headers"
)

// StreamBody sends raw bytes from a file or any io.ReaderAt, either whole or
// as a chunked upload.
type StreamBody struct {
	src         io.ReaderAt
	size        int64
	contentType string
	closer      io.Closer
	chunks      *ChunkHandler
}

// NewStreamBody opens path. With raw set the body is sent as
// application/octet-stream, otherwise the type is guessed from the name.
func NewStreamBody(path string, raw bool) (*StreamBody, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	ct := Stream.ContentType()
	if !raw {
		ct = MimeType(path)
	}
	return &StreamBody{src: f, size: fi.Size(), contentType: ct, closer: f}, nil
}

// NewStreamFrom sends size bytes of src.
func NewStreamFrom(src io.ReaderAt, size int64, contentType string) *StreamBody {
	if contentType == "" {
		contentType = Stream.ContentType()
	}
	return &StreamBody{src: src, size: size, contentType: contentType}
}

// Chunked switches the body to chunked upload with pieces of chunkSize
// bytes and returns it.
func (s *StreamBody) Chunked(chunkSize int64) *StreamBody {
	s.chunks = NewChunkHandler(s.src, s.size, chunkSize)
	return s
}

// Size is the total payload length.
func (s *StreamBody) Size() int64 { return s.size }

func (s *StreamBody) Prepare(h *headers.Headers) error {
	if s.chunks == nil {
		setLength(h, s.contentType, s.size)
		return nil
	}
	setLength(h, s.contentType, s.chunks.Len())
	h.Set("Content-Range", s.chunks.ContentRange())
	return nil
}

func (s *StreamBody) WriteTo(w io.Writer) (int64, error) {
	if s.chunks != nil {
		return s.chunks.WriteChunk(w)
	}
	return io.Copy(w, io.NewSectionReader(s.src, 0, s.size))
}

func (s *StreamBody) Chunks() *ChunkHandler { return s.chunks }

// Close releases the file opened by NewStreamBody.
func (s *StreamBody) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
