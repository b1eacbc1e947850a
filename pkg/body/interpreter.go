package body

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/WhileEndless/go-rawclient/pkg/constants"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
)

// Interpreter turns a raw body stream into a Body.
type Interpreter interface {
	Interpret(src io.Reader) (Body, error)
	// Progress is the share of the raw body consumed so far, 0 to 100. It is
	// safe to call while Interpret runs.
	Progress() int
}

// meter counts raw bytes pulled from the source.
type meter struct {
	r    io.Reader
	size int64
	read atomic.Int64
}

func (m *meter) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.read.Add(int64(n))
	return n, err
}

func (m *meter) progress() int {
	if m.size <= 0 {
		return 0
	}
	pct := m.read.Load() * 100 / m.size
	if pct > 100 {
		pct = 100
	}
	return int(pct)
}

// source limits the raw stream to size bytes when the size is known and
// stacks the content decoder on top.
func (m *meter) open(src io.Reader, encoding string) (io.ReadCloser, error) {
	if m.size > 0 {
		src = io.LimitReader(src, m.size)
	}
	m.r = src
	return NewDecoder(encoding, m)
}

// StringInterpreter accumulates the decoded body in memory.
type StringInterpreter struct {
	encoding string
	m        meter
}

// NewStringInterpreter creates an interpreter for a body of size raw bytes.
// A size of zero or less reads until EOF.
func NewStringInterpreter(size int64, encoding string) *StringInterpreter {
	return &StringInterpreter{encoding: encoding, m: meter{size: size}}
}

func (s *StringInterpreter) Progress() int { return s.m.progress() }

func (s *StringInterpreter) Interpret(src io.Reader) (Body, error) {
	dec, err := s.m.open(src, s.encoding)
	if err != nil {
		return nil, errors.NewProtocolError("opening content decoder", err)
	}
	defer dec.Close()

	var sb strings.Builder
	if s.m.size > 0 && !IsCompressed(s.encoding) {
		sb.Grow(int(min(s.m.size, constants.DefaultBodyMemLimit)))
	}
	if _, err := io.Copy(&sb, dec); err != nil {
		return nil, errors.NewIOError("reading body", err)
	}
	return Text{Content: sb.String()}, nil
}

// FileInterpreter streams the decoded body to a file.
type FileInterpreter struct {
	encoding string
	path     string
	m        meter
}

// NewFileInterpreter creates an interpreter that writes to path.
func NewFileInterpreter(size int64, encoding, path string) *FileInterpreter {
	return &FileInterpreter{encoding: encoding, path: path, m: meter{size: size}}
}

func (f *FileInterpreter) Progress() int { return f.m.progress() }

func (f *FileInterpreter) Interpret(src io.Reader) (Body, error) {
	dec, err := f.m.open(src, f.encoding)
	if err != nil {
		return nil, errors.NewProtocolError("opening content decoder", err)
	}
	defer dec.Close()

	out, err := os.Create(f.path)
	if err != nil {
		return nil, errors.NewIOError("creating "+f.path, err)
	}
	w := bufio.NewWriterSize(out, constants.FileBufferSize)
	buf := make([]byte, constants.FileBufferSize)

	written, err := io.CopyBuffer(w, dec, buf)
	if err == nil {
		err = w.Flush()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.path)
		return nil, errors.NewIOError("writing "+f.path, err)
	}
	return File{Path: f.path, Size: written}, nil
}
