// Package body materializes HTTP response bodies as strings or files.
package body

import (
	"os"
)

// Body is a materialized response body.
type Body interface {
	// Len is the number of decoded bytes.
	Len() int64
	// Bytes returns the decoded content.
	Bytes() ([]byte, error)
	String() string
}

// Text is a body held in memory.
type Text struct {
	Content string
}

func (t Text) Len() int64             { return int64(len(t.Content)) }
func (t Text) Bytes() ([]byte, error) { return []byte(t.Content), nil }
func (t Text) String() string         { return t.Content }

// File is a body streamed to disk.
type File struct {
	Path string
	Size int64
}

func (f File) Len() int64             { return f.Size }
func (f File) Bytes() ([]byte, error) { return os.ReadFile(f.Path) }
func (f File) String() string         { return f.Path }

// ProgressListener receives body progress percentages.
type ProgressListener interface {
	SetProgress(percent int)
}
