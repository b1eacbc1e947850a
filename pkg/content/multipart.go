package content

import (
	"io"
	"math/rand/v2"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/WhileEndless/go-rawclient/pkg/counter"
	"github.com/WhileEndless/go-rawclient/pkg/headers"
)

type partKind int

const (
	textPart partKind = iota
	blobPart
	filePart
	emptyFilePart
)

type part struct {
	kind  partKind
	key   string
	value string
	data  []byte
	path  string
}

// MultipartBody is a multipart/form-data payload with a WebKit-style
// boundary.
type MultipartBody struct {
	parts    []part
	boundary string
}

const boundaryAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewMultipart returns an empty multipart body with a random boundary.
func NewMultipart() *MultipartBody {
	var sb strings.Builder
	sb.WriteString("----WebKitFormBoundary")
	for range 16 {
		sb.WriteByte(boundaryAlphabet[rand.IntN(len(boundaryAlphabet))])
	}
	return &MultipartBody{boundary: sb.String()}
}

// Boundary returns the part delimiter.
func (m *MultipartBody) Boundary() string { return m.boundary }

func (m *MultipartBody) put(p part) *MultipartBody {
	for i := range m.parts {
		if m.parts[i].key == p.key {
			m.parts[i] = p
			return m
		}
	}
	m.parts = append(m.parts, p)
	return m
}

// Set adds a text field, replacing an earlier part with the same name.
func (m *MultipartBody) Set(key, value string) *MultipartBody {
	return m.put(part{kind: textPart, key: key, value: value})
}

// SetBytes adds an in-memory file part named "blob".
func (m *MultipartBody) SetBytes(key string, data []byte) *MultipartBody {
	return m.put(part{kind: blobPart, key: key, data: data})
}

// SetFile adds the file at path. It is read when the body is written.
func (m *MultipartBody) SetFile(key, path string) *MultipartBody {
	return m.put(part{kind: filePart, key: key, path: path})
}

// SetEmptyFile adds a file input with nothing selected.
func (m *MultipartBody) SetEmptyFile(key string) *MultipartBody {
	return m.put(part{kind: emptyFilePart, key: key})
}

func disposition(key, filename string, withFile bool) string {
	d := `form-data; name="` + escapeQuotes(key) + `"`
	if withFile {
		d += `; filename="` + escapeQuotes(filename) + `"`
	}
	return d
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

// MimeType guesses a content type from a file name.
func MimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return Stream.ContentType()
}

// build writes the body to w. With sizeOnly set, file contents are not read;
// their sizes are added to the returned length instead.
func (m *MultipartBody) build(w io.Writer, sizeOnly bool) (int64, error) {
	var dc counter.DataCounter
	mw := multipart.NewWriter(counter.NewWriter(w, &dc))
	if err := mw.SetBoundary(m.boundary); err != nil {
		return 0, err
	}

	var skipped int64
	for _, p := range m.parts {
		h := textproto.MIMEHeader{}
		switch p.kind {
		case textPart:
			h.Set("Content-Disposition", disposition(p.key, "", false))
			h.Set("Content-Type", "text/plain; charset=UTF-8")
		case blobPart:
			h.Set("Content-Disposition", disposition(p.key, "blob", true))
			h.Set("Content-Type", Stream.ContentType())
		case filePart:
			h.Set("Content-Disposition", disposition(p.key, filepath.Base(p.path), true))
			h.Set("Content-Type", MimeType(p.path))
		case emptyFilePart:
			h.Set("Content-Disposition", disposition(p.key, "", true))
			h.Set("Content-Type", Stream.ContentType())
		}
		pw, err := mw.CreatePart(h)
		if err != nil {
			return 0, err
		}

		switch p.kind {
		case textPart:
			_, err = io.WriteString(pw, p.value)
		case blobPart:
			_, err = pw.Write(p.data)
		case filePart:
			if sizeOnly {
				var fi os.FileInfo
				if fi, err = os.Stat(p.path); err == nil {
					skipped += fi.Size()
				}
			} else {
				err = copyFile(pw, p.path)
			}
		}
		if err != nil {
			return 0, err
		}
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}
	return dc.Up() + skipped, nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func (m *MultipartBody) Prepare(h *headers.Headers) error {
	n, err := m.build(io.Discard, true)
	if err != nil {
		return err
	}
	setLength(h, Multipart.ContentType()+"; boundary="+m.boundary, n)
	return nil
}

func (m *MultipartBody) WriteTo(w io.Writer) (int64, error) {
	return m.build(w, false)
}

func (m *MultipartBody) Chunks() *ChunkHandler { return nil }
