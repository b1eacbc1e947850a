// Package content builds outgoing request bodies.
package content

import (
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawclient/pkg/headers"
)

// EncType names a payload encoding. It decides the Content-Type of a body
// and the Accept header a request sends for its expected response.
type EncType int

const (
	URLEncoded EncType = iota
	JSON
	XML
	Multipart
	Stream
	All
	PlainText
)

const htmlAccept = "text/html,application/xhtml+xml,application/xml;q=0.9, image/webp,image/apng,*/*;q=0.8"

var encTypes = map[EncType]struct{ name, contentType, accept string }{
	JSON:       {"json", "application/json", "application/json, text/javascript, */*; q=0.01"},
	XML:        {"xml", "text/xml;charset=utf-8", "text/xml, application/xml, text/javascript, */*; q=0.01"},
	URLEncoded: {"urlencoded", "application/x-www-form-urlencoded; charset=UTF-8", htmlAccept},
	Multipart:  {"multipart", "multipart/form-data", htmlAccept},
	Stream:     {"stream", "application/octet-stream", "*/*"},
	All:        {"all", "*/*", "*/*"},
	PlainText:  {"text", "text/plain", "text/plain"},
}

// ContentType is the Content-Type sent for a body of this type.
func (e EncType) ContentType() string { return encTypes[e].contentType }

// Accept is the Accept header sent when a response of this type is expected.
func (e EncType) Accept() string { return encTypes[e].accept }

func (e EncType) String() string {
	if t, ok := encTypes[e]; ok {
		return t.name
	}
	return "enctype(" + strconv.Itoa(int(e)) + ")"
}

// Body is a request payload.
type Body interface {
	// Prepare sets Content-Type and Content-Length on h without writing the
	// payload.
	Prepare(h *headers.Headers) error
	// WriteTo writes the payload, or the current chunk for chunked bodies.
	WriteTo(w io.Writer) (int64, error)
	// Chunks returns the chunk handler of a chunked upload, or nil.
	Chunks() *ChunkHandler
}

func setLength(h *headers.Headers, contentType string, n int64) {
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	h.Set("Content-Length", strconv.FormatInt(n, 10))
}

// StringBody is a literal payload.
type StringBody struct {
	Type    EncType
	Content string
}

// NewString returns a body sending content as type t.
func NewString(t EncType, content string) *StringBody {
	return &StringBody{Type: t, Content: content}
}

func (s *StringBody) Prepare(h *headers.Headers) error {
	setLength(h, s.Type.ContentType(), int64(len(s.Content)))
	return nil
}

func (s *StringBody) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.Content)
	return int64(n), err
}

func (s *StringBody) Chunks() *ChunkHandler { return nil }

// EmptyBody sends Content-Length: 0 and nothing else.
type EmptyBody struct{}

func (EmptyBody) Prepare(h *headers.Headers) error {
	setLength(h, "", 0)
	return nil
}

func (EmptyBody) WriteTo(io.Writer) (int64, error) { return 0, nil }

func (EmptyBody) Chunks() *ChunkHandler { return nil }

type field struct {
	key   string
	value string
}

// FormBody is an application/x-www-form-urlencoded payload. Field order is kept.
type FormBody struct {
	fields []field
}

// NewForm returns an empty form.
func NewForm() *FormBody { return &FormBody{} }

// Set adds key, replacing any earlier value for it in place.
func (f *FormBody) Set(key, value string) *FormBody {
	for i := range f.fields {
		if f.fields[i].key == key {
			f.fields[i].value = value
			return f
		}
	}
	return f.Add(key, value)
}

// Add appends key even if it is already present.
func (f *FormBody) Add(key, value string) *FormBody {
	f.fields = append(f.fields, field{key, value})
	return f
}

// Get returns the first value for key.
func (f *FormBody) Get(key string) string {
	for _, kv := range f.fields {
		if kv.key == key {
			return kv.value
		}
	}
	return ""
}

// Encode returns the serialized form.
func (f *FormBody) Encode() string {
	var sb strings.Builder
	for i, kv := range f.fields {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(kv.key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.value))
	}
	return sb.String()
}

func (f *FormBody) Prepare(h *headers.Headers) error {
	setLength(h, URLEncoded.ContentType(), int64(len(f.Encode())))
	return nil
}

func (f *FormBody) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, f.Encode())
	return int64(n), err
}

func (f *FormBody) Chunks() *ChunkHandler { return nil }
