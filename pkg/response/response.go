// Package response holds the outcome of a dispatched request.
package response

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"

	"github.com/WhileEndless/go-rawclient/pkg/body"
	"github.com/WhileEndless/go-rawclient/pkg/headers"
	"github.com/WhileEndless/go-rawclient/pkg/status"
	"github.com/WhileEndless/go-rawclient/pkg/timing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is one decoded response, or a synthetic one describing why no
// response could be obtained.
type Response struct {
	// URL is the endpoint that produced the response.
	URL string
	// Expect is the status code the request asked for.
	Expect  int
	Status  status.Status
	Headers *headers.Headers
	Body    body.Body
	Metrics timing.Metrics

	docOnce sync.Once
	doc     *goquery.Document
	docErr  error
}

// New builds a response. A nil body is treated as empty.
func New(url string, expect int, st status.Status, h *headers.Headers, b body.Body) *Response {
	if h == nil {
		h = headers.New()
	}
	if b == nil {
		b = body.Text{}
	}
	return &Response{URL: url, Expect: expect, Status: st, Headers: h, Body: b}
}

// Failure builds a synthetic response with an unknown status. reason becomes
// the status reason and message the body.
func Failure(url string, expect int, reason, message string) *Response {
	return New(url, expect, status.Synthetic(reason), nil, body.Text{Content: message})
}

// Code is the status code.
func (r *Response) Code() int { return r.Status.Code }

// Validate reports whether the status code is the expected one.
func (r *Response) Validate() bool { return r.ValidateCode(r.Expect) }

// ValidateCode reports whether the status code is code.
func (r *Response) ValidateCode(code int) bool { return r.Status.Code == code }

// Synthetic reports whether the response was generated locally.
func (r *Response) Synthetic() bool { return r.Status.Code == status.Unknown }

// Header returns a response header, matching the name case-insensitively.
func (r *Response) Header(key string) string { return r.Headers.Value(key) }

// Location is the Location header.
func (r *Response) Location() string { return r.Header("Location") }

// Content returns the body as UTF-8 text, converted from the charset the
// Content-Type names. File bodies are read from disk.
func (r *Response) Content() string {
	b, err := r.Body.Bytes()
	if err != nil {
		return ""
	}
	if r.Headers == nil {
		return string(b)
	}
	return body.Transcode(r.Header("Content-Type"), b)
}

// Document parses the body as HTML. The document is built once.
func (r *Response) Document() (*goquery.Document, error) {
	r.docOnce.Do(func() {
		if _, err := r.Body.Bytes(); err != nil {
			r.docErr = err
			return
		}
		r.doc, r.docErr = goquery.NewDocumentFromReader(strings.NewReader(r.Content()))
	})
	return r.doc, r.docErr
}

// JSON parses the body as a JSON object.
func (r *Response) JSON() (map[string]any, error) {
	var m map[string]any
	if err := r.DecodeJSON(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	b, err := r.Body.Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Get reads a top-level field of a JSON body without a full decode.
func (r *Response) Get(path ...any) jsoniter.Any {
	b, err := r.Body.Bytes()
	if err != nil {
		return jsoniter.Wrap(nil)
	}
	return json.Get(b, path...)
}

func (r *Response) String() string {
	return r.Status.String() + " (" + r.URL + ")"
}
