// Package request describes one logical HTTP request and the per-request
// state the executor keeps while dispatching it.
package request

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawclient/pkg/body"
	"github.com/WhileEndless/go-rawclient/pkg/content"
	"github.com/WhileEndless/go-rawclient/pkg/counter"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
	"github.com/WhileEndless/go-rawclient/pkg/headers"
)

// Method is an HTTP request method.
type Method string

const (
	GET     Method = "GET"
	POST    Method = "POST"
	PUT     Method = "PUT"
	PATCH   Method = "PATCH"
	DELETE  Method = "DELETE"
	HEAD    Method = "HEAD"
	OPTIONS Method = "OPTIONS"
)

func (m Method) String() string { return string(m) }

// Request is a logical request. A Request is dispatched once; redirects
// build a new Request through Follow.
type Request struct {
	Method Method
	URL    string
	// Expect is the status code that makes the response valid.
	Expect int
	// Headers are overlaid on the generated headers. An unset entry removes
	// the generated header of the same name.
	Headers *headers.Headers
	Body    content.Body
	// Accept selects the Accept header for the expected response type.
	Accept content.EncType
	// PreflightMethod is announced in Access-Control-Request-Method on
	// OPTIONS requests.
	PreflightMethod Method

	XHR        bool
	NoReferrer bool
	DecodeBody bool
	// NoSSL keeps the request on plaintext even when the server hints at TLS.
	NoSSL bool
	// Port overrides the port in URL when positive.
	Port         int
	CacheControl string
	// SavePath streams the response body to a file instead of memory.
	SavePath    string
	Progress    body.ProgressListener
	PostExecute PostExecuteHandler

	// Counter records the bytes of the current round-trip.
	Counter counter.DataCounter

	attempts  int
	target    *url.URL
	targetFor string
}

// New returns a request expecting 200 with body decoding on.
func New(method Method, rawURL string) *Request {
	return &Request{
		Method:     method,
		URL:        rawURL,
		Expect:     200,
		Headers:    headers.New(),
		Accept:     content.URLEncoded,
		DecodeBody: true,
	}
}

// Get returns a GET request.
func Get(rawURL string) *Request { return New(GET, rawURL) }

// Head returns a HEAD request.
func Head(rawURL string) *Request { return New(HEAD, rawURL) }

// Delete returns a DELETE request.
func Delete(rawURL string) *Request { return New(DELETE, rawURL) }

// Post returns a POST request carrying b.
func Post(rawURL string, b content.Body) *Request { return withBody(POST, rawURL, b) }

// Put returns a PUT request carrying b.
func Put(rawURL string, b content.Body) *Request { return withBody(PUT, rawURL, b) }

// Patch returns a PATCH request carrying b.
func Patch(rawURL string, b content.Body) *Request { return withBody(PATCH, rawURL, b) }

// Options returns a CORS preflight for a later request using m.
func Options(rawURL string, m Method) *Request {
	r := New(OPTIONS, rawURL)
	r.PreflightMethod = m
	return r
}

func withBody(m Method, rawURL string, b content.Body) *Request {
	r := New(m, rawURL)
	r.Body = b
	return r
}

// SetHeader adds or replaces a custom header.
func (r *Request) SetHeader(key, value string) *Request {
	r.custom().Set(key, value)
	return r
}

// RemoveHeader drops a generated header from the wire request.
func (r *Request) RemoveHeader(key string) *Request {
	r.custom().Unset(key)
	return r
}

func (r *Request) custom() *headers.Headers {
	if r.Headers == nil {
		r.Headers = headers.New()
	}
	return r.Headers
}

// HasBody reports whether a payload is attached.
func (r *Request) HasBody() bool { return r.Body != nil }

// Chunked reports whether the payload is uploaded in pieces.
func (r *Request) Chunked() bool { return r.Body != nil && r.Body.Chunks() != nil }

// Attempts is the number of round-trips made for the current hop.
func (r *Request) Attempts() int { return r.attempts }

// NextAttempt counts one more round-trip and returns the new total.
func (r *Request) NextAttempt() int {
	r.attempts++
	return r.attempts
}

// ResetAttempts zeroes the attempt counter.
func (r *Request) ResetAttempts() { r.attempts = 0 }

// Target parses URL. The result is cached.
func (r *Request) Target() (*url.URL, error) {
	if r.target != nil && r.targetFor == r.URL {
		return r.target, nil
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, errors.NewValidationError("invalid url " + strconv.Quote(r.URL) + ": " + err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NewValidationError("unsupported scheme in " + strconv.Quote(r.URL))
	}
	if u.Hostname() == "" {
		return nil, errors.NewValidationError("missing host in " + strconv.Quote(r.URL))
	}
	r.target, r.targetFor = u, r.URL
	return u, nil
}

// Host is the host name without port, or "" when URL does not parse.
func (r *Request) Host() string {
	u, err := r.Target()
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Authority is the Host header value: host plus any explicit port.
func (r *Request) Authority() string {
	u, err := r.Target()
	if err != nil {
		return ""
	}
	return u.Host
}

// Secure reports whether URL uses https.
func (r *Request) Secure() bool {
	u, err := r.Target()
	return err == nil && u.Scheme == "https"
}

// Endpoint is the request target written on the request line.
func (r *Request) Endpoint() string {
	u, err := r.Target()
	if err != nil {
		return "/"
	}
	if ep := u.RequestURI(); ep != "" {
		return ep
	}
	return "/"
}

// BaseURL is scheme://authority, the value of Origin.
func (r *Request) BaseURL() string {
	u, err := r.Target()
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// ContactPort is Port when set, else the port in URL, else 0.
func (r *Request) ContactPort() int {
	if r.Port > 0 {
		return r.Port
	}
	u, err := r.Target()
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(u.Port())
	return p
}

// SecFetchMode is "cors" for XHR and "navigate" otherwise.
func (r *Request) SecFetchMode() string {
	if r.XHR {
		return "cors"
	}
	return "navigate"
}

// Resolve turns a Location value into an absolute URL relative to r.
func (r *Request) Resolve(location string) (string, error) {
	base, err := r.Target()
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", errors.NewProtocolError("invalid redirect location "+strconv.Quote(location), err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Follow builds the GET request for a redirect to location. Custom headers,
// port, decode flag, save path and progress listener carry over; the
// expected code resets to 200.
func (r *Request) Follow(location string) (*Request, error) {
	next, err := r.Resolve(location)
	if err != nil {
		return nil, err
	}
	f := Get(next)
	if r.Headers != nil {
		f.Headers = r.Headers.Clone()
	}
	f.Port = r.Port
	f.DecodeBody = r.DecodeBody
	f.NoSSL = r.NoSSL
	f.SavePath = r.SavePath
	f.Progress = r.Progress
	f.PostExecute = r.PostExecute
	return f, nil
}

// SameURL reports whether two URLs are equal once the http/https scheme
// difference is ignored.
func SameURL(a, b string) bool {
	return stripScheme(a) == stripScheme(b)
}

func stripScheme(s string) string {
	s = strings.TrimPrefix(s, "https://")
	return strings.TrimPrefix(s, "http://")
}
