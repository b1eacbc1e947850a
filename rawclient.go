// Package rawclient is a browser-emulating HTTP/1.x client that writes
// requests on raw sockets. It follows redirects, escalates to TLS when a
// site asks for it, keeps cookies and Referer like a browser session, and
// routes through HTTP, HTTPS, SOCKS4 or SOCKS5 proxies.
package rawclient

import (
	"context"

	"github.com/WhileEndless/go-rawclient/pkg/browser"
	"github.com/WhileEndless/go-rawclient/pkg/client"
	"github.com/WhileEndless/go-rawclient/pkg/content"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
	"github.com/WhileEndless/go-rawclient/pkg/request"
	"github.com/WhileEndless/go-rawclient/pkg/response"
	"github.com/WhileEndless/go-rawclient/pkg/timing"
	"github.com/WhileEndless/go-rawclient/pkg/transport"
)

// Version is the current version of the rawclient library
const Version = "1.0.0"

// Re-export key types for easier usage
type (
	// Client is one browser session.
	Client = client.Client

	// Options controls how a Client is assembled.
	Options = client.Options

	// Request is a logical request.
	Request = request.Request

	// Response is the outcome of a request, real or synthetic.
	Response = response.Response

	// Browser is the impersonated profile.
	Browser = browser.Browser

	// Metrics captures timing information for a round-trip.
	Metrics = timing.Metrics

	// Error represents a structured error with context information.
	Error = errors.Error
)

// Re-export error types for convenience
const (
	ErrorTypeDNS        = errors.ErrorTypeDNS
	ErrorTypeConnection = errors.ErrorTypeConnection
	ErrorTypeTLS        = errors.ErrorTypeTLS
	ErrorTypeTimeout    = errors.ErrorTypeTimeout
	ErrorTypeProtocol   = errors.ErrorTypeProtocol
	ErrorTypeIO         = errors.ErrorTypeIO
	ErrorTypeValidation = errors.ErrorTypeValidation
	ErrorTypeProxy      = errors.ErrorTypeProxy
)

// New returns a session with a random desktop browser and default socket
// settings.
func New(ctx context.Context) (*Client, error) {
	return client.New(ctx, DefaultOptions())
}

// DefaultOptions returns the options New uses.
func DefaultOptions() Options {
	return Options{
		Browser:   browser.New(false),
		Transport: transport.DefaultConfig(),
	}
}

// Get builds a GET request.
func Get(url string) *Request { return request.Get(url) }

// PostForm builds a form POST from alternating keys and values.
func PostForm(url string, kv ...string) *Request {
	form := content.NewForm()
	for i := 0; i+1 < len(kv); i += 2 {
		form.Add(kv[i], kv[i+1])
	}
	return request.Post(url, form)
}

// PostJSON builds a POST carrying a JSON document.
func PostJSON(url, doc string) *Request {
	req := request.Post(url, content.NewString(content.JSON, doc))
	req.Accept = content.JSON
	return req
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	return errors.IsTimeoutError(err)
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) string {
	return string(errors.GetErrorType(err))
}
