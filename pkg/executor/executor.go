// Package executor drives one logical request through as many physical
// round-trips as it takes: retries, TLS escalation, redirects, 429 backoff,
// chunked uploads and challenge bypass.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/WhileEndless/go-rawclient/pkg/browser"
	"github.com/WhileEndless/go-rawclient/pkg/constants"
	"github.com/WhileEndless/go-rawclient/pkg/cookies"
	"github.com/WhileEndless/go-rawclient/pkg/counter"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
	"github.com/WhileEndless/go-rawclient/pkg/proxy"
	"github.com/WhileEndless/go-rawclient/pkg/request"
	"github.com/WhileEndless/go-rawclient/pkg/response"
	"github.com/WhileEndless/go-rawclient/pkg/security"
	"github.com/WhileEndless/go-rawclient/pkg/transport"
)

// Connector opens connections. *transport.Connector implements it.
type Connector interface {
	Connect(ctx context.Context, t transport.Target) (*transport.Conn, error)
	RequiresTLS(host string) bool
}

// Sleeper pauses for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option { return func(e *Executor) { e.log = l } }

// WithSleeper replaces the sleep used for 429 backoff.
func WithSleeper(s Sleeper) Option { return func(e *Executor) { e.sleep = s } }

// WithJar shares a cookie jar.
func WithJar(j *cookies.Jar) Option { return func(e *Executor) { e.jar = j } }

// WithCounter shares a session data counter.
func WithCounter(c *counter.DataCounter) Option { return func(e *Executor) { e.counter = c } }

// WithProxy routes every connection through p.
func WithProxy(p *proxy.Proxy) Option { return func(e *Executor) { e.proxy = p } }

// WithSecurity runs h after each response. Detectors send follow-up
// requests through d.
func WithSecurity(h *security.Handler, d security.Dispatcher) Option {
	return func(e *Executor) { e.security, e.dispatcher = h, d }
}

// WithMaxRedirects caps the redirect chain.
func WithMaxRedirects(n int) Option { return func(e *Executor) { e.maxRedirects = n } }

// WithoutRedirects returns redirect responses to the caller.
func WithoutRedirects() Option { return func(e *Executor) { e.noRedirects = true } }

// WithoutCookies stops sending the Cookie header. Received cookies are still
// stored.
func WithoutCookies() Option { return func(e *Executor) { e.noCookies = true } }

// WithSaveDataMode skips bodies of requests that turned decoding off.
func WithSaveDataMode() Option { return func(e *Executor) { e.saveData = true } }

// WithDebug captures and logs every request head.
func WithDebug() Option { return func(e *Executor) { e.debug = true } }

// Executor runs requests for one session. It keeps the Referer baseline and
// the hosts seen so far between calls. It is not safe for concurrent use.
type Executor struct {
	conn       Connector
	browser    *browser.Browser
	jar        *cookies.Jar
	counter    *counter.DataCounter
	proxy      *proxy.Proxy
	security   *security.Handler
	dispatcher security.Dispatcher
	log        logr.Logger
	sleep      Sleeper

	maxRedirects int
	noRedirects  bool
	noCookies    bool
	saveData     bool
	debug        bool

	visited  map[string]struct{}
	lastHost string
	referer  string
}

// New returns an executor using conn and the browser profile b.
func New(conn Connector, b *browser.Browser, opts ...Option) *Executor {
	if b == nil {
		b = browser.New(false)
	}
	e := &Executor{
		conn:         conn,
		browser:      b,
		jar:          cookies.NewJar(),
		counter:      &counter.DataCounter{},
		log:          logr.Discard(),
		sleep:        sleepContext,
		maxRedirects: constants.MaxRedirects,
		visited:      make(map[string]struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Jar is the cookie jar.
func (e *Executor) Jar() *cookies.Jar { return e.jar }

// Counter is the session data counter.
func (e *Executor) Counter() *counter.DataCounter { return e.counter }

// Browser is the browser profile.
func (e *Executor) Browser() *browser.Browser { return e.browser }

// Referer is the URL sent as Referer on the next request.
func (e *Executor) Referer() string { return e.referer }

// SetReferer replaces the Referer baseline.
func (e *Executor) SetReferer(url string) { e.referer = url }

// LastHost is the host that answered last.
func (e *Executor) LastHost() string { return e.lastHost }

// Visited reports whether host has answered before.
func (e *Executor) Visited(host string) bool {
	_, ok := e.visited[host]
	return ok
}

// run is the state of one Execute call.
type run struct {
	req       *request.Request
	host      string
	ssl       bool
	chain     []*request.Request
	lastError string
}

// verdict is what status evaluation decided.
type verdict int

const (
	proceed verdict = iota
	retry
	finish
)

// Execute dispatches req and returns the final response. It never fails:
// exhausted attempts, redirect loops and cancellation come back as
// synthetic responses whose Validate is false.
func (e *Executor) Execute(ctx context.Context, req *request.Request) *response.Response {
	if _, err := req.Target(); err != nil {
		return response.Failure(req.URL, req.Expect, "Invalid request", err.Error())
	}
	x := &run{req: req, host: req.Host(), ssl: e.wantsTLS(req), lastError: "Initial"}

	for {
		req := x.req
		if req.NextAttempt() > e.browser.Attempts() {
			made := req.Attempts() - 1
			req.ResetAttempts()
			return response.Failure(req.URL, req.Expect,
				"Too many failed attempts ("+x.lastError+")",
				fmt.Sprintf("Failed to dispatch request (%s) (attempts: %d)", x.lastError, made))
		}
		if err := ctx.Err(); err != nil {
			req.ResetAttempts()
			return response.Failure(req.URL, req.Expect, "Request cancelled", err.Error())
		}

		res, err := e.exchange(ctx, x)
		if err != nil {
			e.fault(x, err)
			if ctx.Err() != nil && (errors.IsContextCanceled(err) || errors.IsContextTimeout(err)) {
				req.ResetAttempts()
				return response.Failure(req.URL, req.Expect, "Request cancelled", err.Error())
			}
			continue
		}
		e.visited[x.host] = struct{}{}
		e.lastHost = x.host

		if res.Code() != req.Expect {
			v, out := e.evaluate(ctx, x, res)
			switch v {
			case retry:
				continue
			case finish:
				return out
			}
		}

		// x.host follows every redirect, so this only holds for the page
		// that was actually answered.
		if req.Method == request.GET && !req.NoReferrer && !req.XHR && req.Host() == x.host {
			e.referer = req.URL
		}
		x.chain = nil

		if req.Chunked() {
			chunks := req.Body.Chunks()
			if req.Progress != nil {
				req.Progress.SetProgress(chunks.Progress())
			}
			if !chunks.Finished() {
				req.ResetAttempts()
				continue
			}
		}

		if e.security.Len() > 0 {
			ok, cleared := e.security.Bypass(ctx, e.dispatcher, req, res)
			if !ok {
				x.lastError = "Connection security not bypassed (" + x.host + ")"
				continue
			}
			res = cleared
		}

		req.ResetAttempts()
		return res
	}
}

// evaluate handles a status other than the expected one.
func (e *Executor) evaluate(ctx context.Context, x *run, res *response.Response) (verdict, *response.Response) {
	req := x.req
	code := res.Code()
	log := e.log.WithValues("status", code, "method", req.Method.String(), "url", req.URL)

	switch {
	case res.Status.IsRedirection():
		if e.noRedirects {
			return proceed, nil
		}
		if len(x.chain) >= e.maxRedirects {
			x.chain = nil
			req.ResetAttempts()
			return finish, response.Failure(req.URL, req.Expect, "Too many redirects", "Too many redirects through "+req.URL)
		}
		location := res.Location()
		if location == "" {
			log.Info("no redirect location on redirect response")
			return proceed, nil
		}
		next, err := req.Follow(location)
		if err != nil {
			log.Info("unusable redirect location", "location", location, "error", err.Error())
			return proceed, nil
		}
		log.V(1).Info("redirect", "location", next.URL, "referer", e.referer)

		x.chain = append(x.chain, req)
		req.ResetAttempts()
		if code == 301 && !x.ssl && !req.NoSSL && request.SameURL(next.URL, req.URL) {
			x.lastError = "SSL redirect requested"
			x.ssl = true
			log.Info("redirect to the same resource, switching to TLS")
			return retry, nil
		}

		if next.Host() != x.host {
			x.host = next.Host()
			x.ssl = e.wantsTLS(next)
		} else {
			x.ssl = x.ssl || e.wantsTLS(next)
		}
		x.req = next
		return retry, nil

	case res.Status.IsClientError():
		switch {
		case code == 403 && !x.ssl && !req.NoSSL:
			req.ResetAttempts()
			x.lastError = "Forbidden, trying with SSL"
			x.ssl = true
			log.Info("forbidden over plaintext, switching to TLS")
			return retry, nil
		case code == 400 && !x.ssl && !req.NoSSL && (req.Secure() || req.ContactPort() == constants.DefaultHTTPSPort):
			// Plain HTTP sent to a TLS port.
			x.chain = append(x.chain, req)
			req.ResetAttempts()
			x.lastError = "Bad request, trying with SSL"
			x.ssl = true
			log.Info("bad request over plaintext, switching to TLS")
			return retry, nil
		case code == 429:
			log.Info("too many requests, backing off", "wait", constants.TooManyRequestsWait)
			x.lastError = "Too many requests"
			if err := e.sleep(ctx, constants.TooManyRequestsWait); err != nil {
				log.V(1).Info("backoff interrupted", "error", err.Error())
			}
			return retry, nil
		}
		log.Info("client error", "reason", res.Status.Reason)

	case res.Status.IsServerError():
		log.Info("server error", "reason", res.Status.Reason)

	case !res.Status.IsSuccess():
		log.Info("unsuccessful request", "reason", res.Status.Reason)
	}
	return proceed, nil
}

// fault records a failed round-trip. The next loop iteration retries with
// the same TLS setting.
func (e *Executor) fault(x *run, err error) {
	if x.req.Chunked() {
		x.req.Body.Chunks().Rewind()
	}
	x.lastError = fmt.Sprintf("%s (%s) [%s => %s]", errors.Label(err), x.host, x.req.Method, x.req.URL)
	e.log.Info(x.lastError, "attempt", x.req.Attempts(), "error", err.Error())
}

// wantsTLS decides whether the first round-trip for req uses TLS.
func (e *Executor) wantsTLS(req *request.Request) bool {
	if req.NoSSL {
		return false
	}
	return req.Secure() || e.conn.RequiresTLS(req.Host())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
