// Package client provides the session API: one Client impersonates one
// browser, keeps its cookies and Referer, and dispatches requests through
// the executor.
package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/WhileEndless/go-rawclient/pkg/body"
	"github.com/WhileEndless/go-rawclient/pkg/browser"
	"github.com/WhileEndless/go-rawclient/pkg/cookies"
	"github.com/WhileEndless/go-rawclient/pkg/counter"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
	"github.com/WhileEndless/go-rawclient/pkg/executor"
	"github.com/WhileEndless/go-rawclient/pkg/proxy"
	"github.com/WhileEndless/go-rawclient/pkg/request"
	"github.com/WhileEndless/go-rawclient/pkg/response"
	"github.com/WhileEndless/go-rawclient/pkg/security"
	"github.com/WhileEndless/go-rawclient/pkg/transport"
)

// DefaultIPEndpoint answers with the caller's public address.
const DefaultIPEndpoint = "https://api.ipify.org/"

// Options controls how a Client is assembled.
type Options struct {
	// Browser is the impersonated profile. Nil picks a random desktop one.
	Browser   *browser.Browser
	Transport transport.Config

	// Proxy routes every request. When Pool is set instead, a proxy is
	// leased from it for User and released on Close.
	Proxy *proxy.Proxy
	Pool  proxy.Pool
	User  string

	// Counter is shared when several sessions should report together.
	Counter *counter.DataCounter
	Logger  logr.Logger

	Debug            bool
	SaveDataMode     bool
	DisableCookies   bool
	DisableRedirects bool
	MaxRedirects     int

	// IPEndpoint is fetched by FetchIP.
	IPEndpoint string

	// Connector replaces the socket connector built from Transport.
	Connector executor.Connector
}

// Client is a browser session. Do calls are serialized; use Background or
// separate clients for parallel work.
type Client struct {
	opts     Options
	browser  *browser.Browser
	conn     executor.Connector
	jar      *cookies.Jar
	counter  *counter.DataCounter
	security *security.Handler
	proxy    *proxy.Proxy
	log      logr.Logger

	mu     sync.Mutex
	exec   *executor.Executor
	closed bool
}

// New assembles a client. With a Pool configured it blocks until a proxy
// can be leased or ctx ends.
func New(ctx context.Context, opts Options) (*Client, error) {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	b := opts.Browser
	if b == nil {
		b = browser.New(false)
	}
	if opts.Counter == nil {
		opts.Counter = &counter.DataCounter{}
	}
	if opts.IPEndpoint == "" {
		opts.IPEndpoint = DefaultIPEndpoint
	}

	c := &Client{
		opts:     opts,
		browser:  b,
		conn:     opts.Connector,
		jar:      cookies.NewJar(),
		counter:  opts.Counter,
		security: security.NewHandler(log.WithName("security")),
		proxy:    opts.Proxy,
		log:      log,
	}
	if c.conn == nil {
		c.conn = transport.New(opts.Transport, transport.WithLogger(log.WithName("transport")))
	}

	if opts.Pool != nil && c.proxy == nil {
		if opts.User == "" {
			return nil, errors.NewValidationError("a proxy pool needs a user to lease for")
		}
		p, err := opts.Pool.Next(ctx, opts.User, false, false)
		if err != nil {
			return nil, errors.NewProxyError("", 0, "leasing proxy for "+opts.User, err)
		}
		c.proxy = p
		log.V(1).Info("leased proxy", "user", opts.User, "proxy", p.String())
	}

	c.exec = c.newExecutor()
	return c, nil
}

func (c *Client) newExecutor() *executor.Executor {
	d := &dispatcher{}
	opts := []executor.Option{
		executor.WithLogger(c.log.WithName("executor")),
		executor.WithJar(c.jar),
		executor.WithCounter(c.counter),
		executor.WithProxy(c.proxy),
		executor.WithSecurity(c.security, d),
	}
	if c.opts.MaxRedirects > 0 {
		opts = append(opts, executor.WithMaxRedirects(c.opts.MaxRedirects))
	}
	if c.opts.DisableRedirects {
		opts = append(opts, executor.WithoutRedirects())
	}
	if c.opts.DisableCookies {
		opts = append(opts, executor.WithoutCookies())
	}
	if c.opts.SaveDataMode {
		opts = append(opts, executor.WithSaveDataMode())
	}
	if c.opts.Debug {
		opts = append(opts, executor.WithDebug())
	}
	d.x = executor.New(c.conn, c.browser, opts...)
	return d.x
}

// Do dispatches req and runs its post-execute handler. The returned
// response is never nil; check Validate.
func (c *Client) Do(ctx context.Context, req *request.Request) *response.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return response.Failure(req.URL, req.Expect, "Client closed", "The client session has been closed")
	}
	res := c.exec.Execute(ctx, req)
	postExecute(req, res)
	return res
}

func postExecute(req *request.Request, res *response.Response) {
	if req.PostExecute == nil {
		return
	}
	if res.Validate() {
		req.PostExecute.OnSuccess(req, res)
		return
	}
	req.PostExecute.OnFailure(req, res)
}

// dispatcher lets security detectors send follow-up requests on the
// executor that is already running the challenged request.
type dispatcher struct{ x *executor.Executor }

func (d *dispatcher) Do(ctx context.Context, req *request.Request) *response.Response {
	return d.x.Execute(ctx, req)
}

// Download saves the response body of req to path.
func (c *Client) Download(ctx context.Context, path string, req *request.Request) (body.File, error) {
	start := time.Now()
	req.SavePath = path
	res := c.Do(ctx, req)
	if !res.Validate() {
		return body.File{}, errors.NewProtocolError("downloading "+req.URL+": "+res.Status.String(), nil)
	}
	f, ok := res.Body.(body.File)
	if !ok {
		return body.File{}, errors.NewProtocolError("response to "+req.URL+" was not saved to a file", nil)
	}
	c.log.V(1).Info("downloaded", "path", f.Path, "bytes", f.Size, "elapsed", time.Since(start))
	return f, nil
}

// Background dispatches reqs concurrently on executors sharing this
// session's browser, cookies, counter and proxy. Each response is sent on
// the returned channel, which is closed once all are done.
func (c *Client) Background(ctx context.Context, reqs ...*request.Request) <-chan *response.Response {
	out := make(chan *response.Response, len(reqs))
	referer := c.Referer()

	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x := c.newExecutor()
			x.SetReferer(referer)
			res := x.Execute(ctx, req)
			postExecute(req, res)
			out <- res
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// FetchIP returns the public address the session appears from.
func (c *Client) FetchIP(ctx context.Context) (string, error) {
	req := request.Get(c.opts.IPEndpoint)
	req.NoReferrer = true
	res := c.Do(ctx, req)
	if !res.Validate() {
		return "", errors.NewProtocolError("fetching IP: "+res.Status.String(), nil)
	}
	return strings.TrimSpace(res.Content()), nil
}

// Security is the session's connection security handler.
func (c *Client) Security() *security.Handler { return c.security }

// Jar is the session's cookie jar.
func (c *Client) Jar() *cookies.Jar { return c.jar }

// Counter reports the bytes sent and received by the session.
func (c *Client) Counter() *counter.DataCounter { return c.counter }

// Browser is the impersonated profile.
func (c *Client) Browser() *browser.Browser { return c.browser }

// Proxy is the proxy in use, nil when connecting directly.
func (c *Client) Proxy() *proxy.Proxy { return c.proxy }

// Referer is the URL sent as Referer on the next request.
func (c *Client) Referer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exec.Referer()
}

// SetReferer replaces the Referer sent on the next request.
func (c *Client) SetReferer(url string) {
	c.mu.Lock()
	c.exec.SetReferer(url)
	c.mu.Unlock()
}

// Close releases the leased proxy. Later Do calls fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.opts.Pool != nil && c.proxy != nil && c.opts.Proxy == nil {
		c.opts.Pool.Release(c.proxy, c.opts.User)
		c.log.V(1).Info("released proxy", "user", c.opts.User, "proxy", c.proxy.String())
	}
	return nil
}
