package executor

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/WhileEndless/go-rawclient/pkg/body"
	"github.com/WhileEndless/go-rawclient/pkg/buffer"
	"github.com/WhileEndless/go-rawclient/pkg/constants"
	"github.com/WhileEndless/go-rawclient/pkg/counter"
	"github.com/WhileEndless/go-rawclient/pkg/decoder"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
	"github.com/WhileEndless/go-rawclient/pkg/headerbuilder"
	"github.com/WhileEndless/go-rawclient/pkg/headers"
	"github.com/WhileEndless/go-rawclient/pkg/request"
	"github.com/WhileEndless/go-rawclient/pkg/response"
	"github.com/WhileEndless/go-rawclient/pkg/timing"
	"github.com/WhileEndless/go-rawclient/pkg/transport"
)

// exchange performs one physical round-trip on a fresh connection.
func (e *Executor) exchange(ctx context.Context, x *run) (*response.Response, error) {
	req := x.req
	secure := x.ssl || (!req.NoSSL && e.conn.RequiresTLS(x.host)) || e.proxy.HasAuth()

	h, err := e.buildHeaders(x, secure)
	if err != nil {
		return nil, err
	}

	timer := timing.NewTimer()
	conn, err := e.conn.Connect(ctx, transport.Target{
		Proxy:        e.proxy,
		Host:         x.host,
		Port:         req.ContactPort(),
		Browser:      e.browser,
		ForceSSL:     secure,
		IgnoreMemory: req.NoSSL,
		Timer:        timer,
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	stop := closeOnCancel(ctx, conn)
	defer stop()

	rw := &deadlineConn{Conn: conn, timeout: e.browser.ReadTimeout}
	req.Counter.Reset()

	var capture *buffer.Buffer
	if e.debug {
		capture = buffer.New(constants.MaxHeaderBytes)
		defer capture.Close()
	}
	out := counter.NewWriter(rw, &req.Counter)
	w := bufio.NewWriter(buffer.Tee(out, capture))

	target := req.Endpoint()
	if conn.Forward {
		target = req.URL
	}
	if _, err := io.WriteString(w, req.Method.String()+" "+target+" "+e.browser.Version()+"\r\n"); err != nil {
		return nil, errors.NewIOError("writing request line", err)
	}
	if _, err := h.WriteTo(w); err != nil {
		return nil, errors.NewIOError("writing headers", err)
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return nil, errors.NewIOError("writing headers", err)
	}
	if capture != nil {
		if err := w.Flush(); err != nil {
			return nil, errors.NewIOError("sending request", err)
		}
		e.log.V(1).Info("request head", "url", req.URL, "secure", conn.Secure, "head", capture.String())
		// The body is not captured.
		w.Reset(out)
	}
	if req.HasBody() {
		if _, err := req.Body.WriteTo(w); err != nil {
			return nil, errors.NewIOError("writing body", err)
		}
	}
	if err := w.Flush(); err != nil {
		return nil, errors.NewIOError("sending request", err)
	}

	r := bufio.NewReaderSize(counter.NewReader(rw, &req.Counter), constants.FileBufferSize)
	timer.Start(timing.TTFB)
	if _, err := r.Peek(1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewIOError("awaiting response", err)
	}
	timer.End(timing.TTFB)

	head, err := decoder.Decode(r)
	if err != nil {
		return nil, err
	}
	if req.Chunked() {
		req.Body.Chunks().Commit()
	}
	e.jar.Import(head.Cookies)
	for _, s := range head.Skipped {
		e.log.V(2).Info("skipped response header", "line", s)
	}

	b, err := e.readBody(req, head, r)
	if err != nil {
		return nil, err
	}

	res := response.New(req.URL, req.Expect, head.Status, head.Headers, b)
	res.Metrics = timer.Metrics()
	e.counter.Merge(&req.Counter)
	e.log.V(1).Info("round-trip",
		"method", req.Method.String(), "url", req.URL, "status", head.Status.Code,
		"secure", conn.Secure, "up", req.Counter.Up(), "down", req.Counter.Down(),
		"timing", res.Metrics.String())
	return res, nil
}

func (e *Executor) buildHeaders(x *run, secure bool) (*headers.Headers, error) {
	req := x.req
	h := headers.New()
	d := headerbuilder.Default{
		Browser:    e.browser,
		Jar:        e.jar,
		Referer:    e.referer,
		Redirected: len(x.chain) > 0,
	}
	if e.noCookies {
		d.Jar = nil
	}
	if err := d.Build(req, h); err != nil {
		return nil, err
	}
	if secure {
		headerbuilder.SecFetch{LastHost: e.lastHost, Visited: e.Visited, Chain: x.chain}.Build(req, h)
	}
	if req.Headers != nil {
		h.Overlay(req.Headers)
	}
	return h, nil
}

func (e *Executor) readBody(req *request.Request, head *decoder.Result, r io.Reader) (body.Body, error) {
	if req.Method == request.HEAD || !head.Status.HasBody() {
		return body.Text{}, nil
	}
	return body.Parse(head.Headers, r, body.Options{
		DecodeBody:   req.DecodeBody,
		SaveDataMode: e.saveData,
		SavePath:     req.SavePath,
		Progress:     req.Progress,
		Logger:       e.log,
	})
}

// deadlineConn renews the read or write deadline before every call so a
// stalled peer fails the round-trip instead of hanging it.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	n, err := c.Conn.Read(p)
	if err != nil && errors.IsTimeoutError(err) {
		return n, errors.NewTimeoutError("read", c.timeout)
	}
	return n, err
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.timeout > 0 {
		c.Conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	n, err := c.Conn.Write(p)
	if err != nil && errors.IsTimeoutError(err) {
		return n, errors.NewTimeoutError("write", c.timeout)
	}
	return n, err
}

func closeOnCancel(ctx context.Context, conn net.Conn) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
