package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhileEndless/go-rawclient/pkg/proxy"
	"github.com/WhileEndless/go-rawclient/pkg/request"
	"github.com/WhileEndless/go-rawclient/pkg/response"
	"github.com/WhileEndless/go-rawclient/pkg/security"
	"github.com/WhileEndless/go-rawclient/pkg/status"
	"github.com/WhileEndless/go-rawclient/pkg/transport"
)

// origin is a raw HTTP/1.1 server answering one request per connection.
type origin struct {
	addr string
	hits atomic.Int32
}

func newOrigin(t *testing.T, respond func(n int, line string, h map[string]string) string) *origin {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	o := &origin{addr: ln.Addr().String()}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				br := bufio.NewReader(conn)
				line, err := br.ReadString('\n')
				if err != nil {
					return
				}
				h := map[string]string{}
				for {
					l, err := br.ReadString('\n')
					if err != nil {
						return
					}
					l = strings.TrimRight(l, "\r\n")
					if l == "" {
						break
					}
					k, v, _ := strings.Cut(l, ": ")
					h[k] = v
				}
				if n, _ := strconv.Atoi(h["Content-Length"]); n > 0 {
					br.Discard(n)
				}
				n := int(o.hits.Add(1))
				conn.Write([]byte(respond(n, strings.TrimRight(line, "\r\n"), h)))
			}()
		}
	}()
	return o
}

func (o *origin) url(path string) string { return "http://" + o.addr + path }

func reply(code int, extra, payload string) string {
	return fmt.Sprintf("HTTP/1.1 %d %s\r\n%sContent-Length: %d\r\n\r\n%s",
		code, status.Reason(code), extra, len(payload), payload)
}

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	opts.Logger = testr.New(t)
	opts.Transport = transport.DefaultConfig()
	c, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDo(t *testing.T) {
	o := newOrigin(t, func(int, string, map[string]string) string {
		return reply(200, "Content-Type: text/plain\r\nSet-Cookie: session=1\r\n", "hello")
	})
	c := newClient(t, Options{})

	var succeeded, failed int
	req := request.Get(o.url("/index"))
	req.PostExecute = request.PostExecuteFuncs{
		Success: func(*request.Request, *response.Response) { succeeded++ },
		Failure: func(*request.Request, *response.Response) { failed++ },
	}
	res := c.Do(context.Background(), req)

	require.True(t, res.Validate(), res.String())
	assert.Equal(t, "hello", res.Content())
	assert.Equal(t, 1, succeeded)
	assert.Zero(t, failed)
	assert.Equal(t, 1, c.Jar().Len())
	assert.Equal(t, req.URL, c.Referer())
	assert.Positive(t, c.Counter().Up())
	assert.Positive(t, c.Counter().Down())
	assert.NotEmpty(t, res.Metrics.RemoteAddr)
}

func TestDoRunsFailureHandler(t *testing.T) {
	o := newOrigin(t, func(int, string, map[string]string) string { return reply(404, "", "missing") })
	c := newClient(t, Options{})

	var failed *response.Response
	req := request.Get(o.url("/"))
	req.PostExecute = request.PostExecuteFuncs{
		Failure: func(_ *request.Request, res *response.Response) { failed = res },
	}
	res := c.Do(context.Background(), req)
	assert.False(t, res.Validate())
	assert.Equal(t, 404, res.Code())
	assert.Same(t, res, failed)
}

func TestDownload(t *testing.T) {
	payload := strings.Repeat("0123456789", 1000)
	o := newOrigin(t, func(int, string, map[string]string) string {
		return reply(200, "Content-Type: application/octet-stream\r\n", payload)
	})
	c := newClient(t, Options{})

	path := filepath.Join(t.TempDir(), "file.bin")
	f, err := c.Download(context.Background(), path, request.Get(o.url("/file.bin")))
	require.NoError(t, err)
	assert.Equal(t, path, f.Path)
	assert.EqualValues(t, len(payload), f.Size)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestDownloadFailure(t *testing.T) {
	o := newOrigin(t, func(int, string, map[string]string) string { return reply(500, "", "") })
	c := newClient(t, Options{})

	_, err := c.Download(context.Background(), filepath.Join(t.TempDir(), "x"), request.Get(o.url("/")))
	assert.Error(t, err)
}

func TestBackground(t *testing.T) {
	o := newOrigin(t, func(n int, line string, _ map[string]string) string {
		return reply(200, "Content-Type: text/plain\r\n", strings.Fields(line)[1])
	})
	c := newClient(t, Options{})

	var reqs []*request.Request
	for i := range 5 {
		reqs = append(reqs, request.Get(o.url("/item/"+strconv.Itoa(i))))
	}

	got := map[string]bool{}
	for res := range c.Background(context.Background(), reqs...) {
		require.True(t, res.Validate(), res.String())
		got[res.Content()] = true
	}
	assert.Len(t, got, 5)
	assert.True(t, got["/item/3"])
	assert.EqualValues(t, 5, o.hits.Load())
	assert.Positive(t, c.Counter().Down())
}

func TestFetchIP(t *testing.T) {
	o := newOrigin(t, func(int, string, map[string]string) string {
		return reply(200, "Content-Type: text/plain\r\n", "203.0.113.7\n")
	})
	c := newClient(t, Options{})
	c.SetReferer("http://example.com/")
	c.opts.IPEndpoint = o.url("/")

	ip, err := c.FetchIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", ip)
	assert.Equal(t, "http://example.com/", c.Referer(), "the lookup does not move the referer")
}

func TestClosedClient(t *testing.T) {
	c := newClient(t, Options{})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	res := c.Do(context.Background(), request.Get("http://example.com/"))
	assert.True(t, res.Synthetic())
	assert.Equal(t, "Client closed", res.Status.Reason)
}

func TestProxyLease(t *testing.T) {
	px := proxy.New(proxy.HTTP, "127.0.0.1", 3128)
	pool := proxy.NewStaticPool([]*proxy.Proxy{px})

	c, err := New(context.Background(), Options{Pool: pool, User: "alice", Logger: testr.New(t)})
	require.NoError(t, err)
	assert.Same(t, px, c.Proxy())
	assert.Equal(t, 1, pool.Registry().ActiveUsers(px))

	require.NoError(t, c.Close())
	assert.Zero(t, pool.Registry().ActiveUsers(px))
}

func TestProxyLeaseNeedsUser(t *testing.T) {
	pool := proxy.NewStaticPool([]*proxy.Proxy{proxy.New(proxy.HTTP, "127.0.0.1", 3128)})
	_, err := New(context.Background(), Options{Pool: pool})
	assert.Error(t, err)
}

func TestProxyLeaseTimesOut(t *testing.T) {
	px := proxy.New(proxy.HTTP, "127.0.0.1", 3128)
	pool := proxy.NewStaticPool([]*proxy.Proxy{px}, proxy.WithPollInterval(5*time.Millisecond))
	first, err := New(context.Background(), Options{Pool: pool, User: "alice"})
	require.NoError(t, err)
	defer first.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = New(ctx, Options{Pool: pool, User: "bob"})
	assert.Error(t, err)
}

func TestSecurityChallenge(t *testing.T) {
	o := newOrigin(t, func(n int, _ string, _ map[string]string) string {
		if n == 1 {
			return reply(503, "Content-Type: text/html\r\nRetry-After: 1\r\n",
				`<html><body><div id="challenge-form">checking your browser</div></body></html>`)
		}
		return reply(200, "Content-Type: text/html\r\n", "<html><body>ok</body></html>")
	})
	c := newClient(t, Options{})

	var waited []time.Duration
	ch := security.NewStatusChallenge("interstitial", "#challenge-form")
	ch.Sleep = func(_ context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}
	c.Security().Register("", ch)

	res := c.Do(context.Background(), request.Get(o.url("/")))
	require.True(t, res.Validate(), res.String())
	assert.Contains(t, res.Content(), "ok")
	assert.Equal(t, []time.Duration{time.Second}, waited)
	assert.EqualValues(t, 2, o.hits.Load())
}
