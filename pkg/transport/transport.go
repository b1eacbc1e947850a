// Package transport opens the sockets a request is written to: direct or
// through a proxy, plaintext or TLS with a browser ClientHello.
package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/WhileEndless/go-rawclient/pkg/browser"
	"github.com/WhileEndless/go-rawclient/pkg/constants"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
	"github.com/WhileEndless/go-rawclient/pkg/proxy"
	"github.com/WhileEndless/go-rawclient/pkg/timing"
	"github.com/WhileEndless/go-rawclient/pkg/tlsconfig"
)

// Config holds socket and TLS tunables.
type Config struct {
	// KeepAlive toggles SO_KEEPALIVE.
	KeepAlive       bool
	KeepAlivePeriod time.Duration
	// ReuseAddress sets SO_REUSEADDR before connecting.
	ReuseAddress bool
	// LingerZero makes Close send RST instead of lingering.
	LingerZero bool
	// BufferSize sizes the socket send and receive buffers.
	BufferSize  int
	DNSTimeout  time.Duration
	InsecureTLS bool
	TLSVersions tlsconfig.VersionProfile
}

// DefaultConfig returns the tunables used when none are configured.
func DefaultConfig() Config {
	return Config{
		KeepAlive:       true,
		KeepAlivePeriod: constants.DefaultKeepAlive,
		BufferSize:      constants.SocketBufferSize,
		TLSVersions:     tlsconfig.ProfileSecure,
	}
}

// Target describes one connection to open.
type Target struct {
	Proxy   *proxy.Proxy
	Host    string
	Port    int
	Browser *browser.Browser
	// ForceSSL requests TLS regardless of what is known about Host.
	ForceSSL bool
	// IgnoreMemory skips the remembered TLS hosts.
	IgnoreMemory bool
	Timer        *timing.Timer
}

// Conn is an open connection.
type Conn struct {
	net.Conn
	Secure bool
	// Forward is set for plaintext requests sent through an HTTP proxy, which
	// need an absolute-form request target.
	Forward bool
	Proxy   *proxy.Proxy
	Port    int
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type lookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// Connector opens connections and remembers which hosts need TLS and which
// only connect after local DNS resolution. It is safe for concurrent use.
type Connector struct {
	cfg      Config
	log      logr.Logger
	sslHosts sync.Map
	resolve  sync.Map

	dial   dialFunc
	lookup lookupFunc
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the connector logger.
func WithLogger(l logr.Logger) Option {
	return func(c *Connector) { c.log = l }
}

// WithResolver uses r for the DNS fallback.
func WithResolver(r *net.Resolver) Option {
	return func(c *Connector) { c.lookup = r.LookupIPAddr }
}

// New creates a Connector.
func New(cfg Config, opts ...Option) *Connector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = constants.SocketBufferSize
	}
	c := &Connector{
		cfg:    cfg,
		log:    logr.Discard(),
		lookup: net.DefaultResolver.LookupIPAddr,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RequiresTLS reports whether host was seen to need TLS.
func (c *Connector) RequiresTLS(host string) bool {
	_, ok := c.sslHosts.Load(host)
	return ok
}

// MarkTLS remembers that host needs TLS.
func (c *Connector) MarkTLS(host string) {
	c.sslHosts.Store(host, struct{}{})
}

// Resolves reports whether host is currently dialled by IP.
func (c *Connector) Resolves(host string) bool {
	_, ok := c.resolve.Load(host)
	return ok
}

// Connect opens a connection following the decision table: TLS when forced,
// when the proxy carries credentials, or when the host is known to need it;
// plaintext otherwise.
func (c *Connector) Connect(ctx context.Context, t Target) (*Conn, error) {
	if t.Host == "" {
		return nil, errors.NewValidationError("host cannot be empty")
	}
	if t.Browser == nil {
		t.Browser = browser.New(false)
	}

	secure := t.ForceSSL || t.Proxy.HasAuth() || (!t.IgnoreMemory && c.RequiresTLS(t.Host))
	port := t.Port
	switch {
	case port <= 0 && secure:
		port = constants.DefaultHTTPSPort
	case port <= 0:
		port = constants.DefaultHTTPPort
	case secure && port == constants.DefaultHTTPPort:
		port = constants.DefaultHTTPSPort
	}
	if port > 65535 {
		return nil, errors.NewValidationError("port must be between 1 and 65535")
	}

	byIP := c.Resolves(t.Host)
	conn, err := c.attempt(ctx, t, port, secure, byIP)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if byIP {
		c.resolve.Delete(t.Host)
		return nil, err
	}

	c.log.V(1).Info("connect by name failed, retrying by address", "host", t.Host, "error", err.Error())
	c.resolve.Store(t.Host, struct{}{})
	conn, err = c.attempt(ctx, t, port, secure, true)
	if err != nil {
		c.resolve.Delete(t.Host)
		return nil, err
	}
	return conn, nil
}

func (c *Connector) attempt(ctx context.Context, t Target, port int, secure, byIP bool) (*Conn, error) {
	contact := t.Host
	if byIP {
		ip, err := c.resolveHost(ctx, t.Host, t.Timer)
		if err != nil {
			return nil, err
		}
		contact = ip
	}

	raw, forward, err := c.route(ctx, t, contact, port, secure)
	if err != nil {
		return nil, err
	}
	c.applyOptions(raw)
	t.Timer.SetRemote(raw.RemoteAddr().String())

	if !secure {
		return &Conn{Conn: raw, Forward: forward, Proxy: t.Proxy, Port: port}, nil
	}

	tlsConn, err := c.handshake(ctx, raw, t)
	if err != nil {
		raw.Close()
		return nil, errors.NewTLSError(t.Host, port, err)
	}
	c.MarkTLS(t.Host)
	return &Conn{Conn: tlsConn, Secure: true, Proxy: t.Proxy, Port: port}, nil
}

// route dials the target directly or through the proxy. For HTTP proxies a
// TLS connection is tunneled with CONNECT and a plaintext one is forwarded.
func (c *Connector) route(ctx context.Context, t Target, host string, port int, secure bool) (net.Conn, bool, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	p := t.Proxy
	if p == nil {
		conn, err := c.dialTCP(ctx, addr, t.Browser, t.Timer)
		if err != nil {
			return nil, false, errors.NewConnectionError(host, port, err)
		}
		return conn, false, nil
	}

	switch p.Type {
	case proxy.SOCKS5:
		conn, err := c.dialSOCKS5(ctx, p, addr, t.Browser, t.Timer)
		return conn, false, err
	case proxy.SOCKS4:
		conn, err := c.dialSOCKS4(ctx, p, host, port, t.Browser, t.Timer)
		return conn, false, err
	}

	conn, err := c.dialProxy(ctx, p, t.Browser, t.Timer)
	if err != nil {
		return nil, false, err
	}
	if !secure {
		return conn, true, nil
	}
	if err := c.tunnel(ctx, conn, p, addr, t.Browser, t.Timer); err != nil {
		conn.Close()
		return nil, false, err
	}
	t.Timer.SetTunneled()
	return conn, false, nil
}

func (c *Connector) netDialer(b *browser.Browser) *net.Dialer {
	d := &net.Dialer{Timeout: b.ConnTimeout, KeepAlive: -1}
	if d.Timeout <= 0 {
		d.Timeout = constants.DefaultConnTimeout
	}
	if c.cfg.KeepAlive {
		d.KeepAlive = c.cfg.KeepAlivePeriod
	}
	if c.cfg.ReuseAddress {
		d.Control = reuseAddrControl
	}
	return d
}

func (c *Connector) dialTCP(ctx context.Context, addr string, b *browser.Browser, timer *timing.Timer) (net.Conn, error) {
	timer.Start(timing.Connect)
	defer timer.End(timing.Connect)

	if c.dial != nil {
		return c.dial(ctx, "tcp", addr)
	}
	return c.netDialer(b).DialContext(ctx, "tcp", addr)
}

func (c *Connector) resolveHost(ctx context.Context, host string, timer *timing.Timer) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	timer.Start(timing.DNS)
	defer timer.End(timing.DNS)

	timeout := c.cfg.DNSTimeout
	if timeout <= 0 {
		timeout = constants.DefaultConnTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := c.lookup(lctx, host)
	if err != nil {
		return "", errors.NewDNSError(host, err)
	}
	if len(addrs) == 0 {
		return "", errors.NewDNSError(host, errors.NewValidationError("no IP addresses found"))
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP.String(), nil
		}
	}
	return addrs[0].IP.String(), nil
}

func (c *Connector) applyOptions(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tcp.SetNoDelay(true)
	tcp.SetReadBuffer(c.cfg.BufferSize)
	tcp.SetWriteBuffer(c.cfg.BufferSize)
	tcp.SetKeepAlive(c.cfg.KeepAlive)
	if c.cfg.LingerZero {
		tcp.SetLinger(0)
	}
}

// closeOnCancel closes conn if ctx ends before stop is called, unblocking a
// handshake that has no context of its own.
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

var noDeadline time.Time

func handshakeDeadline(b *browser.Browser) time.Time {
	timeout := b.ConnTimeout
	if timeout <= 0 {
		timeout = constants.DefaultConnTimeout
	}
	return time.Now().Add(timeout)
}
