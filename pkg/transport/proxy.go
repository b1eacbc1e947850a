package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"

	xproxy "golang.org/x/net/proxy"

	"github.com/WhileEndless/go-rawclient/pkg/browser"
	"github.com/WhileEndless/go-rawclient/pkg/decoder"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
	"github.com/WhileEndless/go-rawclient/pkg/headers"
	"github.com/WhileEndless/go-rawclient/pkg/proxy"
	"github.com/WhileEndless/go-rawclient/pkg/timing"
)

// dialProxy opens the connection to an HTTP or HTTPS proxy.
func (c *Connector) dialProxy(ctx context.Context, p *proxy.Proxy, b *browser.Browser, timer *timing.Timer) (net.Conn, error) {
	conn, err := c.dialTCP(ctx, p.Address(), b, timer)
	if err != nil {
		return nil, errors.NewProxyError(p.Host, p.Port, "connect to proxy", err)
	}
	if p.Type != proxy.HTTPS {
		return conn, nil
	}

	tc := tls.Client(conn, &tls.Config{ServerName: p.Host, InsecureSkipVerify: c.cfg.InsecureTLS})
	conn.SetDeadline(handshakeDeadline(b))
	if err := tc.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, errors.NewProxyError(p.Host, p.Port, "tls to proxy", err)
	}
	conn.SetDeadline(noDeadline)
	return tc, nil
}

// tunnel asks an HTTP proxy to CONNECT to addr. The reply head is read a
// byte at a time so nothing sent by the origin after it is consumed.
func (c *Connector) tunnel(ctx context.Context, conn net.Conn, p *proxy.Proxy, addr string, b *browser.Browser, timer *timing.Timer) error {
	timer.Start(timing.Proxy)
	defer timer.End(timing.Proxy)

	h := headers.New()
	h.Set("Host", addr)
	h.Set("User-Agent", b.UserAgent)
	h.Set("Connection", "keep-alive")
	if p.HasAuth() {
		h.Set("Proxy-Connection", "keep-alive")
		h.Set("Proxy-Authorization", "Basic "+p.BasicAuth())
	}

	var req bytes.Buffer
	fmt.Fprintf(&req, "CONNECT %s %s\r\n", addr, b.Version())
	h.WriteTo(&req)
	req.WriteString("\r\n")

	stop := closeOnCancel(ctx, conn)
	defer stop()
	conn.SetDeadline(handshakeDeadline(b))
	defer conn.SetDeadline(noDeadline)

	if _, err := conn.Write(req.Bytes()); err != nil {
		return errors.NewProxyError(p.Host, p.Port, "write CONNECT", err)
	}
	res, err := decoder.Decode(&byteReader{r: conn})
	if err != nil {
		return errors.NewProxyError(p.Host, p.Port, "read CONNECT response", err)
	}
	if res.Status.Code != 200 {
		return errors.NewProxyError(p.Host, p.Port, fmt.Sprintf("tunnel to %s refused: %s", addr, res.Status), nil)
	}
	c.log.V(2).Info("tunnel established", "proxy", p.String(), "target", addr)
	return nil
}

type byteReader struct {
	r io.Reader
	b [1]byte
}

func (br *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(br.r, br.b[:]); err != nil {
		return 0, err
	}
	return br.b[0], nil
}

// forwardDialer lets the SOCKS5 dialer reach the proxy through the
// connector's own socket setup.
type forwardDialer struct {
	c     *Connector
	b     *browser.Browser
	timer *timing.Timer
}

func (f forwardDialer) Dial(network, addr string) (net.Conn, error) {
	return f.DialContext(context.Background(), network, addr)
}

func (f forwardDialer) DialContext(ctx context.Context, _, addr string) (net.Conn, error) {
	return f.c.dialTCP(ctx, addr, f.b, f.timer)
}

func (c *Connector) dialSOCKS5(ctx context.Context, p *proxy.Proxy, addr string, b *browser.Browser, timer *timing.Timer) (net.Conn, error) {
	var auth *xproxy.Auth
	if p.HasAuth() {
		auth = &xproxy.Auth{User: p.Username, Password: p.Password}
	}
	d, err := xproxy.SOCKS5("tcp", p.Address(), auth, forwardDialer{c: c, b: b, timer: timer})
	if err != nil {
		return nil, errors.NewProxyError(p.Host, p.Port, "socks5 setup", err)
	}

	timer.Start(timing.Proxy)
	defer timer.End(timing.Proxy)

	var conn net.Conn
	if cd, ok := d.(xproxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.Dial("tcp", addr)
	}
	if err != nil {
		return nil, errors.NewProxyError(p.Host, p.Port, "socks5 connect to "+addr, err)
	}
	return conn, nil
}

// SOCKS4 reply codes.
const (
	socks4Version = 0x04
	socks4Connect = 0x01
	socks4Granted = 0x5a
)

// dialSOCKS4 performs a SOCKS4 CONNECT. The protocol only carries IPv4
// addresses, so host is resolved locally first.
func (c *Connector) dialSOCKS4(ctx context.Context, p *proxy.Proxy, host string, port int, b *browser.Browser, timer *timing.Timer) (net.Conn, error) {
	ipStr, err := c.resolveHost(ctx, host, timer)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(ipStr).To4()
	if ip == nil {
		return nil, errors.NewProxyError(p.Host, p.Port, "socks4 needs an IPv4 target, got "+ipStr, nil)
	}

	conn, err := c.dialTCP(ctx, p.Address(), b, timer)
	if err != nil {
		return nil, errors.NewProxyError(p.Host, p.Port, "connect to proxy", err)
	}

	timer.Start(timing.Proxy)
	defer timer.End(timing.Proxy)

	req := []byte{socks4Version, socks4Connect, 0, 0}
	binary.BigEndian.PutUint16(req[2:], uint16(port))
	req = append(req, ip...)
	req = append(req, p.Username...)
	req = append(req, 0)

	stop := closeOnCancel(ctx, conn)
	defer stop()
	conn.SetDeadline(handshakeDeadline(b))
	defer conn.SetDeadline(noDeadline)

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, errors.NewProxyError(p.Host, p.Port, "write socks4 request", err)
	}
	var reply [8]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		conn.Close()
		return nil, errors.NewProxyError(p.Host, p.Port, "read socks4 reply", err)
	}
	if reply[1] != socks4Granted {
		conn.Close()
		return nil, errors.NewProxyError(p.Host, p.Port, "socks4 request rejected with code "+strconv.Itoa(int(reply[1])), nil)
	}
	return conn, nil
}
