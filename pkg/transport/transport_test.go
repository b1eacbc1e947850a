package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhileEndless/go-rawclient/pkg/browser"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
	"github.com/WhileEndless/go-rawclient/pkg/proxy"
	"github.com/WhileEndless/go-rawclient/pkg/tlsconfig"
)

func testBrowser() *browser.Browser {
	b := browser.New(false)
	b.Fingerprint = tlsconfig.Golang
	b.ConnTimeout = 2 * time.Second
	return b
}

func listen(t *testing.T, serve func(net.Conn)) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				serve(conn)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func echo(conn net.Conn) { io.Copy(conn, conn) }

func roundTrip(t *testing.T, conn net.Conn, msg string) {
	t.Helper()
	_, err := conn.Write([]byte(msg))
	require.NoError(t, err)
	buf := make([]byte, len(msg))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, msg, string(buf))
}

func TestConnectDirect(t *testing.T) {
	port := listen(t, echo)
	c := New(DefaultConfig(), WithLogger(testr.New(t)))

	conn, err := c.Connect(context.Background(), Target{Host: "127.0.0.1", Port: port, Browser: testBrowser()})
	require.NoError(t, err)
	defer conn.Close()

	assert.False(t, conn.Secure)
	assert.False(t, conn.Forward)
	assert.Equal(t, port, conn.Port)
	roundTrip(t, conn, "ping")
}

func TestConnectPortSelection(t *testing.T) {
	tests := []struct {
		name     string
		port     int
		force    bool
		remember bool
		ignore   bool
		wantAddr string
	}{
		{"plaintext default", 0, false, false, false, "127.0.0.1:80"},
		{"forced tls default", 0, true, false, false, "127.0.0.1:443"},
		{"forced tls on 80", 80, true, false, false, "127.0.0.1:443"},
		{"forced tls custom", 8443, true, false, false, "127.0.0.1:8443"},
		{"remembered host", 0, false, true, false, "127.0.0.1:443"},
		{"remembered host ignored", 0, false, true, true, "127.0.0.1:80"},
		{"plaintext custom", 8080, false, false, false, "127.0.0.1:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var addrs []string
			c := New(DefaultConfig())
			c.dial = func(_ context.Context, _, addr string) (net.Conn, error) {
				addrs = append(addrs, addr)
				return nil, stderrors.New("refused")
			}
			if tt.remember {
				c.MarkTLS("127.0.0.1")
			}

			_, err := c.Connect(context.Background(), Target{
				Host: "127.0.0.1", Port: tt.port, Browser: testBrowser(),
				ForceSSL: tt.force, IgnoreMemory: tt.ignore,
			})
			require.Error(t, err)
			require.NotEmpty(t, addrs)
			assert.Equal(t, tt.wantAddr, addrs[0])
		})
	}
}

func TestConnectValidation(t *testing.T) {
	c := New(DefaultConfig())
	_, err := c.Connect(context.Background(), Target{})
	assert.Equal(t, errors.ErrorTypeValidation, errors.GetErrorType(err))

	_, err = c.Connect(context.Background(), Target{Host: "example.com", Port: 70000})
	assert.Equal(t, errors.ErrorTypeValidation, errors.GetErrorType(err))
}

func TestResolveFallback(t *testing.T) {
	port := listen(t, echo)

	var mu sync.Mutex
	var dialed []string
	failIP := false
	c := New(DefaultConfig(), WithLogger(testr.New(t)))
	c.lookup = func(context.Context, string) ([]net.IPAddr, error) {
		return []net.IPAddr{{IP: net.ParseIP("127.0.0.1")}}, nil
	}
	c.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		mu.Lock()
		dialed = append(dialed, addr)
		fail := failIP
		mu.Unlock()
		if strings.HasPrefix(addr, "origin.test:") || fail {
			return nil, stderrors.New("unreachable")
		}
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	}
	target := Target{Host: "origin.test", Port: port, Browser: testBrowser()}

	conn, err := c.Connect(context.Background(), target)
	require.NoError(t, err)
	conn.Close()
	assert.Len(t, dialed, 2)
	assert.True(t, c.Resolves("origin.test"))

	// Known to need resolution: dialled by address straight away.
	conn, err = c.Connect(context.Background(), target)
	require.NoError(t, err)
	conn.Close()
	assert.Len(t, dialed, 3)
	assert.True(t, strings.HasPrefix(dialed[2], "127.0.0.1:"))

	// Address no longer reachable: give up and forget the address.
	failIP = true
	_, err = c.Connect(context.Background(), target)
	require.Error(t, err)
	assert.Len(t, dialed, 4)
	assert.False(t, c.Resolves("origin.test"))
}

// readHead reads an HTTP head from r.
func readHead(r *bufio.Reader) []string {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return lines
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestConnectTunnel(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello through tunnel")
	}))
	defer srv.Close()
	originPort := srv.Listener.Addr().(*net.TCPAddr).Port

	heads := make(chan []string, 1)
	proxyPort := listen(t, func(conn net.Conn) {
		br := bufio.NewReader(conn)
		heads <- readHead(br)
		upstream, err := net.Dial("tcp", srv.Listener.Addr().String())
		if err != nil {
			return
		}
		defer upstream.Close()
		io.WriteString(conn, "HTTP/1.1 200 Connection established\r\n\r\n")
		go io.Copy(upstream, br)
		io.Copy(conn, upstream)
	})

	cfg := DefaultConfig()
	cfg.InsecureTLS = true
	c := New(cfg, WithLogger(testr.New(t)))
	p := proxy.New(proxy.HTTP, "127.0.0.1", proxyPort).WithAuth("user", "pass")

	conn, err := c.Connect(context.Background(), Target{
		Proxy: p, Host: "127.0.0.1", Port: originPort, Browser: testBrowser(),
	})
	require.NoError(t, err)
	defer conn.Close()
	assert.True(t, conn.Secure, "proxy credentials force tls")
	assert.True(t, c.RequiresTLS("127.0.0.1"))

	head := <-heads
	require.NotEmpty(t, head)
	assert.Equal(t, "CONNECT 127.0.0.1:"+strconv.Itoa(originPort)+" HTTP/1.1", head[0])
	assert.Contains(t, head, "Connection: keep-alive")
	assert.Contains(t, head, "Proxy-Connection: keep-alive")
	assert.Contains(t, head, "Proxy-Authorization: Basic dXNlcjpwYXNz")

	io.WriteString(conn, "GET / HTTP/1.1\r\nHost: 127.0.0.1\r\nConnection: close\r\n\r\n")
	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(reply), "HTTP/1.1 200"))
	assert.Contains(t, string(reply), "hello through tunnel")
}

func TestConnectTunnelRefused(t *testing.T) {
	proxyPort := listen(t, func(conn net.Conn) {
		readHead(bufio.NewReader(conn))
		io.WriteString(conn, "HTTP/1.1 407 Proxy Authentication Required\r\nContent-Length: 0\r\n\r\n")
	})

	c := New(DefaultConfig())
	p := proxy.New(proxy.HTTP, "127.0.0.1", proxyPort)
	_, err := c.Connect(context.Background(), Target{
		Proxy: p, Host: "127.0.0.1", Port: 443, ForceSSL: true, Browser: testBrowser(),
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeProxy, errors.GetErrorType(err))
	assert.Contains(t, err.Error(), "407")
}

func TestConnectForward(t *testing.T) {
	proxyPort := listen(t, echo)
	c := New(DefaultConfig())
	p := proxy.New(proxy.HTTP, "127.0.0.1", proxyPort)

	conn, err := c.Connect(context.Background(), Target{Proxy: p, Host: "example.com", Browser: testBrowser()})
	require.NoError(t, err)
	defer conn.Close()
	assert.True(t, conn.Forward)
	assert.False(t, conn.Secure)
	assert.Same(t, p, conn.Proxy)
	roundTrip(t, conn, "GET http://example.com/ HTTP/1.1\r\n\r\n")
}

func TestConnectSOCKS4(t *testing.T) {
	var got []byte
	done := make(chan struct{})
	proxyPort := listen(t, func(conn net.Conn) {
		br := bufio.NewReader(conn)
		head := make([]byte, 8)
		if _, err := io.ReadFull(br, head); err != nil {
			return
		}
		user, _ := br.ReadBytes(0)
		got = append(head, user...)
		close(done)
		conn.Write([]byte{0, socks4Granted, 0, 0, 0, 0, 0, 0})
		io.Copy(conn, br)
	})

	c := New(DefaultConfig())
	p := proxy.New(proxy.SOCKS4, "127.0.0.1", proxyPort).WithAuth("bob", "")
	conn, err := c.Connect(context.Background(), Target{Proxy: p, Host: "10.1.2.3", Port: 8081, Browser: testBrowser()})
	require.NoError(t, err)
	defer conn.Close()
	<-done

	assert.Equal(t, byte(socks4Version), got[0])
	assert.Equal(t, byte(socks4Connect), got[1])
	assert.Equal(t, uint16(8081), binary.BigEndian.Uint16(got[2:4]))
	assert.Equal(t, []byte{10, 1, 2, 3}, got[4:8])
	assert.Equal(t, "bob\x00", string(got[8:]))
	roundTrip(t, conn, "socks4 payload")
}

func TestConnectSOCKS4Rejected(t *testing.T) {
	proxyPort := listen(t, func(conn net.Conn) {
		br := bufio.NewReader(conn)
		io.ReadFull(br, make([]byte, 8))
		br.ReadBytes(0)
		conn.Write([]byte{0, 0x5b, 0, 0, 0, 0, 0, 0})
	})

	c := New(DefaultConfig())
	p := proxy.New(proxy.SOCKS4, "127.0.0.1", proxyPort)
	_, err := c.Connect(context.Background(), Target{Proxy: p, Host: "10.1.2.3", Port: 80, Browser: testBrowser()})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeProxy, errors.GetErrorType(err))
}

func TestConnectSOCKS5(t *testing.T) {
	targets := make(chan string, 1)
	proxyPort := listen(t, func(conn net.Conn) {
		br := bufio.NewReader(conn)
		greeting := make([]byte, 2)
		if _, err := io.ReadFull(br, greeting); err != nil {
			return
		}
		io.ReadFull(br, make([]byte, greeting[1]))
		conn.Write([]byte{5, 0})

		req := make([]byte, 4)
		if _, err := io.ReadFull(br, req); err != nil {
			return
		}
		var host string
		switch req[3] {
		case 1:
			ip := make([]byte, 4)
			io.ReadFull(br, ip)
			host = net.IP(ip).String()
		case 3:
			n, _ := br.ReadByte()
			name := make([]byte, n)
			io.ReadFull(br, name)
			host = string(name)
		}
		portBytes := make([]byte, 2)
		io.ReadFull(br, portBytes)
		targets <- net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(portBytes))))

		conn.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0})
		io.Copy(conn, br)
	})

	c := New(DefaultConfig())
	p := proxy.New(proxy.SOCKS5, "127.0.0.1", proxyPort)
	conn, err := c.Connect(context.Background(), Target{Proxy: p, Host: "origin.test", Port: 8080, Browser: testBrowser()})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "origin.test:8080", <-targets)
	roundTrip(t, conn, "socks5 payload")
}
