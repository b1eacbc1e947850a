// Package proxy describes upstream proxies and the pool sessions draw them
// from.
package proxy

import (
	"encoding/base64"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is the proxy protocol.
type Type string

const (
	HTTP   Type = "http"
	HTTPS  Type = "https"
	SOCKS4 Type = "socks4"
	SOCKS5 Type = "socks5"
)

// IsSOCKS reports whether t is a SOCKS variant.
func (t Type) IsSOCKS() bool { return t == SOCKS4 || t == SOCKS5 }

// Proxy is one upstream proxy. A positive Cooldown makes it a rotating proxy:
// the same user may not take it again until the cooldown has passed since
// their last lease.
type Proxy struct {
	ID       string
	Type     Type
	Host     string
	Port     int
	Username string
	Password string
	Cooldown time.Duration

	authOnce sync.Once
	auth     string
}

// New creates a proxy with a fresh identity.
func New(t Type, host string, port int) *Proxy {
	return &Proxy{ID: uuid.NewString(), Type: t, Host: host, Port: port}
}

// WithAuth sets credentials and returns p.
func (p *Proxy) WithAuth(user, pass string) *Proxy {
	p.Username = user
	p.Password = pass
	return p
}

// WithCooldown makes p rotating and returns it.
func (p *Proxy) WithCooldown(d time.Duration) *Proxy {
	p.Cooldown = d
	return p
}

// HasAuth reports whether credentials are configured.
func (p *Proxy) HasAuth() bool {
	return p != nil && p.Username != ""
}

// Rotating reports whether p carries a cooldown.
func (p *Proxy) Rotating() bool {
	return p != nil && p.Cooldown > 0
}

// BasicAuth returns base64(user:pass). It is computed once.
func (p *Proxy) BasicAuth() string {
	p.authOnce.Do(func() {
		if p.HasAuth() {
			p.auth = base64.StdEncoding.EncodeToString([]byte(p.Username + ":" + p.Password))
		}
	})
	return p.auth
}

// Address is host:port.
func (p *Proxy) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func (p *Proxy) String() string {
	if p == nil {
		return "direct"
	}
	s := string(p.Type) + "://"
	if p.HasAuth() {
		s += p.Username + ":***@"
	}
	return s + p.Address()
}
