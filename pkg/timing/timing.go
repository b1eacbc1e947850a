// Package timing records where the time of a physical round-trip went.
package timing

import (
	"fmt"
	"strings"
	"time"
)

// Phase is one measured step of a round-trip.
type Phase int

const (
	DNS Phase = iota
	Connect
	Proxy
	TLS
	TTFB
	numPhases
)

var phaseNames = [numPhases]string{"dns", "connect", "proxy", "tls", "ttfb"}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Metrics is the timing and connection summary of one round-trip.
type Metrics struct {
	DNSLookup      time.Duration `json:"dns_lookup"`
	TCPConnect     time.Duration `json:"tcp_connect"`
	ProxyHandshake time.Duration `json:"proxy_handshake"`
	TLSHandshake   time.Duration `json:"tls_handshake"`
	TTFB           time.Duration `json:"ttfb"`
	TotalTime      time.Duration `json:"total_time"`

	RemoteAddr  string `json:"remote_addr,omitempty"`
	TLSVersion  string `json:"tls_version,omitempty"`
	CipherSuite string `json:"cipher_suite,omitempty"`
	Tunneled    bool   `json:"tunneled,omitempty"`
}

// ConnectionTime is DNS, TCP, proxy and TLS setup combined.
func (m Metrics) ConnectionTime() time.Duration {
	return m.DNSLookup + m.TCPConnect + m.ProxyHandshake + m.TLSHandshake
}

func (m Metrics) String() string {
	parts := []string{
		"dns=" + m.DNSLookup.String(),
		"connect=" + m.TCPConnect.String(),
	}
	if m.ProxyHandshake > 0 {
		parts = append(parts, "proxy="+m.ProxyHandshake.String())
	}
	if m.TLSHandshake > 0 {
		parts = append(parts, "tls="+m.TLSHandshake.String())
	}
	parts = append(parts, "ttfb="+m.TTFB.String(), "total="+m.TotalTime.String())
	return strings.Join(parts, " ")
}

// Timer measures the phases of a single round-trip. A nil *Timer ignores all
// calls so callers need not check.
type Timer struct {
	start time.Time
	begin [numPhases]time.Time
	spent [numPhases]time.Duration
	info  Metrics
	now   func() time.Time
}

// NewTimer starts a measurement.
func NewTimer() *Timer {
	return newTimer(time.Now)
}

func newTimer(now func() time.Time) *Timer {
	return &Timer{start: now(), now: now}
}

// Start marks the beginning of p.
func (t *Timer) Start(p Phase) {
	if t == nil {
		return
	}
	t.begin[p] = t.now()
}

// End closes p. Repeated Start/End pairs accumulate.
func (t *Timer) End(p Phase) {
	if t == nil || t.begin[p].IsZero() {
		return
	}
	t.spent[p] += t.now().Sub(t.begin[p])
	t.begin[p] = time.Time{}
}

// SetRemote records the peer address.
func (t *Timer) SetRemote(addr string) {
	if t != nil {
		t.info.RemoteAddr = addr
	}
}

// SetTLS records the negotiated TLS parameters.
func (t *Timer) SetTLS(version, cipher string) {
	if t != nil {
		t.info.TLSVersion = version
		t.info.CipherSuite = cipher
	}
}

// SetTunneled records that the connection went through a CONNECT tunnel.
func (t *Timer) SetTunneled() {
	if t != nil {
		t.info.Tunneled = true
	}
}

// Metrics returns the measurements so far.
func (t *Timer) Metrics() Metrics {
	if t == nil {
		return Metrics{}
	}
	m := t.info
	m.DNSLookup = t.spent[DNS]
	m.TCPConnect = t.spent[Connect]
	m.ProxyHandshake = t.spent[Proxy]
	m.TLSHandshake = t.spent[TLS]
	m.TTFB = t.spent[TTFB]
	m.TotalTime = t.now().Sub(t.start)
	return m
}
