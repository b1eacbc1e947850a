// Package browser describes the browser a client session impersonates.
package browser

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/WhileEndless/go-rawclient/pkg/constants"
	"github.com/WhileEndless/go-rawclient/pkg/tlsconfig"
)

// DefaultLanguage is sent as Accept-Language when none is configured.
const DefaultLanguage = "en-US,en;q=0.9"

// HTTP versions written on the request line.
const (
	HTTP10 = "HTTP/1.0"
	HTTP11 = "HTTP/1.1"
)

// Browser is the read-only profile consulted while building and sending
// requests. Copy it with Clone before changing fields on a shared value.
type Browser struct {
	UserAgent   string
	Language    string
	HTTPVersion string
	Fingerprint tlsconfig.Fingerprint

	ConnTimeout time.Duration
	ReadTimeout time.Duration
	MaxAttempts int

	DoNotTrack bool
	Mobile     bool
}

// New returns a profile with a random user agent of the requested kind and
// a TLS fingerprint matching its engine.
func New(mobile bool) *Browser {
	pool := desktopAgents
	if mobile {
		pool = mobileAgents
	}
	ua := pool[rand.IntN(len(pool))]
	return &Browser{
		UserAgent:   ua,
		Language:    DefaultLanguage,
		HTTPVersion: HTTP11,
		Fingerprint: FingerprintFor(ua),
		ConnTimeout: constants.DefaultConnTimeout,
		ReadTimeout: constants.DefaultReadTimeout,
		MaxAttempts: constants.DefaultMaxAttempts,
		Mobile:      mobile,
	}
}

// Clone returns a copy.
func (b *Browser) Clone() *Browser {
	c := *b
	return &c
}

// Attempts is MaxAttempts with the default applied.
func (b *Browser) Attempts() int {
	if b.MaxAttempts <= 0 {
		return constants.DefaultMaxAttempts
	}
	return b.MaxAttempts
}

// Version is HTTPVersion with the default applied.
func (b *Browser) Version() string {
	if b.HTTPVersion == "" {
		return HTTP11
	}
	return b.HTTPVersion
}

// FingerprintFor picks the ClientHello matching a user agent's engine.
func FingerprintFor(ua string) tlsconfig.Fingerprint {
	switch {
	case strings.Contains(ua, "Firefox/"):
		return tlsconfig.Firefox
	case strings.Contains(ua, "Chrome/"), strings.Contains(ua, "CriOS/"):
		return tlsconfig.Chrome
	case strings.Contains(ua, "Safari/"):
		return tlsconfig.Safari
	default:
		return tlsconfig.Chrome
	}
}
