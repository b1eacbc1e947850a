// Package tlsconfig selects the TLS ClientHello a connection presents and
// builds the matching uTLS configuration.
package tlsconfig

import (
	"crypto/tls"
	"fmt"
	"strings"

	utls "github.com/bogdanfinn/utls"
)

// Fingerprint names a browser ClientHello.
type Fingerprint string

const (
	Chrome     Fingerprint = "chrome"
	Chrome112  Fingerprint = "chrome_112"
	Firefox    Fingerprint = "firefox"
	Firefox105 Fingerprint = "firefox_105"
	Safari     Fingerprint = "safari"
	Golang     Fingerprint = "golang"
)

var helloIDs = map[Fingerprint]utls.ClientHelloID{
	Chrome:     utls.HelloChrome_120,
	Chrome112:  utls.HelloChrome_112,
	Firefox:    utls.HelloFirefox_120,
	Firefox105: utls.HelloFirefox_105,
	Safari:     utls.HelloSafari_16_0,
	Golang:     utls.HelloGolang,
}

// Fingerprints lists the supported names.
func Fingerprints() []Fingerprint {
	return []Fingerprint{Chrome, Chrome112, Firefox, Firefox105, Safari, Golang}
}

// ParseFingerprint resolves a configured name. The empty string is Chrome.
func ParseFingerprint(name string) (Fingerprint, error) {
	fp := Fingerprint(strings.ToLower(strings.TrimSpace(name)))
	if fp == "" {
		return Chrome, nil
	}
	if _, ok := helloIDs[fp]; !ok {
		return "", fmt.Errorf("unknown TLS fingerprint %q", name)
	}
	return fp, nil
}

// ClientHello returns the uTLS hello for fp, falling back to Chrome.
func ClientHello(fp Fingerprint) utls.ClientHelloID {
	if id, ok := helloIDs[fp]; ok {
		return id
	}
	return utls.HelloChrome_120
}

// VersionProfile bounds the negotiated protocol version.
type VersionProfile struct {
	Min uint16
	Max uint16
}

var (
	// ProfileSecure allows TLS 1.2 and 1.3.
	ProfileSecure = VersionProfile{Min: tls.VersionTLS12, Max: tls.VersionTLS13}
	// ProfileCompatible also allows the deprecated 1.0 and 1.1.
	ProfileCompatible = VersionProfile{Min: tls.VersionTLS10, Max: tls.VersionTLS13}
)

// Options configure New.
type Options struct {
	ServerName string
	Insecure   bool
	Versions   VersionProfile
}

// New builds the uTLS configuration for one handshake.
func New(opts Options) *utls.Config {
	v := opts.Versions
	if v.Min == 0 {
		v = ProfileSecure
	}
	return &utls.Config{
		ServerName:         opts.ServerName,
		InsecureSkipVerify: opts.Insecure,
		MinVersion:         v.Min,
		MaxVersion:         v.Max,
	}
}

// VersionName returns a readable name for a protocol version.
func VersionName(version uint16) string {
	switch version {
	case tls.VersionSSL30:
		return "SSL 3.0"
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "Unknown"
	}
}

// CipherSuiteName returns the IANA name of a cipher suite.
func CipherSuiteName(id uint16) string {
	return tls.CipherSuiteName(id)
}
