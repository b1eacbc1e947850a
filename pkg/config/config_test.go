package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhileEndless/go-rawclient/pkg/browser"
	"github.com/WhileEndless/go-rawclient/pkg/constants"
	"github.com/WhileEndless/go-rawclient/pkg/proxy"
	"github.com/WhileEndless/go-rawclient/pkg/tlsconfig"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rawclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, constants.MaxRedirects, cfg.MaxRedirects)
	assert.EqualValues(t, constants.DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, constants.DefaultReadTimeout, cfg.ReadTimeout)
	assert.True(t, cfg.KeepAlive)
	assert.False(t, cfg.ReuseAddress)
	assert.Equal(t, browser.HTTP11, cfg.HTTPVersion)
	assert.Equal(t, browser.DefaultLanguage, cfg.Language)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
debug: true
max_attempts: 3
read_timeout: 5s
fingerprint: firefox
language: de-DE
reuse_address: true
proxies:
  - 10.0.0.1:8080
  - 10.0.0.2:8080:alice:secret:5
proxy_type: socks5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "firefox", cfg.Fingerprint)
	assert.True(t, cfg.ReuseAddress)
	assert.Len(t, cfg.Proxies, 2)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "max_attempts: 3\nlanguage: de-DE\n")
	t.Setenv("RAWCLIENT_MAX_ATTEMPTS", "9")
	t.Setenv("RAWCLIENT_READ_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "de-DE", cfg.Language)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero attempts", "max_attempts: 0\n"},
		{"negative redirects", "max_redirects: -1\n"},
		{"bad chunk size", "chunk_size: 0\n"},
		{"bad http version", "http_version: HTTP/2\n"},
		{"bad fingerprint", "fingerprint: netscape\n"},
		{"bad proxy type", "proxy_type: ftp\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit config file must exist")
}

func TestBrowser(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
user_agent: "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"
do_not_track: true
max_attempts: 2
connect_timeout: 3s
`))
	require.NoError(t, err)

	b, err := cfg.Browser()
	require.NoError(t, err)
	assert.Contains(t, b.UserAgent, "Firefox/120.0")
	assert.Equal(t, tlsconfig.Firefox, b.Fingerprint)
	assert.True(t, b.DoNotTrack)
	assert.Equal(t, 2, b.Attempts())
	assert.Equal(t, 3*time.Second, b.ConnTimeout)

	cfg.Fingerprint = "safari"
	b, err = cfg.Browser()
	require.NoError(t, err)
	assert.Equal(t, tlsconfig.Safari, b.Fingerprint, "an explicit fingerprint wins over the user agent")
}

func TestTransportConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, "legacy_tls: true\nlinger_zero: true\nkeep_alive: false\n"))
	require.NoError(t, err)

	tc := cfg.TransportConfig()
	assert.Equal(t, tlsconfig.ProfileCompatible, tc.TLSVersions)
	assert.True(t, tc.LingerZero)
	assert.False(t, tc.KeepAlive)
	assert.Equal(t, constants.SocketBufferSize, tc.BufferSize)
}

func TestClientOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
proxy: socks5://bob:pw@10.0.0.9:1081
disable_cookies: true
proxies:
  - "# comment"
  - 10.0.0.1:8080
  - 10.0.0.2:8080:alice:secret:5
proxy_max_users: 2
`))
	require.NoError(t, err)

	opts, err := cfg.ClientOptions(testr.New(t))
	require.NoError(t, err)
	require.NotNil(t, opts.Proxy)
	assert.Equal(t, proxy.SOCKS5, opts.Proxy.Type)
	assert.True(t, opts.DisableCookies)
	assert.Equal(t, "default", opts.User)

	pool, err := cfg.Pool(testr.New(t))
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Len())
}

func TestClientOptionsBadProxy(t *testing.T) {
	cfg, err := Load(writeConfig(t, "proxy: 10.0.0.1\n"))
	require.NoError(t, err)
	_, err = cfg.ClientOptions(testr.New(t))
	assert.Error(t, err)

	cfg.Proxy = ""
	cfg.Proxies = []string{"host"}
	_, err = cfg.ClientOptions(testr.New(t))
	assert.Error(t, err)
}
