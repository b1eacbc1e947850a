package transport

import (
	"context"
	"net"

	utls "github.com/bogdanfinn/utls"

	"github.com/WhileEndless/go-rawclient/pkg/timing"
	"github.com/WhileEndless/go-rawclient/pkg/tlsconfig"
)

// handshake wraps raw in a uTLS client that presents the ClientHello of the
// target browser. The socket is in client mode with SNI set to the host name
// even when it was dialled by address.
func (c *Connector) handshake(ctx context.Context, raw net.Conn, t Target) (net.Conn, error) {
	t.Timer.Start(timing.TLS)
	defer t.Timer.End(timing.TLS)

	fp := t.Browser.Fingerprint
	if fp == "" {
		fp = tlsconfig.Chrome
	}
	cfg := tlsconfig.New(tlsconfig.Options{
		ServerName: t.Host,
		Insecure:   c.cfg.InsecureTLS,
		Versions:   c.cfg.TLSVersions,
	})
	uc := utls.UClient(raw, cfg, tlsconfig.ClientHello(fp), false, true)

	stop := closeOnCancel(ctx, raw)
	defer stop()

	raw.SetDeadline(handshakeDeadline(t.Browser))
	if err := uc.Handshake(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	raw.SetDeadline(noDeadline)

	state := uc.ConnectionState()
	t.Timer.SetTLS(tlsconfig.VersionName(state.Version), tlsconfig.CipherSuiteName(state.CipherSuite))
	c.log.V(2).Info("tls established", "host", t.Host, "version", tlsconfig.VersionName(state.Version))
	return uc, nil
}
