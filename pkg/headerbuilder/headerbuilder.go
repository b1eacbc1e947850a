// Package headerbuilder composes the header block a browser would send for
// a request.
package headerbuilder

import (
	"golang.org/x/net/publicsuffix"

	"github.com/WhileEndless/go-rawclient/pkg/browser"
	"github.com/WhileEndless/go-rawclient/pkg/cookies"
	"github.com/WhileEndless/go-rawclient/pkg/headers"
	"github.com/WhileEndless/go-rawclient/pkg/request"
)

// Default builds the base header set.
type Default struct {
	Browser *browser.Browser
	// Jar supplies the Cookie header. Nil disables cookies.
	Jar *cookies.Jar
	// Referer is the last plain GET URL, sent as Referer when set.
	Referer string
	// Redirected is set while following a redirect chain.
	Redirected bool
}

// Build writes the headers for req into h in browser order. The body, if
// any, sets Content-Type and Content-Length last.
func (d Default) Build(req *request.Request, h *headers.Headers) error {
	b := d.Browser
	h.Set("Host", req.Authority())
	h.Set("Connection", "keep-alive")
	if (req.Method == request.POST && !req.XHR) || d.Redirected || req.CacheControl != "" {
		cc := req.CacheControl
		if cc == "" {
			cc = "max-age=0"
		}
		h.Set("Cache-Control", cc)
	}
	if !req.XHR {
		h.Set("Upgrade-Insecure-Requests", "1")
	}
	h.Set("Accept", req.Accept.Accept())
	if req.XHR {
		h.Set("X-Requested-With", "XMLHttpRequest")
	}
	if req.XHR || req.HasBody() {
		h.Set("Origin", req.BaseURL())
	}
	h.Set("User-Agent", b.UserAgent)
	if b.DoNotTrack {
		h.Set("DNT", "1")
	}
	if d.Referer != "" {
		h.Set("Referer", d.Referer)
	}
	h.Set("Accept-Encoding", "gzip, deflate, br")
	lang := b.Language
	if lang == "" {
		lang = browser.DefaultLanguage
	}
	h.Set("Accept-Language", lang)
	if req.Method == request.OPTIONS {
		h.Set("Access-Control-Request-Method", req.PreflightMethod.String())
		h.Set("Origin", req.BaseURL())
	}
	if req.Method != request.OPTIONS && d.Jar != nil && d.Jar.Len() > 0 {
		h.Set("Cookie", d.Jar.Header())
	}
	if req.HasBody() {
		return req.Body.Prepare(h)
	}
	return nil
}

// Sec-Fetch-Site values.
const (
	SiteNone       = "none"
	SiteSameOrigin = "same-origin"
	SiteSameSite   = "same-site"
	SiteCrossSite  = "cross-site"
)

// SecFetch adds fetch metadata headers. Only requests sent over TLS carry
// them.
type SecFetch struct {
	// LastHost is the host of the previous response, "" if none.
	LastHost string
	// Visited reports whether a host has answered before.
	Visited func(host string) bool
	// Chain is the redirect chain followed so far, oldest first.
	Chain []*request.Request
}

// Build adds Sec-Fetch-Mode, Sec-Fetch-Site and, for navigations,
// Sec-Fetch-User.
func (s SecFetch) Build(req *request.Request, h *headers.Headers) {
	h.Set("Sec-Fetch-Mode", req.SecFetchMode())
	h.Set("Sec-Fetch-Site", s.Site(req))
	if !req.XHR {
		h.Set("Sec-Fetch-User", "?1")
	}
}

// Site classifies req relative to the previous host and the redirect chain.
func (s SecFetch) Site(req *request.Request) string {
	host := req.Host()
	visited := s.Visited != nil && s.Visited(host)
	if !visited || (req.Method == request.GET && req.NoReferrer) {
		return SiteNone
	}

	sameOrigin := isSameOrigin(host, s.LastHost)
	sameSite := !sameOrigin && isSameSite(host, s.LastHost)
	crossSite := !sameOrigin && !sameSite

	if !crossSite && len(s.Chain) > 1 && s.LastHost != "" {
		initial := s.Chain[0].Host()
		for _, prev := range s.Chain[1:] {
			h := prev.Host()
			if isSameOrigin(initial, h) {
				continue
			}
			if isSameSite(initial, h) {
				sameSite = true
				continue
			}
			crossSite = true
			break
		}
	}

	switch {
	case crossSite:
		return SiteCrossSite
	case sameSite:
		return SiteSameSite
	default:
		return SiteSameOrigin
	}
}

func isSameOrigin(host, other string) bool {
	return other == "" || host == other
}

// isSameSite reports whether two different hosts share a registrable
// domain (eTLD+1).
func isSameSite(host, other string) bool {
	if other == "" || host == other {
		return false
	}
	a, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	b, err := publicsuffix.EffectiveTLDPlusOne(other)
	if err != nil {
		return false
	}
	return a == b
}
