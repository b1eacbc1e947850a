// Package security runs pluggable anti-bot challenge detectors against
// responses and lets them try to get past the challenge.
package security

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/WhileEndless/go-rawclient/pkg/request"
	"github.com/WhileEndless/go-rawclient/pkg/response"
)

// Dispatcher sends follow-up requests during a bypass.
type Dispatcher interface {
	Do(ctx context.Context, req *request.Request) *response.Response
}

// ConnectionSecurity detects one kind of challenge and tries to clear it.
type ConnectionSecurity interface {
	Name() string
	// Encountered reports whether res is this challenge.
	Encountered(ctx context.Context, d Dispatcher, req *request.Request, res *response.Response) (bool, error)
	// Bypass clears the challenge and returns the response obtained after
	// it, or nil when the challenge could not be cleared.
	Bypass(ctx context.Context, d Dispatcher, req *request.Request, res *response.Response) (*response.Response, error)
}

type registration struct {
	domain string
	sec    ConnectionSecurity
}

// Handler is an ordered set of detectors, each scoped to a domain. It is
// safe for concurrent use.
type Handler struct {
	mu      sync.RWMutex
	entries []registration
	log     logr.Logger
}

// NewHandler returns an empty handler.
func NewHandler(log logr.Logger) *Handler {
	return &Handler{log: log}
}

// Register adds s for domain and its subdomains. An empty domain applies s
// to every host.
func (h *Handler) Register(domain string, s ConnectionSecurity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, registration{domain: strings.ToLower(domain), sec: s})
}

// Len is the number of registrations.
func (h *Handler) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// For returns the detectors that apply to host, in registration order.
func (h *Handler) For(host string) []ConnectionSecurity {
	if h == nil {
		return nil
	}
	host = strings.ToLower(host)
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []ConnectionSecurity
	for _, e := range h.entries {
		if e.domain == "" || host == e.domain || strings.HasSuffix(host, "."+e.domain) {
			out = append(out, e.sec)
		}
	}
	return out
}

type bypassKey struct{}

// InBypass reports whether ctx belongs to a request sent by a detector
// while clearing a challenge.
func InBypass(ctx context.Context) bool {
	return ctx.Value(bypassKey{}) != nil
}

// Bypass runs every applicable detector against res. It returns false when a
// challenge was found and could not be cleared. When a detector cleared a
// challenge, the response it obtained is returned in place of res.
//
// Requests sent by detectors are not checked again.
func (h *Handler) Bypass(ctx context.Context, d Dispatcher, req *request.Request, res *response.Response) (bool, *response.Response) {
	if InBypass(ctx) {
		return true, res
	}
	ctx = context.WithValue(ctx, bypassKey{}, true)

	for _, s := range h.For(req.Host()) {
		log := h.log.WithValues("security", s.Name(), "url", req.URL)

		found, err := call(func() (bool, error) { return s.Encountered(ctx, d, req, res) })
		if err != nil {
			log.Error(err, "challenge detection failed")
			return false, res
		}
		if !found {
			continue
		}
		log.Info("connection security encountered")

		var cleared *response.Response
		_, err = call(func() (bool, error) {
			var err error
			cleared, err = s.Bypass(ctx, d, req, res)
			return cleared != nil, err
		})
		if err != nil || cleared == nil {
			log.Info("failed to bypass connection security", "error", errString(err))
			return false, res
		}

		still, err := call(func() (bool, error) { return s.Encountered(ctx, d, req, cleared) })
		if err != nil || still {
			log.Info("connection security still encountered after bypassing", "error", errString(err))
			return false, res
		}
		log.Info("bypassed connection security", "status", cleared.Code())
		res = cleared
	}
	return true, res
}

// call runs fn and turns a panic into an error.
func call(fn func() (bool, error)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
