package proxy

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"

	"github.com/WhileEndless/go-rawclient/pkg/constants"
)

// ErrPoolEmpty is returned by a pool that has no proxies at all.
var ErrPoolEmpty = stderrors.New("proxy pool is empty")

var errNoneAvailable = stderrors.New("no proxy available")

// Pool hands out proxies to logical users.
type Pool interface {
	// Next blocks until a proxy is available for user or ctx ends.
	Next(ctx context.Context, user string, ignoreUserUniqueness, ignoreCooldowns bool) (*Proxy, error)
	// Release returns a proxy taken by user.
	Release(p *Proxy, user string)
}

// StaticPool serves a fixed proxy list, polling while every proxy is taken
// or cooling down.
type StaticPool struct {
	mu       sync.RWMutex
	proxies  []*Proxy
	registry *Registry
	maxUsers int
	poll     time.Duration
	log      logr.Logger
}

// PoolOption configures a StaticPool.
type PoolOption func(*StaticPool)

// WithRegistry shares usage state with other pools or sessions.
func WithRegistry(r *Registry) PoolOption {
	return func(p *StaticPool) { p.registry = r }
}

// WithMaxUsers caps concurrent users per proxy.
func WithMaxUsers(n int) PoolOption {
	return func(p *StaticPool) { p.maxUsers = n }
}

// WithPollInterval changes how often an exhausted pool is re-checked.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *StaticPool) { p.poll = d }
}

// WithLogger sets the pool logger.
func WithLogger(l logr.Logger) PoolOption {
	return func(p *StaticPool) { p.log = l }
}

// NewStaticPool creates a pool over proxies.
func NewStaticPool(proxies []*Proxy, opts ...PoolOption) *StaticPool {
	p := &StaticPool{
		proxies: append([]*Proxy(nil), proxies...),
		poll:    constants.ProxyPollInterval,
		log:     logr.Discard(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.registry == nil {
		p.registry = NewRegistry()
	}
	return p
}

// Registry exposes the usage registry.
func (p *StaticPool) Registry() *Registry { return p.registry }

// Add appends proxies to the pool.
func (p *StaticPool) Add(proxies ...*Proxy) {
	p.mu.Lock()
	p.proxies = append(p.proxies, proxies...)
	p.mu.Unlock()
}

// Len is the number of proxies in the pool.
func (p *StaticPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.proxies)
}

func (p *StaticPool) Next(ctx context.Context, user string, ignoreUserUniqueness, ignoreCooldowns bool) (*Proxy, error) {
	if p.Len() == 0 {
		return nil, ErrPoolEmpty
	}
	policy := LeasePolicy{
		Shared:         ignoreUserUniqueness,
		IgnoreCooldown: ignoreCooldowns,
		MaxUsers:       p.maxUsers,
	}

	waited := false
	op := func() (*Proxy, error) {
		if px := p.tryNext(user, policy); px != nil {
			return px, nil
		}
		if !waited {
			p.log.Info("no proxy available, waiting", "user", user, "interval", p.poll)
			waited = true
		}
		return nil, errNoneAvailable
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.poll)),
		backoff.WithMaxElapsedTime(0),
	)
}

func (p *StaticPool) tryNext(user string, policy LeasePolicy) *Proxy {
	p.mu.RLock()
	candidates := append([]*Proxy(nil), p.proxies...)
	p.mu.RUnlock()

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	for _, px := range candidates {
		if p.registry.TryLease(px, user, policy) {
			return px
		}
	}
	return nil
}

func (p *StaticPool) Release(px *Proxy, user string) {
	if px == nil {
		return
	}
	p.registry.SetInUse(px, user, false)
}
