package proxy

import (
	"sync"
	"time"
)

type use struct {
	user   string
	leased time.Time
	active bool
}

// Registry tracks which users hold which proxies. Sessions running in
// parallel share one Registry; it is safe for concurrent use.
type Registry struct {
	mu   sync.Mutex
	uses map[string][]*use
	now  func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{uses: make(map[string][]*use), now: time.Now}
}

func (r *Registry) find(p *Proxy, user string) *use {
	for _, u := range r.uses[p.ID] {
		if u.user == user {
			return u
		}
	}
	return nil
}

// SetInUse marks user as holding p, or as having released it. Taking a
// proxy restarts its cooldown.
func (r *Registry) SetInUse(p *Proxy, user string, inUse bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.find(p, user)
	switch {
	case u == nil && inUse:
		r.uses[p.ID] = append(r.uses[p.ID], &use{user: user, leased: r.now(), active: true})
	case u == nil:
	case inUse:
		u.leased = r.now()
		u.active = true
	default:
		u.active = false
	}
}

// Forget drops every record of user on p, cooldown included.
func (r *Registry) Forget(p *Proxy, user string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.uses[p.ID]
	for i, u := range list {
		if u.user == user {
			r.uses[p.ID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.uses[p.ID]) == 0 {
		delete(r.uses, p.ID)
	}
}

// Available reports whether user may take p: they never held it, or they
// are not holding it and leased it longer than p.Cooldown ago. The cooldown
// runs from the lease, not the release.
func (r *Registry) Available(p *Proxy, user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.find(p, user)
	if u == nil {
		return true
	}
	return !u.active && r.now().Sub(u.leased) > p.Cooldown
}

// Cooldown is the time left before user may take p again.
func (r *Registry) Cooldown(p *Proxy, user string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.find(p, user)
	if u == nil {
		return 0
	}
	left := p.Cooldown - r.now().Sub(u.leased)
	if left < 0 {
		return 0
	}
	return left
}

// ActiveUsers counts users currently holding p.
func (r *Registry) ActiveUsers(p *Proxy) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked(p, "")
}

// activeLocked counts active holders other than except.
func (r *Registry) activeLocked(p *Proxy, except string) int {
	n := 0
	for _, u := range r.uses[p.ID] {
		if u.active && u.user != except {
			n++
		}
	}
	return n
}

// LeasePolicy decides whether a proxy may be handed to a user.
type LeasePolicy struct {
	// Shared allows other users to hold the proxy at the same time.
	Shared bool
	// IgnoreCooldown hands out rotating proxies still cooling down.
	IgnoreCooldown bool
	// MaxUsers caps concurrent holders other than the caller. Zero is no cap.
	MaxUsers int
}

// TryLease checks policy and marks user as holding p in one step.
func (r *Registry) TryLease(p *Proxy, user string, policy LeasePolicy) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.find(p, user)
	if p.Rotating() && !policy.IgnoreCooldown && u != nil {
		if u.active || r.now().Sub(u.leased) <= p.Cooldown {
			return false
		}
	}
	others := r.activeLocked(p, user)
	if !policy.Shared && others > 0 {
		return false
	}
	if policy.MaxUsers > 0 && others >= policy.MaxUsers {
		return false
	}

	if u == nil {
		r.uses[p.ID] = append(r.uses[p.ID], &use{user: user, leased: r.now(), active: true})
		return true
	}
	u.leased = r.now()
	u.active = true
	return true
}
