package cookies

import (
	"strings"
	"sync"
)

// Jar is an ordered cookie list de-duplicated by name. It is safe for
// concurrent use.
type Jar struct {
	mu      sync.RWMutex
	cookies []Cookie
}

// NewJar returns an empty jar.
func NewJar() *Jar {
	return &Jar{}
}

// ReplaceOrAdd stores c, replacing any cookie with the same name
// (compared case-insensitively) in place.
func (j *Jar) ReplaceOrAdd(c Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.replaceOrAdd(c)
}

func (j *Jar) replaceOrAdd(c Cookie) {
	for i := range j.cookies {
		if strings.EqualFold(j.cookies[i].Name, c.Name) {
			j.cookies[i] = c
			return
		}
	}
	j.cookies = append(j.cookies, c)
}

// Import merges cookies in order; later entries win.
func (j *Jar) Import(cs []Cookie) {
	if len(cs) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cs {
		j.replaceOrAdd(c)
	}
}

// Get returns the cookie with the given name.
func (j *Jar) Get(name string) (Cookie, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, c := range j.cookies {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Cookie{}, false
}

// Remove deletes the cookie with the given name.
func (j *Jar) Remove(name string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, c := range j.cookies {
		if strings.EqualFold(c.Name, name) {
			j.cookies = append(j.cookies[:i], j.cookies[i+1:]...)
			return true
		}
	}
	return false
}

// All returns a snapshot of the jar in insertion order.
func (j *Jar) All() []Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Cookie, len(j.cookies))
	copy(out, j.cookies)
	return out
}

func (j *Jar) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.cookies)
}

func (j *Jar) Clear() {
	j.mu.Lock()
	j.cookies = nil
	j.mu.Unlock()
}

// Header serializes the jar as a Cookie request header value.
func (j *Jar) Header() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	parts := make([]string, 0, len(j.cookies))
	for _, c := range j.cookies {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, "; ")
}
