// Package headers provides an insertion-ordered HTTP header set.
//
// Keys are stored exactly as given so outgoing requests keep the casing and
// order a browser would send. Reads of response headers go through Lookup,
// which ignores case.
package headers

import (
	"io"
	"strings"
)

// Entry is a single header line.
type Entry struct {
	Key   string
	Value string
	// Unset marks a removal request when the set is overlaid on another one.
	Unset bool
}

// Headers is an ordered, case-sensitive key/value set. The zero value is
// ready to use.
type Headers struct {
	entries []Entry
}

// New returns an empty header set.
func New() *Headers {
	return &Headers{}
}

// FromPairs builds a header set from alternating key/value strings.
func FromPairs(kv ...string) *Headers {
	h := New()
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func (h *Headers) index(key string) int {
	for i, e := range h.entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

// Set stores value under key. An existing key keeps its position.
func (h *Headers) Set(key, value string) {
	if i := h.index(key); i >= 0 {
		h.entries[i] = Entry{Key: key, Value: value}
		return
	}
	h.entries = append(h.entries, Entry{Key: key, Value: value})
}

// Unset records that key must be removed when this set is overlaid.
func (h *Headers) Unset(key string) {
	if i := h.index(key); i >= 0 {
		h.entries[i] = Entry{Key: key, Unset: true}
		return
	}
	h.entries = append(h.entries, Entry{Key: key, Unset: true})
}

// Remove deletes key. It reports whether the key was present.
func (h *Headers) Remove(key string) bool {
	i := h.index(key)
	if i < 0 {
		return false
	}
	h.entries = append(h.entries[:i], h.entries[i+1:]...)
	return true
}

// Get returns the value stored under the exact key.
func (h *Headers) Get(key string) string {
	if i := h.index(key); i >= 0 && !h.entries[i].Unset {
		return h.entries[i].Value
	}
	return ""
}

// Lookup finds key ignoring case.
func (h *Headers) Lookup(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	for _, e := range h.entries {
		if !e.Unset && strings.EqualFold(e.Key, key) {
			return e.Value, true
		}
	}
	return "", false
}

// Value is Lookup without the presence flag.
func (h *Headers) Value(key string) string {
	v, _ := h.Lookup(key)
	return v
}

// Has reports whether key is present, ignoring case.
func (h *Headers) Has(key string) bool {
	_, ok := h.Lookup(key)
	return ok
}

// Len returns the number of entries, removal markers included.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Entries returns a copy of the entries in insertion order.
func (h *Headers) Entries() []Entry {
	if h == nil {
		return nil
	}
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Keys returns the keys in insertion order.
func (h *Headers) Keys() []string {
	if h == nil {
		return nil
	}
	keys := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// Overlay applies other on top of h: removal markers delete, values replace
// or append.
func (h *Headers) Overlay(other *Headers) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		if e.Unset {
			h.Remove(e.Key)
			continue
		}
		h.Set(e.Key, e.Value)
	}
}

// Clone returns a deep copy.
func (h *Headers) Clone() *Headers {
	if h == nil {
		return New()
	}
	return &Headers{entries: h.Entries()}
}

// WriteTo writes "Key: Value\r\n" for each entry. Removal markers are skipped.
func (h *Headers) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, e := range h.entries {
		if e.Unset {
			continue
		}
		n, err := io.WriteString(w, e.Key+": "+e.Value+"\r\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// String renders the header block without the terminating blank line.
func (h *Headers) String() string {
	var sb strings.Builder
	h.WriteTo(&sb)
	return sb.String()
}
