// Package cookies holds response cookies for a client session.
package cookies

import (
	"fmt"
	"strconv"
	"strings"
)

// Cookie is one Set-Cookie entry.
type Cookie struct {
	Name     string
	Value    string
	Expires  string
	Path     string
	Domain   string
	SameSite string
	Secure   bool
	HTTPOnly bool
	MaxAge   int64
}

func (c Cookie) String() string {
	return c.Name + "=" + c.Value
}

// Parse decodes a Set-Cookie header value. Unknown attributes are returned in
// ignored so callers can log them.
func Parse(value string) (c Cookie, ignored []string, err error) {
	fields := strings.Split(value, ";")
	first := fields[0]
	eq := strings.IndexByte(first, '=')
	if eq < 0 {
		return Cookie{}, nil, fmt.Errorf("malformed cookie %q: missing '='", value)
	}
	c.Name = strings.TrimSpace(first[:eq])
	c.Value = strings.TrimSpace(first[eq+1:])
	c.Path = "/"
	if c.Name == "" {
		return Cookie{}, nil, fmt.Errorf("malformed cookie %q: empty name", value)
	}

	for _, raw := range fields[1:] {
		field := strings.TrimSpace(raw)
		if field == "" {
			continue
		}
		if strings.EqualFold(field, "secure") {
			c.Secure = true
			continue
		}
		if strings.EqualFold(field, "httponly") {
			c.HTTPOnly = true
			continue
		}
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			ignored = append(ignored, field)
			continue
		}
		key = strings.TrimSpace(key)
		switch {
		case strings.EqualFold(key, "expires"):
			c.Expires = val
		case strings.EqualFold(key, "domain"):
			c.Domain = val
		case strings.EqualFold(key, "path"):
			c.Path = val
		case strings.EqualFold(key, "max-age"):
			n, perr := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if perr == nil {
				c.MaxAge = n
			}
		case strings.EqualFold(key, "samesite"):
			c.SameSite = val
		default:
			ignored = append(ignored, field)
		}
	}
	return c, ignored, nil
}
