// Package decoder reads a raw HTTP/1.x response head off a byte stream.
package decoder

import (
	"bytes"
	stderrors "errors"
	"io"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawclient/pkg/constants"
	"github.com/WhileEndless/go-rawclient/pkg/cookies"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
	"github.com/WhileEndless/go-rawclient/pkg/headers"
	"github.com/WhileEndless/go-rawclient/pkg/status"
)

// ErrIncomplete is returned when the stream ends before the blank line that
// terminates the header block.
var ErrIncomplete = stderrors.New("response head ended before blank line")

// Result is the decoded response head.
type Result struct {
	Status  status.Status
	Headers *headers.Headers
	Cookies []cookies.Cookie
	// Skipped lists header lines and cookie attributes that were not
	// understood.
	Skipped []string
}

// Decoder reads a response head byte by byte so nothing past the blank line
// is consumed from the underlying stream.
type Decoder struct {
	// MaxBytes caps the size of the head. Zero means constants.MaxHeaderBytes.
	MaxBytes int
	// Raw, when set, receives a copy of every byte read.
	Raw io.Writer
}

// Decode is a convenience wrapper around a zero Decoder.
func Decode(r io.ByteReader) (*Result, error) {
	var d Decoder
	return d.Decode(r)
}

// Decode parses the status line, headers and Set-Cookie lines. Interim 1xx
// heads other than 101 are discarded and decoding continues with the final
// head.
func (d *Decoder) Decode(r io.ByteReader) (*Result, error) {
	for {
		res, err := d.decodeHead(r)
		if err != nil {
			return nil, err
		}
		if res.Status.IsInformational() && res.Status.Code != 101 {
			continue
		}
		return res, nil
	}
}

func (d *Decoder) decodeHead(r io.ByteReader) (*Result, error) {
	limit := d.MaxBytes
	if limit <= 0 {
		limit = constants.MaxHeaderBytes
	}

	res := &Result{Headers: headers.New()}
	var (
		line      bytes.Buffer
		total     int
		gotStatus bool
		lastKey   string
	)

	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, errors.NewProtocolError("decoding response head", ErrIncomplete)
			}
			return nil, errors.NewIOError("reading response head", err)
		}
		if d.Raw != nil {
			d.Raw.Write([]byte{b})
		}
		total++
		if total > limit {
			return nil, errors.NewProtocolError("response head exceeds maximum size", nil)
		}
		if b != '\n' {
			line.WriteByte(b)
			continue
		}

		raw := strings.TrimRight(line.String(), "\r")
		line.Reset()

		if strings.TrimSpace(raw) == "" {
			if !gotStatus {
				// Stray CRLF ahead of the status line.
				if res.Headers.Len() == 0 && len(res.Cookies) == 0 {
					continue
				}
				return nil, errors.NewProtocolError("response head has no status line", nil)
			}
			return res, nil
		}

		if (raw[0] == ' ' || raw[0] == '\t') && lastKey != "" {
			res.Headers.Set(lastKey, res.Headers.Get(lastKey)+" "+strings.TrimSpace(raw))
			continue
		}

		s := strings.TrimSpace(raw)
		if strings.HasPrefix(s, "HTTP") {
			st, err := parseStatusLine(s)
			if err != nil {
				return nil, err
			}
			res.Status = st
			gotStatus = true
			continue
		}

		key, value, ok := strings.Cut(s, ":")
		if !ok {
			res.Skipped = append(res.Skipped, s)
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if strings.EqualFold(key, "Set-Cookie") {
			c, ignored, err := cookies.Parse(value)
			if err != nil {
				res.Skipped = append(res.Skipped, s)
				continue
			}
			res.Cookies = append(res.Cookies, c)
			res.Skipped = append(res.Skipped, ignored...)
			lastKey = ""
			continue
		}
		res.Headers.Set(key, value)
		lastKey = key
	}
}

func parseStatusLine(line string) (status.Status, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return status.Status{}, errors.NewProtocolError("invalid status line format: "+line, nil)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return status.Status{}, errors.NewProtocolError("invalid status code", err)
	}
	return status.New(fields[0], code, strings.Join(fields[2:], " ")), nil
}
