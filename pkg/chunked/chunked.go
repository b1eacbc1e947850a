// Package chunked decodes HTTP chunked transfer-encoding.
package chunked

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	// ErrEmpty is returned when a well-formed stream carried no data.
	ErrEmpty = stderrors.New("chunked body is empty")
	// ErrTruncated is returned when the stream ended before the zero chunk.
	ErrTruncated = stderrors.New("chunked body truncated")
)

// Decode reads chunks until the terminating zero-size chunk and returns the
// joined payload. A size line that is not valid hex is kept verbatim as
// payload. Trailer lines after the zero chunk are consumed and discarded.
func Decode(r io.Reader) ([]byte, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	var out bytes.Buffer
	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return out.Bytes(), ErrTruncated
			}
			return out.Bytes(), fmt.Errorf("reading chunk size: %w", err)
		}

		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}

		size, perr := parseSize(trimmed)
		if perr != nil {
			out.Write(line)
			continue
		}
		if size == 0 {
			break
		}

		if _, err := io.CopyN(&out, br, size); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return out.Bytes(), ErrTruncated
			}
			return out.Bytes(), fmt.Errorf("reading chunk data: %w", err)
		}
	}

	skipTrailers(br)

	if out.Len() == 0 {
		return nil, ErrEmpty
	}
	return out.Bytes(), nil
}

func parseSize(line string) (int64, error) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	return strconv.ParseInt(line, 16, 64)
}

// Trailers are optional and servers often close right after the zero chunk,
// so stop at EOF as well as at the blank line. Only data already buffered is
// inspected to avoid blocking on a kept-alive connection.
func skipTrailers(br *bufio.Reader) {
	for br.Buffered() > 0 {
		line, err := br.ReadString('\n')
		if err != nil || strings.TrimSpace(line) == "" {
			return
		}
	}
}

// Encode frames payload as a chunked body using chunks of at most size bytes.
func Encode(w io.Writer, payload []byte, size int) error {
	if size <= 0 {
		size = len(payload)
	}
	for len(payload) > 0 {
		n := size
		if n > len(payload) {
			n = len(payload)
		}
		if _, err := fmt.Fprintf(w, "%x\r\n", n); err != nil {
			return err
		}
		if _, err := w.Write(payload[:n]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
		payload = payload[n:]
	}
	_, err := io.WriteString(w, "0\r\n\r\n")
	return err
}
