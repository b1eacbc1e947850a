package body

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"
)

// NewDecoder wraps r with the decompressor for a Content-Encoding value.
// Unknown and identity encodings pass through.
func NewDecoder(encoding string, r io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		// Stop at the end of the first member instead of waiting for
		// another header on a kept-alive socket.
		zr.Multistream(false)
		return zr, nil
	case "br":
		return io.NopCloser(brotli.NewReader(r)), nil
	case "deflate":
		br := bufio.NewReader(r)
		if hasZlibHeader(br) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, fmt.Errorf("zlib: %w", err)
			}
			return zr, nil
		}
		return flate.NewReader(br), nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

// Some servers send raw DEFLATE under "deflate"; a zlib stream starts with a
// CMF/FLG pair whose method is 8 and whose value is a multiple of 31.
func hasZlibHeader(br *bufio.Reader) bool {
	h, err := br.Peek(2)
	if err != nil {
		return false
	}
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}

// IsCompressed reports whether encoding changes the byte count on the wire.
func IsCompressed(encoding string) bool {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return false
	}
	return true
}

// Transcode returns raw as UTF-8 text, converting it from the charset named
// by contentType. Unknown or missing charsets leave raw unchanged.
func Transcode(contentType string, raw []byte) string {
	r := transcode(contentType, bytes.NewReader(raw))
	if r == nil {
		return string(raw)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// transcode returns a UTF-8 reader over r, or nil when no conversion is
// needed.
func transcode(contentType string, r io.Reader) io.Reader {
	if contentType == "" {
		return nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil
	}
	label := strings.ToLower(strings.TrimSpace(params["charset"]))
	if label == "" || label == "utf-8" || label == "utf8" {
		return nil
	}
	out, err := charset.NewReaderLabel(label, r)
	if err != nil {
		return nil
	}
	return out
}
