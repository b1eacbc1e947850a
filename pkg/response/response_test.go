package response

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhileEndless/go-rawclient/pkg/body"
	"github.com/WhileEndless/go-rawclient/pkg/headers"
	"github.com/WhileEndless/go-rawclient/pkg/status"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		expect int
		want   bool
	}{
		{"match", 200, 200, true},
		{"created expected", 201, 201, true},
		{"client error", 404, 200, false},
		{"redirect", 302, 200, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("http://example.test/", tt.expect, status.New("HTTP/1.1", tt.code, ""), nil, nil)
			assert.Equal(t, tt.want, r.Validate())
			assert.True(t, r.ValidateCode(tt.code))
			assert.False(t, r.Synthetic())
		})
	}
}

func TestFailure(t *testing.T) {
	r := Failure("http://example.test/", 200, "Too many redirects", "Too many redirects through http://example.test/")
	assert.True(t, r.Synthetic())
	assert.False(t, r.Validate())
	assert.Equal(t, 0, r.Code())
	assert.Equal(t, "Too many redirects", r.Status.Reason)
	assert.Equal(t, "Too many redirects through http://example.test/", r.Content())
	assert.Empty(t, r.Location())
}

func TestLocationCaseInsensitive(t *testing.T) {
	h := headers.FromPairs("location", "https://example.test/next")
	r := New("http://example.test/", 200, status.New("HTTP/1.1", 302, ""), h, nil)
	assert.Equal(t, "https://example.test/next", r.Location())
}

func TestDocument(t *testing.T) {
	page := `<html><head><title>Sign in</title></head><body><form id="login"><input name="csrf" value="tok"></form></body></html>`
	r := New("http://example.test/", 200, status.New("HTTP/1.1", 200, ""), nil, body.Text{Content: page})

	doc, err := r.Document()
	require.NoError(t, err)
	assert.Equal(t, "Sign in", doc.Find("title").Text())
	v, ok := doc.Find(`#login input[name="csrf"]`).Attr("value")
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	again, err := r.Document()
	require.NoError(t, err)
	assert.Same(t, doc, again)
}

func TestJSON(t *testing.T) {
	r := New("http://example.test/api", 200, status.New("HTTP/1.1", 200, ""), nil,
		body.Text{Content: `{"ip":"203.0.113.7","tags":["a","b"],"n":3}`})

	m, err := r.JSON()
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", m["ip"])
	assert.Equal(t, float64(3), m["n"])

	var v struct {
		IP   string   `json:"ip"`
		Tags []string `json:"tags"`
	}
	require.NoError(t, r.DecodeJSON(&v))
	assert.Equal(t, []string{"a", "b"}, v.Tags)
	assert.Equal(t, "b", r.Get("tags", 1).ToString())

	bad := New("http://example.test/", 200, status.New("HTTP/1.1", 200, ""), nil, body.Text{Content: "<html>"})
	_, err = bad.JSON()
	assert.Error(t, err)
}

func TestFileContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("saved body"), 0o600))
	r := New("http://example.test/f", 200, status.New("HTTP/1.1", 200, ""), nil, body.File{Path: path, Size: 10})
	assert.Equal(t, "saved body", r.Content())
}

func TestContentTranscodesCharset(t *testing.T) {
	latin1 := "caf\xe9"
	h := headers.FromPairs("Content-Type", "text/html; charset=iso-8859-1")

	text := New("http://example.test/", 200, status.New("HTTP/1.1", 200, ""), h, body.Text{Content: latin1})
	assert.Equal(t, "café", text.Content())

	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(latin1), 0o600))
	file := New("http://example.test/", 200, status.New("HTTP/1.1", 200, ""), h, body.File{Path: path, Size: 4})
	assert.Equal(t, text.Content(), file.Content())

	raw, err := text.Body.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte(latin1), raw)
}

func TestDocumentUsesTranscodedText(t *testing.T) {
	h := headers.FromPairs("Content-Type", "text/html; charset=iso-8859-1")
	r := New("http://example.test/", 200, status.New("HTTP/1.1", 200, ""), h,
		body.Text{Content: "<html><body><p id=\"m\">caf\xe9</p></body></html>"})
	doc, err := r.Document()
	require.NoError(t, err)
	assert.Equal(t, "café", doc.Find("#m").Text())
}
