package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/WhileEndless/go-rawclient/pkg/constants"
	"github.com/WhileEndless/go-rawclient/pkg/tlsconfig"
)

func TestNewProfiles(t *testing.T) {
	for _, mobile := range []bool{false, true} {
		b := New(mobile)
		assert.Equal(t, mobile, b.Mobile)
		assert.NotEmpty(t, b.UserAgent)
		assert.Equal(t, FingerprintFor(b.UserAgent), b.Fingerprint)
		assert.Equal(t, HTTP11, b.Version())
		assert.Equal(t, constants.DefaultMaxAttempts, b.Attempts())
		if mobile {
			assert.True(t, strings.Contains(b.UserAgent, "Mobile"), b.UserAgent)
		}
	}
}

func TestFingerprintFor(t *testing.T) {
	assert.Equal(t, tlsconfig.Firefox, FingerprintFor(desktopAgents[4]))
	assert.Equal(t, tlsconfig.Chrome, FingerprintFor(desktopAgents[0]))
	assert.Equal(t, tlsconfig.Safari, FingerprintFor(desktopAgents[7]))
	assert.Equal(t, tlsconfig.Chrome, FingerprintFor(mobileAgents[3]))
	assert.Equal(t, tlsconfig.Chrome, FingerprintFor("curl/8.0"))
}

func TestCloneAndDefaults(t *testing.T) {
	b := &Browser{}
	assert.Equal(t, constants.DefaultMaxAttempts, b.Attempts())
	assert.Equal(t, HTTP11, b.Version())

	b.MaxAttempts = 2
	c := b.Clone()
	c.MaxAttempts = 9
	assert.Equal(t, 2, b.Attempts())
	assert.Equal(t, 9, c.Attempts())
}
