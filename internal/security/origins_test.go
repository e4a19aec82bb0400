package security

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOriginsDefaultsToAny(t *testing.T) {
	for _, csv := range []string{"", " , ", "*", "https://a.example.com,*"} {
		o := ParseOrigins(csv)
		assert.True(t, o.AllowsAny(), csv)
		assert.True(t, o.Allows("https://anything.example.com"), csv)
	}
}

func TestOriginsAllowsListedOnly(t *testing.T) {
	o := ParseOrigins(" https://chat.example.com , https://admin.example.com")
	assert.False(t, o.AllowsAny())
	assert.True(t, o.Allows("https://chat.example.com"))
	assert.True(t, o.Allows("https://admin.example.com"))
	assert.False(t, o.Allows("https://evil.example.com"))
	assert.False(t, o.Allows(""))
}

func TestOriginsAllowsRequest(t *testing.T) {
	o := ParseOrigins("https://chat.example.com")

	req := httptest.NewRequest("GET", "http://api.example.com/api/socket", nil)
	assert.True(t, o.AllowsRequest(req), "no Origin header")

	req.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, o.AllowsRequest(req))

	req.Header.Set("Origin", "https://api.example.com")
	assert.True(t, o.AllowsRequest(req), "same host")

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, o.AllowsRequest(req))
}
