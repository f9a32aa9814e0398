package ws

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPPrefersForwardedHop(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:54321"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")

	assert.Equal(t, "203.0.113.7", clientIP(r))
}

func TestClientIPFallsBackToPeer(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:54321"

	assert.Equal(t, "10.0.0.1", clientIP(r))
}

func TestClientIPWithoutPort(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1"

	assert.Equal(t, "10.0.0.1", clientIP(r))
}

func TestIdentityHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Device-Id", "device-7")
	r.Header.Set("X-Request-Id", "req-9")

	assert.Equal(t, "device-7", deviceID(r))
	assert.Equal(t, "req-9", requestID(r))
}
