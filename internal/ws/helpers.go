package ws

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/auth"
	"chat-sync/internal/metadata"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

func resolveSession(c *gin.Context, meta metadata.Service, header string) (auth.Session, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return auth.Session{}, errors.New("invalid authorization header")
	}
	me, err := meta.Me(c.Request.Context(), parts[1])
	if err != nil {
		return auth.Session{}, err
	}
	return auth.Session{UserID: me.ID, Token: parts[1]}, nil
}

func deviceID(r *http.Request) string {
	return r.Header.Get("X-Device-Id")
}

func requestID(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

// clientIP prefers the first forwarded hop over the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
