package security

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrOriginDenied = errors.New("origin denied")
	ErrRemoteToken  = errors.New("token is required for non-loopback listen address")
)

// TokenQueryParam carries the token for clients that cannot set headers,
// such as browser EventSource connections.
const TokenQueryParam = "token"

type Guard struct {
	token          string
	allowedOrigins map[string]struct{}
}

func New(token string, allowedOrigins []string) *Guard {
	g := &Guard{
		token:          strings.TrimSpace(token),
		allowedOrigins: make(map[string]struct{}),
	}
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		g.allowedOrigins[trimmed] = struct{}{}
	}
	return g
}

func (g *Guard) TokenRequired() bool {
	return g.token != ""
}

func (g *Guard) CheckOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return nil
	}
	if _, ok := g.allowedOrigins[origin]; ok {
		return nil
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("%w: invalid origin", ErrOriginDenied)
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if parsed.Scheme != scheme || parsed.Host != r.Host {
		return fmt.Errorf("%w: expected %s://%s, got %s", ErrOriginDenied, scheme, r.Host, origin)
	}
	return nil
}

// RequireAuth accepts an Authorization bearer token, or the token query
// parameter.
func (g *Guard) RequireAuth(r *http.Request) error {
	if g.TokenMatches(bearerToken(r)) || g.TokenMatches(r.URL.Query().Get(TokenQueryParam)) {
		return nil
	}
	return ErrUnauthorized
}

func (g *Guard) TokenMatches(token string) bool {
	if !g.TokenRequired() {
		return true
	}
	token = strings.TrimSpace(token)
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(g.token)) == 1
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// ValidateRemoteExposure enforces the minimum security baseline when launchmon
// is configured to listen on a non-loopback address.
func ValidateRemoteExposure(listenAddr, token string) error {
	if !ExposesBeyondLoopback(listenAddr) {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return ErrRemoteToken
	}
	return nil
}

// ExposesBeyondLoopback reports whether listenAddr is reachable from outside the host.
func ExposesBeyondLoopback(listenAddr string) bool {
	host := listenHost(listenAddr)
	if host == "" {
		return true
	}
	if strings.EqualFold(host, "localhost") {
		return false
	}
	ip := net.ParseIP(host)
	if ip != nil {
		return !ip.IsLoopback()
	}
	// Any named host other than localhost may resolve to a routable address.
	return true
}

func listenHost(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, ":") {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		return strings.Trim(strings.TrimSpace(host), "[]")
	}
	// Best effort fallback for host-only values.
	return strings.Trim(addr, "[]")
}
