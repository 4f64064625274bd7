package security

import (
	"crypto/tls"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"token set", "secret", true},
		{"token empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New(tt.token, nil)
			assert.Equal(t, tt.want, g.TokenRequired())
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		allowedOrigins []string
		origin         string
		host           string
		tls            bool
		wantErr        error
	}{
		{
			name:   "no origin header",
			origin: "",
			host:   "localhost:4050",
		},
		{
			name:           "origin in allowed list",
			allowedOrigins: []string{"http://trusted.example.com"},
			origin:         "http://trusted.example.com",
			host:           "localhost:4050",
		},
		{
			name:   "same origin http",
			origin: "http://localhost:4050",
			host:   "localhost:4050",
		},
		{
			name:    "different host",
			origin:  "http://evil.example.com",
			host:    "localhost:4050",
			wantErr: ErrOriginDenied,
		},
		{
			name:    "different scheme https origin http request",
			origin:  "https://localhost:4050",
			host:    "localhost:4050",
			wantErr: ErrOriginDenied,
		},
		{
			name:    "invalid url as origin",
			origin:  "://bad",
			host:    "localhost:4050",
			wantErr: ErrOriginDenied,
		},
		{
			name:   "tls request with https origin",
			origin: "https://localhost:4050",
			host:   "localhost:4050",
			tls:    true,
		},
		{
			name:   "empty allowed origins matching same origin",
			origin: "http://myhost:8080",
			host:   "myhost:8080",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New("", tt.allowedOrigins)
			r := httptest.NewRequest("GET", "http://"+tt.host+"/", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if tt.tls {
				r.TLS = &tls.ConnectionState{}
			}

			err := g.CheckOrigin(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		token   string
		header  string
		query   string
		wantErr bool
	}{
		{name: "no token configured", token: ""},
		{name: "bearer match", token: "secret", header: "Bearer secret"},
		{name: "bearer scheme case-insensitive", token: "secret", header: "bearer  secret "},
		{name: "query match", token: "secret", query: "secret"},
		{name: "bearer mismatch", token: "secret", header: "Bearer nope", wantErr: true},
		{name: "basic scheme rejected", token: "secret", header: "Basic secret", wantErr: true},
		{name: "missing", token: "secret", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New(tt.token, nil)
			target := "http://localhost:4050/api/services"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			r := httptest.NewRequest("GET", target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			err := g.RequireAuth(r)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnauthorized)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestExposesBeyondLoopback(t *testing.T) {
	t.Parallel()

	for addr, want := range map[string]bool{
		"127.0.0.1:4050": false,
		"[::1]:4050":     false,
		"localhost":      false,
		":4050":          true,
		"":               true,
		"0.0.0.0:4050":   true,
		"myhost:4050":    true,
	} {
		assert.Equal(t, want, ExposesBeyondLoopback(addr), "ExposesBeyondLoopback(%q)", addr)
	}
}

func TestValidateRemoteExposure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		listenAddr string
		token      string
		wantErr    error
	}{
		{
			name:       "localhost without token is allowed",
			listenAddr: "127.0.0.1:4050",
			token:      "",
		},
		{
			name:       "localhost hostname is allowed",
			listenAddr: "localhost:4050",
			token:      "",
		},
		{
			name:       "all interfaces requires token",
			listenAddr: ":4050",
			token:      "",
			wantErr:    ErrRemoteToken,
		},
		{
			name:       "remote ip requires token",
			listenAddr: "192.168.1.12:4050",
			token:      "",
			wantErr:    ErrRemoteToken,
		},
		{
			name:       "remote with token only is valid",
			listenAddr: "0.0.0.0:4050",
			token:      "secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateRemoteExposure(tt.listenAddr, tt.token)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
