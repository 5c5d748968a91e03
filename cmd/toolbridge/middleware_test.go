package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/config"
	"github.com/BaSui01/toolbridge/types"
)

func okInner() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders()(okInner()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	w := httptest.NewRecorder()
	Chain(okInner(), mark("a"), mark("b"), mark("c")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	})
	handler := RequestID()(inner)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "upstream-id")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, "upstream-id", seen)
	assert.Equal(t, "upstream-id", w.Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	w := httptest.NewRecorder()
	Recovery(zap.NewNop())(panicking).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrInternalError))
}

func TestAPIKeyAuth(t *testing.T) {
	handler := APIKeyAuth([]string{"k1"}, []string{"/health"}, zap.NewNop())(okInner())

	tests := []struct {
		name   string
		path   string
		header string
		value  string
		want   int
	}{
		{"x-api-key", "/api/v1/tools", "X-API-Key", "k1", http.StatusOK},
		{"bearer", "/api/v1/tools", "Authorization", "Bearer k1", http.StatusOK},
		{"wrong key", "/api/v1/tools", "X-API-Key", "nope", http.StatusUnauthorized},
		{"missing", "/api/v1/tools", "", "", http.StatusUnauthorized},
		{"skipped path", "/health", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Secret: "s3cret", Issuer: "toolbridge"}

	var tenant, user string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, _ = types.TenantID(r.Context())
		user, _ = types.UserID(r.Context())
	})
	handler := JWTAuth(cfg, []string{"/health"}, zap.NewNop())(inner)

	valid := signHS256(t, "s3cret", jwt.MapClaims{
		"iss":       "toolbridge",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"tenant_id": "t-1",
		"user_id":   "u-1",
	})
	expired := signHS256(t, "s3cret", jwt.MapClaims{
		"iss": "toolbridge",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongIssuer := signHS256(t, "s3cret", jwt.MapClaims{"iss": "other"})
	wrongSecret := signHS256(t, "other", jwt.MapClaims{"iss": "toolbridge"})

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"valid", "/api/v1/tools", valid, http.StatusOK},
		{"expired", "/api/v1/tools", expired, http.StatusUnauthorized},
		{"wrong issuer", "/api/v1/tools", wrongIssuer, http.StatusUnauthorized},
		{"wrong secret", "/api/v1/tools", wrongSecret, http.StatusUnauthorized},
		{"missing", "/api/v1/tools", "", http.StatusUnauthorized},
		{"skipped path", "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant, user = "", ""
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	r.Header.Set("Authorization", "Bearer "+valid)
	handler.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "t-1", tenant)
	assert.Equal(t, "u-1", user)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(okInner())

	send := func(remote, tenant string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
		r.RemoteAddr = remote
		if tenant != "" {
			r = r.WithContext(types.WithTenantID(r.Context(), tenant))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000", ""))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001", ""))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1002", ""))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000", ""), "other IPs have their own bucket")
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1003", "acme"), "tenants are keyed separately")
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example"})(okInner())

	r := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	r.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodOptions, "/api/v1/tools", nil)
	r.Header.Set("Origin", "https://app.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)

	r = httptest.NewRequest(http.MethodOptions, "/api/v1/tools", nil)
	r.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/v1/tools/invoke", "/api/v1/tools/invoke"},
		{"/health", "/health"},
		{"/api/v1/items/12345", "/api/v1/items/:id"},
		{"/api/v1/items/550e8400-e29b-41d4-a716-446655440000/x", "/api/v1/items/:id/x"},
		{"/api/v1/unknown", "/api/v1/unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}
