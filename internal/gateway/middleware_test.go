package gateway

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/mirror/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := chain(okHandler, mark("outer"), mark("middle"), mark("inner"))
	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "middle", "inner"}, order)
}

func TestTagRequest(t *testing.T) {
	var seen string
	h := tagRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestID(r.Context())
	}))

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/weather", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("X-Request-ID", "display-7")
	rr = serve(h, req)
	assert.Equal(t, "display-7", seen)
	assert.Equal(t, "display-7", rr.Header().Get("X-Request-ID"))
}

func TestRecoverPanics(t *testing.T) {
	var buf bytes.Buffer
	h := recoverPanics(logging.New(&buf, "error"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("calendar exploded")
	}))

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/calendar", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rr.Body.String())
	assert.Contains(t, buf.String(), "calendar exploded")
}

func TestRecoverPanics_AbortHandlerPropagates(t *testing.T) {
	h := recoverPanics(logging.New(nil, "silent"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLogRequests(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, "warn")

	h := logRequests(log)(okHandler)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "ok", rr.Body.String())
	assert.Empty(t, buf.String(), "2xx is logged at debug")

	h = logRequests(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusBadGateway, "weather: 503")
	}))
	serve(h, httptest.NewRequest(http.MethodGet, "/weather", nil))
	assert.Contains(t, buf.String(), `"status":502`)
	assert.Contains(t, buf.String(), `"path":"/weather"`)
}

func TestAllowOrigins(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"unconfigured denies", nil, "http://localhost:8080", ""},
		{"wildcard", []string{"*"}, "http://localhost:8080", "http://localhost:8080"},
		{"listed", []string{"http://mirror.local"}, "http://mirror.local", "http://mirror.local"},
		{"unlisted", []string{"http://mirror.local"}, "http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/calendar", nil)
			req.Header.Set("Origin", tt.origin)
			rr := serve(allowOrigins(tt.allowed)(okHandler), req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, rr.Header().Get("Access-Control-Allow-Origin"))
			if tt.want != "" {
				assert.Contains(t, rr.Header().Get("Access-Control-Expose-Headers"), "X-Turn-ID")
				assert.Equal(t, "Origin", rr.Header().Get("Vary"))
			}
		})
	}
}

func TestAllowOrigins_Preflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/chat/audio", nil)
	req.Header.Set("Origin", "http://mirror.local")
	rr := serve(allowOrigins([]string{"http://mirror.local"})(okHandler), req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
}

func TestWithMiddleware(t *testing.T) {
	handler := withMiddleware(okHandler, logging.New(nil, "silent"), []string{"http://mirror.local"}, "", newAuthRateLimiter())

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("Origin", "http://mirror.local")
	rr := serve(handler, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "http://mirror.local", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestWithMiddleware_Token(t *testing.T) {
	handler := withMiddleware(okHandler, logging.New(nil, "silent"), nil, "secret", newAuthRateLimiter())

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health is public", "/health", "", http.StatusOK},
		{"missing token", "/weather", "", http.StatusUnauthorized},
		{"wrong token", "/weather", "Bearer nope", http.StatusUnauthorized},
		{"not bearer", "/weather", "Basic secret", http.StatusUnauthorized},
		{"valid token", "/weather", "Bearer secret", http.StatusOK},
		{"query token", "/ws?token=secret", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := serve(handler, req)
			assert.Equal(t, tt.want, rr.Code)
			// Rejected requests are still tagged for the log.
			assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
		})
	}
}

func TestWithMiddleware_TokenRateLimited(t *testing.T) {
	handler := withMiddleware(okHandler, logging.New(nil, "silent"), nil, "secret", newAuthRateLimiter())

	for range authRateMaxFails {
		req := httptest.NewRequest(http.MethodGet, "/calendar", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		serve(handler, req)
	}

	req := httptest.NewRequest(http.MethodGet, "/calendar", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, req).Code)
}
