package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Middleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allows_within_burst", func(t *testing.T) {
		rl := NewRateLimiter(1, 3)
		defer rl.Stop()
		handler := rl.Middleware()(okHandler)

		for i := 0; i < 3; i++ {
			req := httptest.NewRequest("GET", "/conversations/conv-1", nil)
			req.RemoteAddr = "10.0.0.1:51234"
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i+1)
		}
	})

	t.Run("rejects_over_burst", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 1)
		defer rl.Stop()
		handler := rl.Middleware()(okHandler)

		req := httptest.NewRequest("GET", "/conversations/conv-1", nil)
		req.RemoteAddr = "10.0.0.2:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("limiters_are_per_ip", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 1)
		defer rl.Stop()
		handler := rl.Middleware()(okHandler)

		first := httptest.NewRequest("GET", "/conversations/conv-1", nil)
		first.RemoteAddr = "10.0.0.3:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, first)
		assert.Equal(t, http.StatusOK, rec.Code)

		other := httptest.NewRequest("GET", "/conversations/conv-1", nil)
		other.RemoteAddr = "10.0.0.4:51234"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, other)
		assert.Equal(t, http.StatusOK, rec.Code, "other client has its own bucket")
	})

	t.Run("same_ip_different_port_shares_bucket", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 1)
		defer rl.Stop()
		handler := rl.Middleware()(okHandler)

		req := httptest.NewRequest("GET", "/conversations/conv-1", nil)
		req.RemoteAddr = "10.0.0.5:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		req = httptest.NewRequest("GET", "/conversations/conv-1", nil)
		req.RemoteAddr = "10.0.0.5:62000"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("stop_is_idempotent", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)
		rl.Stop()
		rl.Stop()
	})
}
