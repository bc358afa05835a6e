package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/templui/paykit/internal/ctxkeys"
	"github.com/templui/paykit/internal/model"
)

func TestRateLimitPerClient(t *testing.T) {
	h := RateLimit(2, time.Minute)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	call := func(r *http.Request) int {
		rec := httptest.NewRecorder()
		h(rec, r)
		return rec.Code
	}

	anon := httptest.NewRequest(http.MethodPost, "/api/payments/checkout", nil)
	anon.RemoteAddr = "10.0.0.1:5555"

	assert.Equal(t, http.StatusNoContent, call(anon))
	assert.Equal(t, http.StatusNoContent, call(anon))
	assert.Equal(t, http.StatusTooManyRequests, call(anon))

	// Same IP but authenticated, so keyed by user
	authed := anon.WithContext(ctxkeys.WithUser(anon.Context(), &model.User{ID: "u1"}))
	assert.Equal(t, http.StatusNoContent, call(authed))
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "ip:192.0.2.1", clientKey(r))

	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "ip:198.51.100.7", clientKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.9", clientKey(r))

	r = r.WithContext(ctxkeys.WithUser(r.Context(), &model.User{ID: "u1"}))
	assert.Equal(t, "user:u1", clientKey(r))
}
