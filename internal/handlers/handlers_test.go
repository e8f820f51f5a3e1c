package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kedevs/blogapi/config"
	"github.com/kedevs/blogapi/internal/auth"
	"github.com/kedevs/blogapi/internal/services"
	"github.com/kedevs/blogapi/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: title is required", services.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("insert: %w", store.ErrConflict), http.StatusConflict},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrTokenExpired, http.StatusUnauthorized},
		{auth.ErrTokenInvalid, http.StatusUnauthorized},
		{auth.ErrUnauthenticated, http.StatusUnauthorized},
		{auth.ErrForbidden, http.StatusForbidden},
		{store.ErrNotFound, http.StatusNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, "failed to do thing")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}

	rec := httptest.NewRecorder()
	writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: secret detail"), "failed to do thing")
	assert.JSONEq(t, `{"error":"failed to do thing"}`, rec.Body.String(), "internal details stay out of responses")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc  ", "abc", true},
		{"", "", false},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer   ", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", tt.header)
		token, err := bearerToken(r)
		if !tt.ok {
			assert.Error(t, err, tt.header)
			continue
		}
		require.NoError(t, err, tt.header)
		assert.Equal(t, tt.token, token)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst PostRequest

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"a","author_id":3}`))
	require.NoError(t, decodeJSON(httptest.NewRecorder(), r, &dst))
	require.NotNil(t, dst.Title)
	assert.Equal(t, "a", *dst.Title)
	assert.Nil(t, dst.Content)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"a"}{"title":"b"}`))
	assert.Error(t, decodeJSON(httptest.NewRecorder(), r, &dst))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.Error(t, decodeJSON(httptest.NewRecorder(), r, &dst))
}

func TestPrincipalFromContextDefaultsToAnonymous(t *testing.T) {
	assert.Equal(t, auth.Anonymous(), principalFromContext(context.Background()))

	p := auth.Principal{ID: 3, Authenticated: true}
	assert.Equal(t, p, principalFromContext(withPrincipal(context.Background(), p)))
}

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(withPrincipal(req.Context(), auth.Principal{ID: 1, Authenticated: true}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz(fakePinger{})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	Healthz(fakePinger{err: errors.New("down")})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}

func TestIPRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newIPRateLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }
	limiter.lastCleanup = now

	_, ok := limiter.reserve("10.0.0.1")
	assert.True(t, ok)
	_, ok = limiter.reserve("10.0.0.1")
	assert.True(t, ok)

	delay, ok := limiter.reserve("10.0.0.1")
	assert.False(t, ok)
	assert.InDelta(t, 30*time.Second, delay, float64(time.Second))

	_, ok = limiter.reserve("10.0.0.2")
	assert.True(t, ok, "limits are per client")

	now = now.Add(30 * time.Second)
	_, ok = limiter.reserve("10.0.0.1")
	assert.True(t, ok, "tokens refill over the window")

	now = now.Add(limiterIdleTTL + time.Minute)
	limiter.reserve("10.0.0.3")
	assert.NotContains(t, limiter.limiters, "10.0.0.2", "idle clients are evicted")
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(config.RateLimitConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for range 50 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
}
