package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/testutil"
)

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("store down")
}

func (brokenLimiter) Close() error { return nil }

func serve(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/simulation/run", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	m, _ := newTestLimiter(t, 0.5, 1)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	reqID := func(*http.Request) string { return "req-1" }
	h := Middleware(m, IPKeyFunc, reqID, testutil.TestLogger())(next)

	assert.Equal(t, http.StatusNoContent, serve(h, "10.0.0.1:1234").Code)

	rec := serve(h, "10.0.0.1:5678")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	var body model.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, model.ErrCodeRateLimited, body.Error.Code)
	assert.Equal(t, "req-1", body.Meta.RequestID)

	assert.Equal(t, http.StatusNoContent, serve(h, "10.0.0.2:1234").Code, "other client")
}

func TestMiddleware_FailsOpen(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Middleware(brokenLimiter{}, IPKeyFunc, nil, testutil.TestLogger())(next)
	assert.Equal(t, http.StatusNoContent, serve(h, "10.0.0.1:1").Code)
}

func TestMiddleware_EmptyKeySkips(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 1)
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { calls++ })
	h := Middleware(m, func(*http.Request) string { return "" }, nil, testutil.TestLogger())(next)
	for range 3 {
		serve(h, "10.0.0.1:1")
	}
	assert.Equal(t, 3, calls)
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4444"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "192.0.2.7", IPKeyFunc(req))

	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", IPKeyFunc(req))
}

func TestClientKeyContext(t *testing.T) {
	assert.Empty(t, ClientKeyFromContext(context.Background()))
	ctx := WithClientKey(context.Background(), "192.0.2.7")
	assert.Equal(t, "192.0.2.7", ClientKeyFromContext(ctx))
}
