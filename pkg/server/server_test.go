package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHomeAndHealthz(t *testing.T) {
	s := New(":0", nil, nil)
	w := get(t, s.Handler(), "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bot is running!", w.Body.String())

	w = get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReadyz(t *testing.T) {
	healthy := New(":0", map[string]Check{"ledger": func(context.Context) error { return nil }}, nil)
	w := get(t, healthy.Handler(), "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])

	broken := New(":0", map[string]Check{
		"ledger": func(context.Context) error { return nil },
		"redis":  func(context.Context) error { return errors.New("connection refused") },
	}, nil)
	w = get(t, broken.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis ping failed")
}

func TestRunShutsDown(t *testing.T) {
	s := New("127.0.0.1:0", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
