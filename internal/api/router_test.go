package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RichardoC/libelnet-chat/internal/llm/llmtest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse(t *testing.T) {
	upstream := errors.New("connection refused")

	testCases := []struct {
		name       string
		err        error
		production bool
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "validation is verbatim",
			err:        validationError(msgInvalidRole),
			wantStatus: http.StatusBadRequest,
			wantMsg:    msgInvalidRole,
		},
		{
			name:       "rate limit",
			err:        rateLimitError(),
			production: true,
			wantStatus: http.StatusTooManyRequests,
			wantMsg:    msgRateLimited,
		},
		{
			name:       "upstream in production",
			err:        upstreamError(upstream),
			production: true,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    msgUpstream,
		},
		{
			name:       "upstream in development",
			err:        upstreamError(upstream),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    msgUpstream + ": connection refused",
		},
		{
			name:       "wrapped api error",
			err:        fmt.Errorf("relay: %w", validationError(msgInvalidFormat)),
			wantStatus: http.StatusBadRequest,
			wantMsg:    msgInvalidFormat,
		},
		{
			name:       "unknown error",
			err:        upstream,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    msgInternal,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			status, msg := errorResponse(testCase.err, testCase.production)
			assert.Equal(t, testCase.wantStatus, status)
			assert.Equal(t, testCase.wantMsg, msg)
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := upstreamError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, msgUpstream+": boom", err.Error())
}

func TestRouterCORSPreflight(t *testing.T) {
	env := newTestEnv(t, &llmtest.Model{}, nil)
	router := NewRouter(env.handler, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, 0, env.model.Calls())
}

func TestRouterCORSRejectsUnknownOrigin(t *testing.T) {
	env := newTestEnv(t, &llmtest.Model{}, nil)
	router := NewRouter(env.handler, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterRoutes(t *testing.T) {
	env := newTestEnv(t, &llmtest.Model{Fragments: []string{"Hi"}}, nil)
	router := NewRouter(env.handler, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(helloBody)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi", rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.RequestsTotal.WithLabelValues("/api/chat", "200")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "supportchat_fragments_relayed_total 1")
}

func TestRouterServesStaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>LibelNet AI</h1>"), 0o600))

	env := newTestEnv(t, &llmtest.Model{}, nil)
	router := NewRouter(env.handler, dir)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "LibelNet AI")
}
