package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

func TestIsAPIPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/graph/list", true},
		{"/graph/agent/classify", true},
		{"/file/list", true},
		{"/prompt/list/name", true},
		{"/prompt", true},
		{"/simulation/result", true},
		{"/auth/token", true},
		{"/mcp", true},

		{"/", false},
		{"/graph", false},
		{"/prompts", false},
		{"/assets/index-abc123.js", false},
		{"/favicon.ico", false},
		{"/health", false},
		{"/openapi.yaml", false},
		{"/mcpserver", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isAPIPath(tt.path))
		})
	}
}

func TestSetCacheHeaders(t *testing.T) {
	tests := []struct {
		urlPath string
		want    string
	}{
		{"/assets/index-abc123.js", "public, max-age=31536000, immutable"},
		{"/assets/style-def456.css", "public, max-age=31536000, immutable"},
		{"/favicon.ico", "public, max-age=3600"},
		{"/images/logo.png", "public, max-age=3600"},
	}
	for _, tt := range tests {
		t.Run(tt.urlPath, func(t *testing.T) {
			w := httptest.NewRecorder()
			setCacheHeaders(w, tt.urlPath)
			assert.Equal(t, tt.want, w.Header().Get("Cache-Control"))
		})
	}
}

func TestSPAHandler(t *testing.T) {
	h := newSPAHandler(fstest.MapFS{
		"index.html":        {Data: []byte("<html>app</html>")},
		"assets/app-123.js": {Data: []byte("console.log(1)")},
	})

	serve := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := serve("/assets/app-123.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=31536000, immutable", rec.Header().Get("Cache-Control"))

	rec = serve("/graphs/editor")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app")
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))

	rec = serve("/graph/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}
