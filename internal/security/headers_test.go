package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, mw gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddleware(t *testing.T) {
	w := serve(t, HeadersMiddleware(), httptest.NewRequest("GET", "/ping", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	// The monitoring stream upgrades to WebSocket, so the CSP must not
	// block the ws: scheme.
	csp := w.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "ws:") {
		t.Errorf("CSP %q does not allow WebSocket connections", csp)
	}
}

func TestCORSMiddleware(t *testing.T) {
	cases := []struct {
		name    string
		origins []string
		origin  string
		allowed bool
	}{
		{"listed origin", []string{"https://app.crowdguard.io"}, "https://app.crowdguard.io", true},
		{"wildcard", []string{"*"}, "https://anything.example", true},
		{"empty list admits all", nil, "https://anything.example", true},
		{"unlisted origin", []string{"https://app.crowdguard.io"}, "https://evil.example", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ping", nil)
			req.Header.Set("Origin", tc.origin)
			w := serve(t, CORSMiddleware(tc.origins), req)

			got := w.Header().Get("Access-Control-Allow-Origin") != ""
			if got != tc.allowed {
				t.Errorf("allow-origin present = %v, want %v", got, tc.allowed)
			}
		})
	}
}

func TestCORSWildcardNeverGrantsCredentials(t *testing.T) {
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "https://anything.example")
	w := serve(t, CORSMiddleware([]string{"*"}), req)

	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("wildcard origins must not allow credentials")
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest("OPTIONS", "/ping", nil)
	req.Header.Set("Origin", "https://app.crowdguard.io")
	w := serve(t, CORSMiddleware([]string{"https://app.crowdguard.io"}), req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Access-Control-Allow-Methods not set on preflight")
	}
}
