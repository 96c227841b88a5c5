package middleware

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(opt SecurityOptions, prep func(c *gin.Context), mutate func(r *http.Request)) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if prep != nil {
		r.Use(func(c *gin.Context) { prep(c); c.Next() })
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Defaults(t *testing.T) {
	h := serveSecurity(SecurityOptions{}, nil, nil)

	want := map[string]string{
		"X-Content-Type-Options":       "nosniff",
		"X-Frame-Options":              "DENY",
		"Referrer-Policy":              "no-referrer",
		"Cross-Origin-Resource-Policy": "same-origin",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Fatalf("%s = %q, want %q", k, got, v)
		}
	}
	for _, k := range []string{
		"Permissions-Policy", "X-Permitted-Cross-Domain-Policies",
		"Cache-Control", "Pragma", "Expires",
		"Strict-Transport-Security", "Access-Control-Expose-Headers",
	} {
		if got := h.Get(k); got != "" {
			t.Fatalf("unexpected %s = %q", k, got)
		}
	}
}

func TestSecurityHeaders_ExposeRequestID(t *testing.T) {
	cases := []struct {
		name     string
		existing string
		want     string
	}{
		{"added", "", "X-Request-ID"},
		{"appended", "ETag", "ETag, X-Request-ID"},
		{"not duplicated", "X-Request-ID, ETag", "X-Request-ID, ETag"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := serveSecurity(SecurityOptions{}, func(c *gin.Context) {
				c.Header(requestIDHeader, "rid-1")
				if tc.existing != "" {
					c.Header("Access-Control-Expose-Headers", tc.existing)
				}
			}, nil)
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityHeaders_PolicyAndNoStore(t *testing.T) {
	h := serveSecurity(SecurityOptions{NoStore: true, EnablePolicy: true}, nil, nil)

	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("missing policy headers: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("missing cache headers: %#v", h)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	viaTLS := func(r *http.Request) { r.TLS = &tls.ConnectionState{} }
	viaProxy := func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }

	cases := []struct {
		name   string
		opt    SecurityOptions
		mutate func(*http.Request)
		want   string
	}{
		{"tls", SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}, viaTLS, "max-age=86400; includeSubDomains; preload"},
		{"proxy header", SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour}, viaProxy, "max-age=3600; includeSubDomains; preload"},
		{"default max age", SecurityOptions{EnableHSTS: true}, viaTLS, "max-age=15552000; includeSubDomains; preload"},
		{"plain http", SecurityOptions{EnableHSTS: true}, nil, ""},
		{"disabled", SecurityOptions{}, viaTLS, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := serveSecurity(tc.opt, nil, tc.mutate)
			if got := h.Get("Strict-Transport-Security"); got != tc.want {
				t.Fatalf("HSTS = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityHeaders_CrossOriginResources(t *testing.T) {
	h := serveSecurity(SecurityOptions{CrossOriginResources: true}, nil, nil)
	if got := h.Get("Cross-Origin-Resource-Policy"); got != "cross-origin" {
		t.Fatalf("CORP = %q, want cross-origin", got)
	}
}

func TestLimitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		limit int64
		body  string
		want  int
	}{
		{8, "short", http.StatusOK},
		{8, strings.Repeat("x", 64), http.StatusRequestEntityTooLarge},
		{0, strings.Repeat("x", 64), http.StatusOK},
	} {
		r := gin.New()
		r.Use(LimitBody(tc.limit))
		r.POST("/echo", func(c *gin.Context) {
			if _, err := io.ReadAll(c.Request.Body); err != nil {
				c.Status(http.StatusRequestEntityTooLarge)
				return
			}
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(tc.body)))
		if w.Code != tc.want {
			t.Fatalf("limit %d, body %d bytes -> %d, want %d", tc.limit, len(tc.body), w.Code, tc.want)
		}
	}
}
