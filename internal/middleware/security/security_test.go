package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeaders(t *testing.T) {
	h := Headers(DefaultHeadersConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS sent over plain HTTP: %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestHeadersEmptyValuesAreSkipped(t *testing.T) {
	h := Headers(HeadersConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, ok := rec.Header()["Content-Security-Policy"]; ok {
		t.Error("empty CSP should not be set")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff is always set")
	}
}

func TestProxyResolverClientIP(t *testing.T) {
	p, err := NewProxyResolver()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"trusted proxy forwards", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "203.0.113.7"},
		{"trusted proxy real ip", "127.0.0.1:80", map[string]string{"X-Real-IP": "198.51.100.4"}, "198.51.100.4"},
		{"garbage forward falls back", "192.168.1.2:80", map[string]string{"X-Forwarded-For": "not-an-ip", "X-Real-IP": "198.51.100.4"}, "198.51.100.4"},
		{"trusted proxy without headers", "192.168.1.2:80", nil, "192.168.1.2"},
		{"untrusted peer is not believed", "203.0.113.50:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.50"},
		{"remote without port", "192.0.2.9", nil, "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := p.ClientIP(req); got != tt.want {
				t.Fatalf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
	if got := p.UntrustedForwards(); got != 1 {
		t.Errorf("UntrustedForwards() = %d, want 1", got)
	}
}

func TestProxyResolverAddressDoesNotCount(t *testing.T) {
	p, err := NewProxyResolver()
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := p.Address(req); got != "198.51.100.7" {
		t.Fatalf("Address() = %q, want peer address", got)
	}
	if got := p.UntrustedForwards(); got != 0 {
		t.Errorf("UntrustedForwards() = %d after Address, want 0", got)
	}
	p.ClientIP(req)
	if got := p.UntrustedForwards(); got != 1 {
		t.Errorf("UntrustedForwards() = %d after ClientIP, want 1", got)
	}
}

func TestNewProxyResolverCustomCIDRs(t *testing.T) {
	p, err := NewProxyResolver("203.0.113.0/24")
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := p.ClientIP(req); got != "198.51.100.1" {
		t.Fatalf("ClientIP() = %q", got)
	}

	req.RemoteAddr = "10.0.0.1:80"
	if got := p.ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("private network is not trusted unless listed, got %q", got)
	}

	if _, err := NewProxyResolver("10.0.0.0/33"); err == nil {
		t.Fatal("expected an error for an invalid CIDR")
	}
}
