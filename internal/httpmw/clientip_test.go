package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		hops       int
		want       string
		stripped   bool
	}{
		{"public peer ignores xff", "203.0.113.1:1234", "10.0.0.1", 1, "203.0.113.1", true},
		{"private peer no hops ignores xff", "10.0.0.1:1234", "203.0.113.50", 0, "10.0.0.1", true},
		{"single alb takes rightmost", "10.0.0.1:1234", "198.51.100.9, 203.0.113.50", 1, "203.0.113.50", false},
		{"cdn and alb take second from end", "10.0.0.1:1234", "198.51.100.9, 203.0.113.50, 10.0.0.7", 2, "203.0.113.50", false},
		{"too few entries fails closed", "10.0.0.1:1234", "203.0.113.50", 3, "10.0.0.1", true},
		{"unparseable candidate keeps peer", "10.0.0.1:1234", "not-an-ip", 1, "10.0.0.1", false},
		{"loopback proxy trusted", "127.0.0.1:1234", "203.0.113.50", 1, "203.0.113.50", false},
		{"no port", "10.0.0.1", "", 0, "10.0.0.1", false},
		{"garbage remote", "nonsense:1", "", 0, "0.0.0.0", false},
		{"empty remote", "", "", 0, "0.0.0.0", false},
		{"ipv6 peer", "[2001:db8::1]:443", "", 0, "2001:db8::1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
				r.Header.Set("X-Forwarded-Proto", "https")
			}
			if got := clientAddr(r, tt.hops); got != tt.want {
				t.Fatalf("clientAddr = %q, want %q", got, tt.want)
			}
			if tt.stripped && (r.Header.Get("X-Forwarded-For") != "" || r.Header.Get("X-Forwarded-Proto") != "") {
				t.Fatal("forwarded headers should be stripped")
			}
		})
	}
}

func TestClientIPWithOptions_StoresInContext(t *testing.T) {
	var got string
	h := ClientIPWithOptions(ClientIPOptions{TrustedHops: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIPFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.RemoteAddr = "10.1.2.3:999"
	r.Header.Set("X-Forwarded-For", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got != "198.51.100.4" {
		t.Fatalf("client ip = %q", got)
	}
}

func TestWithClientIP_EmptyIsNoop(t *testing.T) {
	ctx := WithClientIP(t.Context(), "")
	if ClientIPFromContext(ctx) != "" {
		t.Fatal("empty ip stored")
	}
}
