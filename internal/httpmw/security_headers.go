package httpmw

import (
	"net/http"

	"github.com/keithlinneman/listwebserver/internal/pipeline"
)

// Responses are JSON for a browser app on another origin, so the policy
// forbids rendering anything from here while still allowing same-site
// embedding of API resources.
var securityHeaders = [...][2]string{
	// HTTPS for 180 days including subdomains (ignored by browsers over plain http)
	{"Strict-Transport-Security", "max-age=15552000; includeSubDomains"},
	// nothing served from the API should ever execute or render
	{"Content-Security-Policy", "default-src 'none'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"X-DNS-Prefetch-Control", "off"},
	{"X-Download-Options", "noopen"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
	// legacy XSS auditors do more harm than good
	{"X-XSS-Protection", "0"},
	{"Origin-Agent-Cluster", "?1"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-site"},
}

// ApplySecurityHeaders sets the hardening headers on h.
func ApplySecurityHeaders(h http.Header) {
	for _, kv := range securityHeaders {
		h.Set(kv[0], kv[1])
	}
}

// SecurityHeaders is middleware that applies the hardening headers before
// calling next.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ApplySecurityHeaders(w.Header())
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaderGate is the pipeline form of SecurityHeaders. It always
// continues.
func SecurityHeaderGate() pipeline.Gate {
	return pipeline.GateFunc{
		GateName: "security_headers",
		Fn: func(w http.ResponseWriter, r *http.Request) (*http.Request, pipeline.Outcome) {
			ApplySecurityHeaders(w.Header())
			return nil, pipeline.Continue()
		},
	}
}
