// Package origins derives the set of Origin header values accepted from the
// browser application, given the single URL it is served from.
//
// A browser may report the same application in several spellings depending
// on whether the port is implicit, so one configured URL expands into a
// small fixed set:
//
//	http://example.com       -> http://example.com, example.com
//	http://example.com:80    -> http://example.com:80, example.com, example.com:80
//	https://example.com:8443 -> https://example.com:8443, example.com:8443
//
// A bare hostname is only accepted when the port is absent or one of the
// well-known ports; with any other port it would also match the default-port
// deployment, which is a different origin. Hostnames are lowercased, as
// browsers send them; the configured value is kept verbatim as well.
package origins

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ConfigError reports a base domain that cannot be turned into a whitelist.
// It is a startup error, the server must not accept traffic with it.
type ConfigError struct {
	Value  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("origins: invalid webapp domain %q: %s: %v", e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("origins: invalid webapp domain %q: %s", e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Whitelist is an ordered set of accepted origins. The zero value matches
// nothing. A Whitelist is never modified after Derive returns it, so it is
// safe for concurrent use.
type Whitelist struct {
	entries []string
}

// Derive parses raw and returns its whitelist.
func Derive(raw string) (Whitelist, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Whitelist{}, &ConfigError{Value: raw, Reason: "not a URL", Err: err}
	}
	if u.Scheme == "" {
		return Whitelist{}, &ConfigError{Value: raw, Reason: "missing scheme"}
	}
	// browsers send the Origin host lowercased; raw is kept as configured
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Whitelist{}, &ConfigError{Value: raw, Reason: "missing hostname"}
	}

	scheme := u.Scheme + "://"
	port := u.Port()

	var entries []string
	switch {
	case port == "":
		entries = []string{raw, host, scheme + host}
	case isWellKnownPort(port):
		entries = []string{raw, host, host + ":" + port, scheme + host + ":" + port}
	default:
		entries = []string{raw, host + ":" + port, scheme + host + ":" + port}
	}
	return Whitelist{entries: dedupe(entries)}, nil
}

// MustDerive is Derive for constants and tests. It panics on error.
func MustDerive(raw string) Whitelist {
	wl, err := Derive(raw)
	if err != nil {
		panic(err)
	}
	return wl
}

// Contains reports whether origin is one of the entries, compared exactly.
func (w Whitelist) Contains(origin string) bool {
	return slices.Contains(w.entries, origin)
}

// Entries returns a copy of the entries in derivation order.
func (w Whitelist) Entries() []string {
	return slices.Clone(w.entries)
}

func (w Whitelist) Len() int { return len(w.entries) }

// 80 and 443 count as implicit for either scheme
func isWellKnownPort(port string) bool {
	return port == "80" || port == "443"
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
