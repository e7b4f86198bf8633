package opshttp

import (
	"net/http"

	"github.com/keithlinneman/listwebserver/internal/health"
)

// Options configures the admin listener. It is never exposed publicly.
type Options struct {
	Port        int // default 9000
	Metrics     http.Handler
	EnablePprof bool
	Liveness    health.Probe
	Readiness   health.Probe
	// AllowPublic disables the private-network check, for tests and for
	// deployments that firewall the admin port some other way.
	AllowPublic bool
}
