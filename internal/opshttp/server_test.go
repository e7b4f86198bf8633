package opshttp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/listwebserver/internal/health"
	"github.com/keithlinneman/listwebserver/internal/log"
)

func serve(t *testing.T, h http.Handler, path, remote string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.RemoteAddr = remote
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Routes(t *testing.T) {
	var gate health.ShutdownGate
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# HELP list_fake\n"))
	})

	tests := []struct {
		name     string
		opts     Options
		path     string
		wantCode int
		wantBody string
	}{
		{"healthy", Options{}, "/-/healthy", http.StatusOK, "ok"},
		{"ready", Options{Readiness: &gate}, "/-/ready", http.StatusOK, "ready"},
		{"metrics", Options{Metrics: metrics}, "/metrics", http.StatusOK, "list_fake"},
		{"metrics unset", Options{}, "/metrics", http.StatusNotFound, ""},
		{"pprof enabled", Options{EnablePprof: true}, "/debug/pprof/", http.StatusOK, ""},
		{"pprof disabled", Options{}, "/debug/pprof/", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, Handler(log.Nop(), tt.opts), tt.path, "127.0.0.1:40000")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandler_ReadinessFollowsGate(t *testing.T) {
	var gate health.ShutdownGate
	h := Handler(log.Nop(), Options{Readiness: &gate})

	gate.Drain("sigterm")
	rec := serve(t, h, "/-/ready", "127.0.0.1:40000")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "sigterm") {
		t.Fatalf("draining: %d %q", rec.Code, rec.Body.String())
	}
	// liveness is unaffected by drain
	if rec := serve(t, h, "/-/healthy", "127.0.0.1:40000"); rec.Code != http.StatusOK {
		t.Fatalf("healthy while draining = %d", rec.Code)
	}
}

func TestRequireNonPublicNetwork(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := requireNonPublicNetwork(log.Nop(), inner)

	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:1", http.StatusOK},
		{"[::1]:1", http.StatusOK},
		{"10.0.0.1:8080", http.StatusOK},
		{"172.16.0.1:8080", http.StatusOK},
		{"192.168.1.1:8080", http.StatusOK},
		{"169.254.1.1:8080", http.StatusOK},
		{"[::ffff:10.0.0.1]:1", http.StatusOK},
		{"8.8.8.8:1", http.StatusForbidden},
		{"203.0.113.1:80", http.StatusForbidden},
		{"[::ffff:8.8.8.8]:1", http.StatusForbidden},
		{"999.999.999.999:1", http.StatusForbidden},
		{"not-an-address", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			if rec := serve(t, h, "/-/healthy", tt.remote); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandler_AllowPublic(t *testing.T) {
	h := Handler(log.Nop(), Options{AllowPublic: true})
	if rec := serve(t, h, "/-/healthy", "8.8.8.8:1"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestStart_Lifecycle(t *testing.T) {
	ctx := context.Background()
	port := freePort(t)

	stop, err := Start(ctx, log.Nop(), Options{Port: port})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Fatalf("healthy = %d %q", resp.StatusCode, body)
	}

	if _, err := Start(ctx, log.Nop(), Options{Port: port}); err == nil {
		t.Fatal("second Start on the same port succeeded")
	}

	for i := 0; i < 2; i++ {
		if err := stop(ctx); err != nil {
			t.Fatalf("stop %d: %v", i, err)
		}
	}
	if _, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port)); err == nil {
		t.Fatal("server still accepting after stop")
	}
}
