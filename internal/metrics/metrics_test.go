package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/listwebserver/internal/version"
)

// family gathers the registry and returns the named family, or nil
func family(t *testing.T, m *ServerMetrics, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := m.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// value returns the single sample of a counter or gauge family whose labels
// include want
func value(t *testing.T, m *ServerMetrics, name string, want map[string]string) float64 {
	t.Helper()
	mf := family(t, m, name)
	if mf == nil {
		t.Fatalf("metric %s not registered", name)
	}
	for _, mt := range mf.GetMetric() {
		if !hasLabels(mt, want) {
			continue
		}
		switch {
		case mt.GetCounter() != nil:
			return mt.GetCounter().GetValue()
		case mt.GetGauge() != nil:
			return mt.GetGauge().GetValue()
		case mt.GetHistogram() != nil:
			return float64(mt.GetHistogram().GetSampleCount())
		}
	}
	t.Fatalf("no %s sample with labels %v", name, want)
	return 0
}

func hasLabels(mt *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range mt.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNew_ScrapeExposesCoreMetrics(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"go_goroutines",
		"http_inflight_requests",
		"http_panic_total",
		"cors_rejected_total",
		"auth_rejected_total",
		"sessions_created_total",
		"static_generator_success",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("%s missing from scrape", name)
		}
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncCORSRejected("http://evil.example")
	m.IncCORSRejected("http://evil.example")
	m.IncAuthRejected()
	m.IncSessionCreated()
	m.IncSessionRefreshed()
	m.IncSessionRefreshed()
	m.IncLoginAttempt("invalid")
	m.IncLoginAttempt("success")
	m.IncLoginAttempt("invalid")
	m.IncRateLimitDenied("10.0.0.1")
	m.IncRateLimitCapacity("10.0.0.1")
	m.ObserveGate("cors", "rejected")
	m.IncHttpPanic()

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"cors_rejected_total", nil, 2},
		{"auth_rejected_total", nil, 1},
		{"sessions_created_total", nil, 1},
		{"sessions_refreshed_total", nil, 2},
		{"auth_login_attempts_total", map[string]string{"result": "invalid"}, 2},
		{"auth_login_attempts_total", map[string]string{"result": "success"}, 1},
		{"http_requests_rate_limited_total", nil, 1},
		{"http_requests_rate_limited_capacity_total", nil, 1},
		{"request_gate_terminations_total", map[string]string{"gate": "cors", "outcome": "rejected"}, 1},
		{"http_panic_total", nil, 1},
	}
	for _, tt := range tests {
		if got := value(t, m, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestRegisterActiveSessions(t *testing.T) {
	m := New()
	n := 3
	m.RegisterActiveSessions(func() int { return n })
	if got := value(t, m, "sessions_active", nil); got != 3 {
		t.Fatalf("sessions_active = %v", got)
	}
	n = 5
	if got := value(t, m, "sessions_active", nil); got != 5 {
		t.Fatalf("sessions_active not sampled at scrape: %v", got)
	}
}

func TestObserveStaticGenerator(t *testing.T) {
	m := New()
	done := time.Unix(1_750_000_000, 0)
	m.ObserveStaticGenerator(1500*time.Millisecond, false, done)

	if got := value(t, m, "static_generator_duration_seconds", nil); got != 1.5 {
		t.Fatalf("duration = %v", got)
	}
	if got := value(t, m, "static_generator_success", nil); got != 0 {
		t.Fatalf("success = %v", got)
	}
	if got := value(t, m, "static_generator_last_run_timestamp_seconds", nil); got != float64(done.Unix()) {
		t.Fatalf("last run = %v", got)
	}
	m.ObserveStaticGenerator(time.Second, true, done)
	if got := value(t, m, "static_generator_success", nil); got != 1 {
		t.Fatalf("success = %v", got)
	}
}

func TestSetBuildInfoFromVersion(t *testing.T) {
	m := New()
	dirty := true
	m.SetBuildInfoFromVersion("list", "server", &version.Info{Version: "v1.2.3", Commit: "abc", VCSDirty: &dirty})
	if got := value(t, m, "build_info", map[string]string{"app": "list", "version": "v1.2.3", "vcs_dirty": "true"}); got != 1 {
		t.Fatalf("build_info = %v", got)
	}
}

func TestSetProfilingActive(t *testing.T) {
	m := New()
	m.SetProfilingActive(true)
	if got := value(t, m, "profiling_active", nil); got != 1 {
		t.Fatalf("profiling_active = %v", got)
	}
	m.SetProfilingActive(false)
	if got := value(t, m, "profiling_active", nil); got != 0 {
		t.Fatalf("profiling_active = %v", got)
	}
}
