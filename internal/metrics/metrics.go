package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/listwebserver/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	panicTotal  prometheus.Counter
	buildInfo   *prometheus.GaugeVec

	profilingActive prometheus.Gauge

	// request gates
	corsRejected  prometheus.Counter
	gateOutcomes  *prometheus.CounterVec
	authRejected  prometheus.Counter
	sessionsNew   prometheus.Counter
	sessionsRenew prometheus.Counter
	loginAttempts *prometheus.CounterVec
	loginLimited  prometheus.Counter
	loginLimitHit prometheus.Counter

	// static generator
	genDuration prometheus.Gauge
	genSuccess  prometheus.Gauge
	genLastRun  prometheus.Gauge
}

// New returns a private registry with the Go and process collectors plus
// the server's own metrics. HTTP labels are limited to method, route
// pattern and status.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx responses by method and route",
		}, []string{"method", "route"}),
		panicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		corsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cors_rejected_total",
			Help: "Requests rejected because their Origin is not whitelisted",
		}),
		gateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "request_gate_terminations_total",
			Help: "Requests ended by a gate before routing, by gate and outcome",
		}, []string{"gate", "outcome"}),
		authRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_rejected_total",
			Help: "API requests rejected for lack of an authenticated session",
		}),
		sessionsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Sessions created, anonymous and at login",
		}),
		sessionsRenew: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessions_refreshed_total",
			Help: "Existing sessions whose expiry was rolled forward",
		}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		loginLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Login requests rejected by the rate limiter",
		}),
		loginLimitHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Times a client first exhausted its login budget",
		}),
		genDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "static_generator_duration_seconds",
			Help: "Wall time of the last static configuration generator run",
		}),
		genSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "static_generator_success",
			Help: "Whether the last generator run exited successfully (1) or not (0)",
		}),
		genLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "static_generator_last_run_timestamp_seconds",
			Help: "Unix time the last generator run finished",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.panicTotal,
		m.buildInfo,
		m.profilingActive,
		m.corsRejected,
		m.gateOutcomes,
		m.authRejected,
		m.sessionsNew,
		m.sessionsRenew,
		m.loginAttempts,
		m.loginLimited,
		m.loginLimitHit,
		m.genDuration,
		m.genSuccess,
		m.genLastRun,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// Registry is exposed for collectors owned elsewhere (active sessions).
func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncHttpPanic() { m.panicTotal.Inc() }

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(boolGauge(active)) }

func (m *ServerMetrics) IncCORSRejected(string) { m.corsRejected.Inc() }

// ObserveGate counts a request terminated by gate with outcome.
func (m *ServerMetrics) ObserveGate(gate, outcome string) {
	m.gateOutcomes.WithLabelValues(gate, outcome).Inc()
}

func (m *ServerMetrics) IncAuthRejected() { m.authRejected.Inc() }

func (m *ServerMetrics) IncSessionCreated() { m.sessionsNew.Inc() }

func (m *ServerMetrics) IncSessionRefreshed() { m.sessionsRenew.Inc() }

// RegisterActiveSessions exposes sessions_active, sampled from count at
// scrape time.
func (m *ServerMetrics) RegisterActiveSessions(count func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Sessions currently held by the store",
	}, func() float64 { return float64(count()) }))
}

func (m *ServerMetrics) IncLoginAttempt(result string) { m.loginAttempts.WithLabelValues(result).Inc() }

func (m *ServerMetrics) IncRateLimitDenied(string) { m.loginLimited.Inc() }

func (m *ServerMetrics) IncRateLimitCapacity(string) { m.loginLimitHit.Inc() }

// ObserveStaticGenerator records one generator run.
func (m *ServerMetrics) ObserveStaticGenerator(d time.Duration, ok bool, finished time.Time) {
	m.genDuration.Set(d.Seconds())
	m.genSuccess.Set(boolGauge(ok))
	m.genLastRun.Set(float64(finished.Unix()))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
