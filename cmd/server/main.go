package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/listwebserver/internal/apihttp"
	"github.com/keithlinneman/listwebserver/internal/auth"
	"github.com/keithlinneman/listwebserver/internal/cfg"
	"github.com/keithlinneman/listwebserver/internal/health"
	"github.com/keithlinneman/listwebserver/internal/httpmw"
	"github.com/keithlinneman/listwebserver/internal/httpserver"
	"github.com/keithlinneman/listwebserver/internal/log"
	"github.com/keithlinneman/listwebserver/internal/metrics"
	"github.com/keithlinneman/listwebserver/internal/opshttp"
	"github.com/keithlinneman/listwebserver/internal/origins"
	"github.com/keithlinneman/listwebserver/internal/otelx"
	"github.com/keithlinneman/listwebserver/internal/pipeline"
	"github.com/keithlinneman/listwebserver/internal/prof"
	"github.com/keithlinneman/listwebserver/internal/ratelimit"
	"github.com/keithlinneman/listwebserver/internal/secrets"
	"github.com/keithlinneman/listwebserver/internal/session"
	"github.com/keithlinneman/listwebserver/internal/staticgen"
	v "github.com/keithlinneman/listwebserver/internal/version"
)

const (
	appName       = "list"
	componentName = "webserver"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s-%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, componentName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix LIST_ and validate
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	// validate config; a bad webapp domain stops us here, before any listener
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	whitelist, err := origins.Derive(conf.WebappDomain)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:               appName + "." + componentName,
		Level:             lvl,
		StacktraceLevel:   &stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", componentName)
	ctx = log.WithContext(ctx, L)

	// secrets and paths are left out on purpose
	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"webapp_domain", conf.WebappDomain,
		"cors_whitelist", whitelist.Entries(),
		"cookie_secret_source", conf.SecretSource().Kind(),
		"session_cookie_secure", conf.SessionCookieSecure,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"login_rate", conf.LoginRate,
		"login_burst", conf.LoginBurst,
		"users_file_configured", conf.AuthUsersFile != "",
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
		"trace_sample", conf.TraceSample,
		"include_error_links", conf.IncludeErrorLinks,
		"max_error_links", conf.MaxErrorLinks,
	)

	// Setup metrics
	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, componentName, &vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName + "." + componentName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": componentName,
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:     conf.EnableTracing,
		Endpoint:    conf.OTLPEndpoint,
		Insecure:    true,
		SampleRatio: conf.TraceSample,
		Service:     appName,
		Component:   componentName,
		Version:     vi.Version,
		Environment: conf.Environment,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Resolve the cookie secret; AWS config is only loaded when a parameter
	// or ciphertext is configured
	secretSrc := conf.SecretSource()
	var awsClients secrets.Clients
	if secretSrc.NeedsAWS() {
		awsClients, err = secrets.NewClients(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
	}
	cookieSecret, err := secrets.Resolve(ctx, secretSrc, awsClients)
	if err != nil {
		L.Error(ctx, err, "failed to resolve cookie secret", "source", secretSrc.Kind())
		os.Exit(1)
	}

	// Sessions: in-memory store swept once a minute
	store := session.NewMemoryStore()
	go store.Run(ctx, time.Minute)
	m.RegisterActiveSessions(store.Len)

	sessions, err := session.NewManager(session.Options{
		Store:       store,
		Secret:      cookieSecret,
		CookieName:  conf.SessionCookieName,
		Secure:      conf.SessionCookieSecure,
		OnCreated:   m.IncSessionCreated,
		OnRefreshed: m.IncSessionRefreshed,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create session manager")
		os.Exit(1)
	}

	// Credential provider; without a users file every login is refused
	var provider auth.Provider = auth.DenyAll{}
	if conf.AuthUsersFile != "" {
		fp, err := auth.LoadFile(conf.AuthUsersFile)
		if err != nil {
			L.Error(ctx, err, "failed to load users file")
			os.Exit(1)
		}
		L.Info(ctx, "loaded users file", "users", fp.Len())
		provider = fp
	} else {
		L.Warn(ctx, "no users file configured, all logins will be refused")
	}

	// Setup rate limiter for the login endpoint
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.LoginRate, conf.LoginBurst),
		// increment prometheus counter on each denied request
		ratelimit.WithOnDenied(m.IncRateLimitDenied),
		// only log the first time an ip is denied each time it is cleaned from the bucket
		ratelimit.WithOnFirstDenied(func(ip string) {
			m.IncRateLimitCapacity(ip)
			L.Warn(ctx, "login rate limit triggered", "client.address", ip)
		}),
	)

	authHandlers := &auth.Handlers{
		Sessions:     sessions,
		Provider:     provider,
		LoginLimiter: limiter.Middleware,
		OnAttempt:    m.IncLoginAttempt,
	}

	// Generate static configurations in the background. Serving never waits
	// for it and a failure only shows up in logs, metrics and /api/status.
	var genStatus staticgen.Status
	staticgen.Start(ctx, staticgen.Options{
		Generator:  conf.StaticGenerator,
		DataFolder: conf.DataFolder,
		Logger:     L,
		OnDone: func(res staticgen.Result) {
			now := time.Now()
			genStatus.Record(res, now)
			m.ObserveStaticGenerator(res.Duration, res.ExitSucceeded, now)
		},
	})

	api := apihttp.NewAPI(&genStatus, vi)

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// start public http server
	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Whitelist:    whitelist,
		BaseDomain:   conf.WebappDomain,
		CORSMaxAge:   10 * time.Minute,
		Sessions:     sessions,
		Routes:       []func(chi.Router){authHandlers.Routes, api.RegisterRoutes},
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		UseRecoverMW: true,
		MetricsMW:    m.Middleware,
		OnPanic:      m.IncHttpPanic,
		OnCORSReject: m.IncCORSRejected,
		OnAuthReject: m.IncAuthRejected,
		ObserveGate: func(name string, out pipeline.Outcome) {
			m.ObserveGate(name, out.Kind.String())
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start public http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks and pprof
	// non-public peers only, enforced in opshttp in case the firewall is misconfigured
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Liveness:    health.Fixed(true, ""),
		Readiness:   &gate,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	// fail readiness so the load balancer stops sending new requests
	gate.Drain("shutting down")
	L.Info(bg, "shutdown gate closed, draining", "drain", conf.ShutdownDrain.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.ShutdownDrain):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "public http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()

	L.Info(bg, "shutdown complete")
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
