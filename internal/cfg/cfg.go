package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/listwebserver/internal/log"
	"github.com/keithlinneman/listwebserver/internal/origins"
	"github.com/keithlinneman/listwebserver/internal/secrets"
)

// EnvPrefix is prepended to upper-cased flag names, so -webapp-domain reads
// LIST_WEBAPP_DOMAIN.
const EnvPrefix = "LIST_"

type App struct {
	WebappDomain string

	CookieSecret              string
	CookieSecretSSMParam      string
	CookieSecretKMSCiphertext string
	SessionCookieName         string
	SessionCookieSecure       bool

	StaticGenerator string
	DataFolder      string
	AuthUsersFile   string

	HTTPPort         int
	AdminPort        int
	TrustedProxyHops int
	LoginRate        float64
	LoginBurst       int
	ShutdownDrain    time.Duration

	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64
	Environment     string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.WebappDomain, "webapp-domain", "", "base domain of the browser app, e.g. https://list.example.com (required)")

	fs.StringVar(&c.CookieSecret, "cookie-secret", "", "session cookie signing secret (literal)")
	fs.StringVar(&c.CookieSecretSSMParam, "cookie-secret-ssm-param", "", "ssm SecureString parameter holding the session cookie secret")
	fs.StringVar(&c.CookieSecretKMSCiphertext, "cookie-secret-kms-ciphertext", "", "base64 kms ciphertext of the session cookie secret")
	fs.StringVar(&c.SessionCookieName, "session-cookie-name", "list.sid", "session cookie name")
	fs.BoolVar(&c.SessionCookieSecure, "session-cookie-secure", true, "mark the session cookie Secure (SameSite=None)")

	fs.StringVar(&c.StaticGenerator, "static-generator", "", "static configuration generator executable (required)")
	fs.StringVar(&c.DataFolder, "data-folder", "", "folder passed to the static generator (required)")
	fs.StringVar(&c.AuthUsersFile, "auth-users-file", "", "yaml file of users and bcrypt hashes; empty denies every login")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 1, "X-Forwarded-For entries appended by trusted proxies (0 ignores the header)")
	fs.Float64Var(&c.LoginRate, "login-rate", 0.2, "login attempts per second per client address")
	fs.IntVar(&c.LoginBurst, "login-burst", 5, "login attempt burst per client address")
	fs.DurationVar(&c.ShutdownDrain, "shutdown-drain", 5*time.Second, "time between failing readiness and closing the listener")

	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.Environment, "environment", "", "deployment environment reported on traces")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value overrides env %s", f.Name, key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				// secrets come through here, so the value is never echoed
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// EnvKey maps a flag name to its environment variable.
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// SecretSource is the configured cookie secret location.
func (c App) SecretSource() secrets.Source {
	return secrets.Source{
		Literal:       c.CookieSecret,
		SSMParam:      c.CookieSecretSSMParam,
		KMSCiphertext: c.CookieSecretKMSCiphertext,
	}
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Webapp domain: the whitelist must be derivable before anything listens
	if c.WebappDomain == "" {
		errs = append(errs, fmt.Errorf("WEBAPP_DOMAIN is required"))
	} else if _, err := origins.Derive(c.WebappDomain); err != nil {
		errs = append(errs, err)
	}

	if err := c.SecretSource().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cookie secret: %w", err))
	}
	if c.SessionCookieName == "" {
		errs = append(errs, fmt.Errorf("SESSION_COOKIE_NAME must not be empty"))
	}

	// Static generator
	if c.StaticGenerator == "" {
		errs = append(errs, fmt.Errorf("STATIC_GENERATOR is required"))
	}
	if c.DataFolder == "" {
		errs = append(errs, fmt.Errorf("DATA_FOLDER is required"))
	}

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 8 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be 0..8 (got %d)", c.TrustedProxyHops))
	}
	if c.LoginRate <= 0 {
		errs = append(errs, fmt.Errorf("LOGIN_RATE must be > 0 (got %g)", c.LoginRate))
	}
	if c.LoginBurst < 1 {
		errs = append(errs, fmt.Errorf("LOGIN_BURST must be >= 1 (got %d)", c.LoginBurst))
	}
	if c.ShutdownDrain < 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_DRAIN must not be negative (got %s)", c.ShutdownDrain))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Pyroscope (URL, scheme and tenant)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	return errors.Join(errs...)
}
