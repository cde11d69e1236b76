package blizzard

import "log"

// config collects Option values applied at Session construction.
type config struct {
	logger             *log.Logger
	maxBufferSize      int
	metrics            Instrumentation
	audit              Recorder
	cancelPendingOnEnd bool
}

func defaultConfig() config {
	return config{
		logger:        log.Default(),
		maxBufferSize: 0,
	}
}

// Option configures a Session at construction.
type Option func(*config)

// WithLogger sets the *log.Logger a Session writes diagnostic lines to.
// Lines are prefixed "blizzard: <component>: ...". Defaults to
// log.Default() when unset, and a nil l falls back to log.Default() too.
func WithLogger(l *log.Logger) Option {
	if l == nil {
		l = log.Default()
	}
	return func(c *config) { c.logger = l }
}

// WithMaxBufferSize caps the size, in bytes, of an in-progress binary
// reassembly buffer. This is a policy knob, not a protocol rule; zero, the
// default, means unbounded.
func WithMaxBufferSize(n int) Option {
	return func(c *config) { c.maxBufferSize = n }
}

// WithMetrics attaches an Instrumentation sink. Omit to disable metrics
// entirely.
func WithMetrics(m Instrumentation) Option {
	return func(c *config) { c.metrics = m }
}

// WithAuditLog attaches a Recorder sink that observes every dispatched
// message. Omit to disable auditing entirely.
func WithAuditLog(r Recorder) Option {
	return func(c *config) { c.audit = r }
}

// WithCancelPendingOnEnd, when set, invokes every still-pending request
// completion with a *RemoteError (code ErrorInternal, message
// ErrSessionEnded's text) when the session ends. This is
// higher-layer policy rather than a core protocol rule; the default
// (false) leaves pending completions untouched on end.
func WithCancelPendingOnEnd(enable bool) Option {
	return func(c *config) { c.cancelPendingOnEnd = enable }
}
