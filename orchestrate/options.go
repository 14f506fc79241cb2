package orchestrate

import (
	"log/slog"

	"github.com/xraph/outcall"
	"github.com/xraph/outcall/backoff"
	"github.com/xraph/outcall/cache"
	"github.com/xraph/outcall/contenthash"
	"github.com/xraph/outcall/correlate"
	"github.com/xraph/outcall/middleware"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the default configuration.
func WithConfig(cfg outcall.Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithCache injects the result cache. The caller owns its lifecycle; the
// orchestrator will not close an injected cache on Stop.
func WithCache(c *cache.Cache) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.cache = c
			o.ownsCache = false
		}
	}
}

// WithHasher injects the content hasher, e.g. one configured with
// contenthash.WithNormalizedText.
func WithHasher(h *contenthash.Hasher) Option {
	return func(o *Orchestrator) {
		if h != nil {
			o.hasher = h
		}
	}
}

// WithCorrelator injects the callback correlation manager. The caller owns
// its lifecycle.
func WithCorrelator(m *correlate.Manager) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.correlator = m
			o.ownsCorrelator = false
		}
	}
}

// WithResetNotifier sets the external state-reset hook invoked on failure
// terminals.
func WithResetNotifier(n ResetNotifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBackoff replaces the backoff strategy derived from the configured
// schedule.
func WithBackoff(s backoff.Strategy) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.backoff = s
		}
	}
}

// WithMiddleware appends attempt middleware, run between the built-in
// logging and the per-attempt timeout.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *Orchestrator) {
		o.middlewares = append(o.middlewares, mws...)
	}
}
