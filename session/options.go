package session

import (
	"log/slog"

	"github.com/nomadproto/nomad/cryptosession"
	"github.com/nomadproto/nomad/metrics"
)

// roleLabel renders a Role as the lowercase label used on every
// role-dimensioned metric and log line.
func roleLabel(r cryptosession.Role) string {
	if r == cryptosession.RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// observability bundles the optional logging/metrics hooks a host may
// attach to a Session. The zero value is safe to use directly: a nil
// *slog.Logger falls back to slog.Default(), and every metrics.Collector
// method tolerates a nil receiver.
type observability struct {
	log     *slog.Logger
	metrics *metrics.Collector
}

func (o observability) logger() *slog.Logger {
	if o.log == nil {
		return slog.Default()
	}
	return o.log
}

// Option configures optional Session behavior not carried by the
// required Open/Accept arguments.
type Option func(*observability)

// WithLogger attaches a structured logger. Without this option a
// Session logs to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *observability) { o.log = l }
}

// WithMetrics attaches a Prometheus collector. Without this option a
// Session's metrics calls are no-ops.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *observability) { o.metrics = c }
}

func buildObservability(opts []Option) observability {
	var o observability
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
