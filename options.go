package lexivec

import (
	"github.com/histtext/lexivec/telemetry"
)

type options struct {
	logger *Logger
	stats  *telemetry.Stats
}

// Option configures Service construction.
type Option func(*options)

// WithLogger sets the service logger. Nil selects a stderr text logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithStats shares a telemetry sink between the service and the cache
// manager. If unset the cache manager's sink is used.
func WithStats(s *telemetry.Stats) Option {
	return func(o *options) {
		o.stats = s
	}
}
