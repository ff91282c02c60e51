package scanner

import (
	"github.com/seqprobe/seqprobe/internal/dedup"
	"github.com/seqprobe/seqprobe/internal/gate"
	"github.com/seqprobe/seqprobe/internal/identity"
	"github.com/seqprobe/seqprobe/internal/logger"
	"github.com/seqprobe/seqprobe/internal/metrics"
	"github.com/seqprobe/seqprobe/internal/ratelimit"
)

// Option is a functional option for configuring a Scanner.
type Option func(*Scanner) error

// WithLogger sets the structured logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Scanner) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// WithMetrics attaches a metrics collector shared with the hosting service.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Scanner) error {
		s.collector = collector
		return nil
	}
}

// WithIdentityPool overrides the client identity pool.
func WithIdentityPool(pool *identity.Pool) Option {
	return func(s *Scanner) error {
		if pool != nil {
			s.pool = pool
		}
		return nil
	}
}

// WithGateConfig overrides gate detection behavior (keyword set, stages,
// poll bound).
func WithGateConfig(cfg gate.Config) Option {
	return func(s *Scanner) error {
		s.gateConfig = cfg
		return nil
	}
}

// WithClassifier overrides response classification.
func WithClassifier(cl *Classifier) Option {
	return func(s *Scanner) error {
		s.classifier = cl
		return nil
	}
}

// WithDeduper overrides the payload deduplicator.
func WithDeduper(d *dedup.BodyDeduper) Option {
	return func(s *Scanner) error {
		s.deduper = d
		return nil
	}
}

// WithDelayer overrides the inter-probe delayer.
func WithDelayer(d *ratelimit.Delayer) Option {
	return func(s *Scanner) error {
		if d != nil {
			s.delayer = d
		}
		return nil
	}
}

// WithProber fixes the probe strategy, bypassing the built-in fetch/click
// selection and the browser phase entirely.
func WithProber(p Prober) Option {
	return func(s *Scanner) error {
		s.prober = p
		return nil
	}
}

// WithSessionFactory overrides how browser sessions are opened.
func WithSessionFactory(factory SessionFactory) Option {
	return func(s *Scanner) error {
		if factory != nil {
			s.sessions = factory
		}
		return nil
	}
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(s *Scanner) error {
		if n > 0 {
			s.eventBuffer = n
		}
		return nil
	}
}
