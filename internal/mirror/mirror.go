// Package mirror copies dispatched alerts to operator channels outside
// Web Push. Mirroring is best effort and never changes a dispatch result.
package mirror

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/circuitbreaker"
	"github.com/lalithlochan/pushwatch/internal/metrics"
)

// Notice is what gets mirrored after a dispatch.
type Notice struct {
	Tag       string    `json:"tag"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	SentAt    time.Time `json:"sent_at"`
}

// Sink is one mirror destination.
type Sink interface {
	Name() string
	Forward(ctx context.Context, n Notice) error
}

// Mirror fans a Notice out to every configured sink.
type Mirror struct {
	sinks  []Sink
	logger *zap.Logger
}

// New creates a Mirror. Each sink gets its own circuit breaker.
func New(logger *zap.Logger, sinks ...Sink) *Mirror {
	protected := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		protected = append(protected, NewProtectedSink(s, circuitbreaker.New(circuitbreaker.DefaultConfig(s.Name()), logger)))
	}
	return &Mirror{sinks: protected, logger: logger}
}

// Len returns the number of sinks.
func (m *Mirror) Len() int {
	return len(m.sinks)
}

// BreakerStates maps each sink name to its breaker state.
func (m *Mirror) BreakerStates() map[string]string {
	states := make(map[string]string, len(m.sinks))
	for _, s := range m.sinks {
		if p, ok := s.(*ProtectedSink); ok {
			states[s.Name()] = p.Breaker().GetState().String()
		}
	}
	return states
}

// Forward sends n to every sink, logging failures.
func (m *Mirror) Forward(ctx context.Context, n Notice) {
	for _, s := range m.sinks {
		if err := s.Forward(ctx, n); err != nil {
			metrics.RecordMirror(s.Name(), "failed")
			m.logger.Warn("mirror forward failed",
				zap.String("sink", s.Name()),
				zap.String("tag", n.Tag),
				zap.Error(err),
			)
			continue
		}
		metrics.RecordMirror(s.Name(), "sent")
	}
}

// ProtectedSink guards a Sink with a circuit breaker so a dead AWS
// endpoint fails fast instead of stretching every trigger run.
type ProtectedSink struct {
	sink    Sink
	breaker *circuitbreaker.CircuitBreaker
}

// NewProtectedSink wraps sink with breaker.
func NewProtectedSink(sink Sink, breaker *circuitbreaker.CircuitBreaker) *ProtectedSink {
	return &ProtectedSink{sink: sink, breaker: breaker}
}

func (p *ProtectedSink) Name() string { return p.sink.Name() }

func (p *ProtectedSink) Forward(ctx context.Context, n Notice) error {
	return p.breaker.Execute(func() error {
		return p.sink.Forward(ctx, n)
	})
}

// Breaker returns the breaker guarding the sink.
func (p *ProtectedSink) Breaker() *circuitbreaker.CircuitBreaker {
	return p.breaker
}
