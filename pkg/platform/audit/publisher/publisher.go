// Package publisher delivers audit events to a sink, either inline or through
// a bounded buffer drained by one background goroutine.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "dab/pkg/platform/audit"
	"dab/pkg/platform/circuit"
)

// Publisher emits audit events. The zero buffer size means synchronous mode.
type Publisher struct {
	sink       audit.Sink
	fallback   audit.Sink
	breaker    *circuit.Breaker
	logger     *slog.Logger
	bufferSize int

	queue     chan audit.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches to asynchronous delivery with a buffer of size n.
// Events emitted while the buffer is full are dropped and logged.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithFallback routes events to fallback when the primary sink fails. After
// repeated failures the breaker opens and the primary is only retried once
// per cooldown.
func WithFallback(fallback audit.Sink, opts ...circuit.Option) Option {
	return func(p *Publisher) {
		p.fallback = fallback
		p.breaker = circuit.New("audit-sink", opts...)
	}
}

func NewPublisher(sink audit.Sink, opts ...Option) *Publisher {
	p := &Publisher{sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.bufferSize > 0 {
		p.queue = make(chan audit.Event, p.bufferSize)
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event, stamping Timestamp and Category when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.queue == nil {
		return p.deliver(ctx, event)
	}
	select {
	case p.queue <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"subject", event.Subject,
		)
	}
	return nil
}

// Close stops accepting async events and drains the buffer. Safe to call more than once.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.queue != nil {
			close(p.queue)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.queue {
		if err := p.deliver(context.Background(), event); err != nil {
			p.logger.Error("failed to append audit event",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, event audit.Event) error {
	if p.fallback == nil {
		return p.sink.Append(ctx, event)
	}
	if !p.breaker.Allow() {
		return p.fallback.Append(ctx, event)
	}

	err := p.sink.Append(ctx, event)
	if err == nil {
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.logger.InfoContext(ctx, "audit sink recovered", "breaker", p.breaker.Name())
		}
		return nil
	}

	if _, change := p.breaker.RecordFailure(); change.Opened {
		p.logger.WarnContext(ctx, "audit sink failing, using fallback",
			"breaker", p.breaker.Name(),
			"error", err,
		)
	}
	return p.fallback.Append(ctx, event)
}
