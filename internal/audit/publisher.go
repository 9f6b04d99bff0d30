package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"conductor-console/pkg/platform/middleware/metadata"
	"conductor-console/pkg/requestcontext"
)

// Publisher enriches events with request metadata and hands them to a
// store, synchronously or through a bounded buffer drained by a Worker.
type Publisher struct {
	store  Store
	logger *slog.Logger
	clock  clockwork.Clock

	bufferSize int
	inbox      chan Event
	done       chan struct{}
	closeOnce  sync.Once
	dropped    atomic.Int64
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking. Events beyond size are dropped
// and counted.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.bufferSize = size
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(p *Publisher) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan Event, p.bufferSize)
		p.done = make(chan struct{})
		worker := NewWorker(store, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = worker.Run(context.Background())
		}()
	}
	return p
}

// Emit records event. In async mode it never blocks and never fails.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	event = p.enrich(ctx, event)
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
	default:
		dropped := p.dropped.Add(1)
		p.logger.WarnContext(ctx, "audit buffer full, event dropped",
			"action", event.Action,
			"dropped_total", dropped,
			"request_id", event.RequestID,
		)
	}
	return nil
}

// Dropped reports how many events the async buffer rejected.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close drains buffered events and stops the worker.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.inbox)
		<-p.done
	})
}

func (p *Publisher) enrich(ctx context.Context, event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock.Now()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.DeviceID == "" {
		event.DeviceID = requestcontext.DeviceID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = metadata.GetClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = metadata.GetUserAgent(ctx)
	}
	if event.Device == "" && event.UserAgent != "" {
		event.Device = DeviceLabel(event.UserAgent)
	}
	return event
}
