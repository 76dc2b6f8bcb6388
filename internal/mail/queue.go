package mail

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrQueueFull is returned by Enqueue when the buffer is saturated.
var ErrQueueFull = errors.New("mail queue full")

// Metrics counts delivery outcomes.
type Metrics struct {
	Delivered prometheus.Counter
	Failed    prometheus.Counter
	Dropped   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Delivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "pollworker_mail_delivered_total",
			Help: "Verification emails handed to the transport",
		}),
		Failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pollworker_mail_failed_total",
			Help: "Verification emails the transport rejected",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "pollworker_mail_dropped_total",
			Help: "Verification emails dropped because the queue was full",
		}),
	}
}

// Queue renders verification emails and hands them to a Sender from a
// background worker so callers never wait on delivery.
type Queue struct {
	renderer *Renderer
	sender   Sender
	messages chan Message
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Queue)

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

func NewQueue(renderer *Renderer, sender Sender, size int, opts ...Option) *Queue {
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		renderer: renderer,
		sender:   sender,
		messages: make(chan Message, size),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SendVerification renders and enqueues the verification email.
func (q *Queue) SendVerification(_ context.Context, name, address, token string) error {
	msg, err := q.renderer.Verification(name, address, token)
	if err != nil {
		return err
	}
	return q.Enqueue(msg)
}

// Enqueue buffers msg without blocking.
func (q *Queue) Enqueue(msg Message) error {
	select {
	case q.messages <- msg:
		return nil
	default:
		if q.metrics != nil {
			q.metrics.Dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Run delivers queued messages until ctx is cancelled, then drains what is
// already buffered.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-q.messages:
			q.deliver(ctx, msg)
		case <-ctx.Done():
			q.drain()
			return nil
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case msg := <-q.messages:
			q.deliver(context.Background(), msg)
		default:
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, msg Message) {
	if err := q.sender.Send(ctx, msg); err != nil {
		q.logger.ErrorContext(ctx, "failed to deliver email", "to", msg.To, "error", err)
		if q.metrics != nil {
			q.metrics.Failed.Inc()
		}
		return
	}
	if q.metrics != nil {
		q.metrics.Delivered.Inc()
	}
}
