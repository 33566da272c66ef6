package receipts

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/masterco/lahza-server/internal/logger"
	"github.com/masterco/lahza-server/internal/payments"
)

// Outbox queues receipts for asynchronous delivery with bounded retries.
// Enqueue never blocks the payment path: a full queue drops the receipt with
// a loud log line instead of stalling a webhook response.
type Outbox struct {
	notifier      Notifier
	queue         chan payments.Record
	maxAttempts   int
	retryInterval time.Duration
	logger        zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// OutboxConfig tunes queue capacity and retry behavior.
type OutboxConfig struct {
	QueueSize     int
	MaxAttempts   int
	RetryInterval time.Duration
}

// NewOutbox builds an outbox around a notifier. Start must be called before
// receipts flow.
func NewOutbox(notifier Notifier, cfg OutboxConfig) *Outbox {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	return &Outbox{
		notifier:      notifier,
		queue:         make(chan payments.Record, cfg.QueueSize),
		maxAttempts:   cfg.MaxAttempts,
		retryInterval: cfg.RetryInterval,
		logger:        log.With().Str("component", "receipt_outbox").Logger(),
		done:          make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (o *Outbox) Start() {
	o.startOnce.Do(func() {
		o.wg.Add(1)
		go o.run()
	})
}

// Enqueue schedules a receipt. Returns false if the queue is full or the
// outbox is stopped.
func (o *Outbox) Enqueue(rec payments.Record) bool {
	select {
	case <-o.done:
		return false
	default:
	}

	select {
	case o.queue <- rec:
		return true
	default:
		o.logger.Error().
			Str("reference", rec.Reference).
			Msg("receipt queue full, dropping receipt")
		return false
	}
}

// Close stops the worker after draining queued receipts.
func (o *Outbox) Close() error {
	o.stopOnce.Do(func() {
		close(o.done)
		close(o.queue)
	})
	o.wg.Wait()
	return nil
}

func (o *Outbox) run() {
	defer o.wg.Done()
	for rec := range o.queue {
		o.deliver(rec)
	}
}

func (o *Outbox) deliver(rec payments.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		lastErr = o.notifier.Send(ctx, rec)
		if lastErr == nil {
			return
		}
		o.logger.Warn().
			Err(lastErr).
			Str("reference", rec.Reference).
			Str("email", logger.RedactEmail(rec.Email)).
			Int("attempt", attempt).
			Msg("receipt delivery failed")

		if attempt < o.maxAttempts {
			select {
			case <-time.After(o.retryInterval):
			case <-ctx.Done():
				attempt = o.maxAttempts
			}
		}
	}

	o.logger.Error().
		Err(lastErr).
		Str("reference", rec.Reference).
		Msg("receipt delivery abandoned")
}
