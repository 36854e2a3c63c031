package capture

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/payconnector/internal/domain"
)

var (
	captureAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_capture_attempts_total",
		Help: "Capture attempts made by the queue processor, labeled by outcome",
	}, []string{"outcome"})

	captureBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "connector_capture_batch_size",
		Help:    "Messages received per capture queue poll",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
	})
)

// Capturer performs and abandons captures.
type Capturer interface {
	// Capture returns *domain.IllegalStateError when the charge is no longer
	// awaiting capture.
	Capture(ctx context.Context, chargeExternalID string) error
	MarkCaptureError(ctx context.Context, chargeExternalID string) error
}

// ProcessorConfig tunes polling and concurrency.
type ProcessorConfig struct {
	BatchSize    int
	Workers      int
	PollInterval time.Duration
	Retry        RetryPolicy
}

// Processor pulls capture messages and applies the retry policy to each.
type Processor struct {
	queue    Queue
	capturer Capturer
	cfg      ProcessorConfig
	logger   *zap.Logger
}

func NewProcessor(q Queue, c Capturer, cfg ProcessorConfig, logger *zap.Logger) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	return &Processor{queue: q, capturer: c, cfg: cfg, logger: logger}
}

// Run polls until ctx is cancelled. Received messages are fanned out to a
// fixed pool of workers.
func (p *Processor) Run(ctx context.Context) error {
	jobs := make(chan Message, p.cfg.BatchSize)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			for msg := range jobs {
				p.Process(gctx, msg)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()
		for {
			msgs, err := p.queue.Receive(gctx, p.cfg.BatchSize)
			if err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("capture queue receive failed", zap.Error(err))
			}
			captureBatchSize.Observe(float64(len(msgs)))
			for _, msg := range msgs {
				select {
				case jobs <- msg:
				case <-gctx.Done():
					return nil
				}
			}
			// A full batch suggests more is waiting.
			if len(msgs) == p.cfg.BatchSize {
				continue
			}
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	p.logger.Info("capture processor started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Duration("poll_interval", p.cfg.PollInterval),
	)
	return g.Wait()
}

// ProcessBatch receives and processes one batch synchronously. It returns the
// number of messages handled.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	msgs, err := p.queue.Receive(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		p.Process(ctx, msg)
	}
	return len(msgs), nil
}

// Process applies the capture policy to one message:
// success and lost races remove it, failures are rescheduled until the retry
// policy is exhausted, after which the charge is marked CAPTURE_ERROR once.
func (p *Processor) Process(ctx context.Context, msg Message) {
	log := p.logger.With(
		zap.String("charge_id", msg.ChargeExternalID),
		zap.Int("delivery_count", msg.DeliveryCount),
	)

	err := p.capturer.Capture(ctx, msg.ChargeExternalID)
	var illegal *domain.IllegalStateError
	switch {
	case err == nil:
		p.done(ctx, log, msg, "captured")
	case errors.As(err, &illegal):
		log.Info("charge no longer awaiting capture", zap.String("status", string(illegal.From)))
		p.done(ctx, log, msg, "absorbed")
	case p.cfg.Retry.Exhausted(msg.DeliveryCount):
		log.Error("capture retries exhausted", zap.Error(err))
		if markErr := p.capturer.MarkCaptureError(ctx, msg.ChargeExternalID); markErr != nil {
			if !errors.As(markErr, &illegal) {
				// Leave the message to reappear so the error is recorded later.
				log.Error("failed to mark capture error", zap.Error(markErr))
				captureAttemptsTotal.WithLabelValues("mark_failed").Inc()
				return
			}
		}
		p.done(ctx, log, msg, "exhausted")
	default:
		delay := p.cfg.Retry.Backoff(msg.DeliveryCount)
		log.Warn("capture failed, rescheduling", zap.Duration("delay", delay), zap.Error(err))
		if err := p.queue.Reschedule(ctx, msg, delay); err != nil {
			log.Error("failed to reschedule capture", zap.Error(err))
		}
		captureAttemptsTotal.WithLabelValues("rescheduled").Inc()
	}
}

func (p *Processor) done(ctx context.Context, log *zap.Logger, msg Message, outcome string) {
	captureAttemptsTotal.WithLabelValues(outcome).Inc()
	if err := p.queue.MarkProcessed(ctx, msg); err != nil {
		log.Error("failed to remove capture message", zap.Error(err))
	}
}
