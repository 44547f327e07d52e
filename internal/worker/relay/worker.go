package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/payment-sms-relay/internal/queue"
	"github.com/wolfman30/payment-sms-relay/internal/settings"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	deleteTimeoutSeconds = 5
	maxReceiveBackoff    = 5 * time.Second
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	alerter          Alerter
}

// Option customizes worker behavior.
type Option func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) Option {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait per receive.
func WithReceiveWaitSeconds(seconds int) Option {
	return func(cfg *workerConfig) {
		if seconds >= 0 {
			cfg.receiveWaitSecs = seconds
		}
	}
}

func WithReceiveBatchSize(size int) Option {
	return func(cfg *workerConfig) {
		if size > 0 {
			cfg.receiveBatchSize = size
		}
	}
}

// WithAlerter wires an operator alert for abandoned deliveries.
func WithAlerter(a Alerter) Option {
	return func(cfg *workerConfig) {
		cfg.alerter = a
	}
}

// Worker consumes inbound SMS from the queue, filters them and hands payment
// messages to the delivery agent. Every message is deleted as soon as it is
// received and then handled once, whatever the outcome.
type Worker struct {
	queue   queue.Queue
	handler *Handler
	logger  *logging.Logger
	cfg     workerConfig
	wg      sync.WaitGroup
}

func NewWorker(q queue.Queue, store settings.Store, deliverer Deliverer, logger *logging.Logger, opts ...Option) *Worker {
	if q == nil {
		panic("relay: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		queue:   q,
		handler: NewHandler(store, deliverer, cfg.alerter, logger),
		logger:  logger.Component("relay"),
		cfg:     cfg,
	}
}

// Start launches the consumer goroutines. They exit when ctx is cancelled;
// a delivery already in progress runs to completion first.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until every consumer has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("relay worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			w.logger.Debug("relay worker stopping", "worker_id", workerID)
			return
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.logger.Error("failed to receive inbound sms", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxReceiveBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage acknowledges before handling: a message may be lost to a
// crash but is never redelivered after its POST.
func (w *Worker) handleMessage(ctx context.Context, qm queue.Message) {
	w.deleteMessage(qm.ReceiptHandle)
	w.handler.Handle(ctx, qm)
}

func (w *Worker) deleteMessage(receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound sms", "error", err)
	}
}
