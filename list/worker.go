package list

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/migadu/ezlist/logger"
	"github.com/migadu/ezlist/pkg/metrics"
)

// Inbox yields pending inbound messages and supports acknowledging a
// processed message so it is not seen again. FetchPending returns a finite
// batch; the next poll cycle fetches again. Close ends the current session
// (for IMAP, expunging acknowledged messages).
type Inbox interface {
	FetchPending(ctx context.Context) ([]*InboundMessage, error)
	Acknowledge(ctx context.Context, id string) error
	Close() error
}

// Worker runs the poll loop: one blocking fetch, strictly serial
// processing of the batch, then sleep until the next tick. Fetch failures
// are transient (the mail server will come back); processing errors are
// systemic and stop the loop through errCh.
type Worker struct {
	inbox    Inbox
	manager  *Manager
	interval time.Duration
	errCh    chan<- error
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewWorker creates a poll loop worker. Fatal errors are reported on errCh.
func NewWorker(inbox Inbox, manager *Manager, interval time.Duration, errCh chan<- error) *Worker {
	return &Worker{
		inbox:    inbox,
		manager:  manager,
		interval: interval,
		errCh:    errCh,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the poll loop. Safe to call once.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	logger.Info("Worker: poll loop started", "interval", w.interval.String())
}

func (w *Worker) run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.wg.Done()
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Process immediately on start
	if err := w.poll(ctx); err != nil {
		w.reportError(err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker: poll loop stopped due to context cancellation")
			return
		case <-w.stopCh:
			logger.Info("Worker: poll loop stopped due to stop signal")
			return
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				w.reportError(err)
				return
			}
		}
	}
}

// Stop gracefully stops the worker and waits for the loop to exit.
// Safe to call multiple times.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()

	logger.Info("Worker: poll loop stopped")
}

// poll runs one cycle, treating inbox fetch failures as transient: they
// are logged and the cycle is skipped, to be retried on the next tick.
func (w *Worker) poll(ctx context.Context) error {
	messages, err := w.inbox.FetchPending(ctx)
	if err != nil {
		logger.Warn("Worker: inbox fetch failed, will retry next cycle", "error", err)
		metrics.PollCycles.WithLabelValues("fetch_error").Inc()
		return nil
	}
	defer w.inbox.Close()

	if err := w.processBatch(ctx, messages); err != nil {
		metrics.PollCycles.WithLabelValues("fatal_error").Inc()
		return err
	}
	metrics.PollCycles.WithLabelValues("success").Inc()
	return nil
}

// RunOnce performs a single fetch-and-process pass and returns every
// error, including fetch failures. Used by the -once mode where there is
// no next cycle to retry on.
func (w *Worker) RunOnce(ctx context.Context) error {
	messages, err := w.inbox.FetchPending(ctx)
	if err != nil {
		return fmt.Errorf("fetching pending messages: %w", err)
	}
	defer w.inbox.Close()
	return w.processBatch(ctx, messages)
}

func (w *Worker) processBatch(ctx context.Context, messages []*InboundMessage) error {
	if len(messages) > 0 {
		logger.Info("Worker: processing batch", "messages", len(messages))
	}

	for _, msg := range messages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		outcome, err := w.manager.Process(ctx, msg)
		if err != nil {
			// Systemic failure; do not acknowledge, the message will be
			// reprocessed once the operator fixes the backing store.
			return fmt.Errorf("processing message %s: %w", msg.ID, err)
		}

		// Acknowledged regardless of outcome: a failed send was already
		// reported, and reprocessing it forever would stall the queue.
		if err := w.inbox.Acknowledge(ctx, msg.ID); err != nil {
			// The message will be seen again next cycle. Registry
			// operations are idempotent, so reprocessing is safe.
			logger.Warn("Worker: failed to acknowledge message", "id", msg.ID, "error", err)
			continue
		}

		logger.Debug("Worker: message done", "id", msg.ID, "outcome", outcome.String())
	}
	return nil
}

func (w *Worker) reportError(err error) {
	logger.Error("Worker: fatal error, stopping poll loop", "error", err)
	select {
	case w.errCh <- err:
	default:
	}
}
