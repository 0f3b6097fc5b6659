// Package worker consumes ingested transactions from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/metrics"
	"github.com/opensource-finance/sentinel/internal/repository"
	"github.com/opensource-finance/sentinel/internal/validation"
)

// Bus message outcomes recorded in metrics.
const (
	outcomeProcessed = "processed"
	outcomeInvalid   = "invalid"
	outcomeFailed    = "failed"
	outcomeDropped   = "dropped"
	outcomePublished = "published"
)

// Evaluator runs the risk pipeline for one transaction.
type Evaluator interface {
	Run(ctx context.Context, runKey string, tx domain.TransactionEvent) (*domain.Evaluation, error)
}

// Worker processes transactions asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	evaluator Evaluator
	metrics   *metrics.Collector

	mu   sync.Mutex
	sub  domain.Subscription
	jobs chan *domain.Message

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Workers is the number of messages processed concurrently.
	Workers int

	// QueueSize bounds messages waiting for a free worker. Messages that
	// arrive while the queue is full are dropped and counted.
	QueueSize int
}

// NewWorker creates a new async worker. repo and m may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, evaluator Evaluator, m *metrics.Collector) *Worker {
	return &Worker{
		bus:       bus,
		repo:      repo,
		evaluator: evaluator,
		metrics:   m,
	}
}

// Start subscribes to the ingest topic and launches the pool. A stopped
// worker may be started again.
func (w *Worker) Start(cfg Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sub != nil {
		return errors.New("worker already started")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	jobs := make(chan *domain.Message, cfg.QueueSize)
	sub, err := w.bus.Subscribe(ctx, domain.TopicTransactionIngested, func(_ context.Context, msg *domain.Message) error {
		return w.enqueue(ctx, jobs, msg)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicTransactionIngested, err)
	}
	w.sub = sub
	w.jobs = jobs
	w.cancel = cancel

	for i := 0; i < cfg.Workers; i++ {
		w.wg.Add(1)
		go w.loop(ctx, jobs)
	}

	slog.Info("worker started",
		"topic", domain.TopicTransactionIngested,
		"workers", cfg.Workers,
		"queue_size", cfg.QueueSize,
	)
	return nil
}

func (w *Worker) enqueue(ctx context.Context, jobs chan<- *domain.Message, msg *domain.Message) error {
	select {
	case jobs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		w.metrics.RecordBusMessage(msg.Topic, outcomeDropped)
		slog.Warn("worker queue full, message dropped", "message_id", msg.ID)
		return errors.New("worker queue full")
	}
}

func (w *Worker) loop(ctx context.Context, jobs <-chan *domain.Message) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-jobs:
			_ = w.Process(ctx, msg)
		}
	}
}

// Process evaluates one ingest message: validate, store the transaction,
// run the pipeline, store the evaluation, publish the decision and, for
// BLOCK or REVIEW, an alert. Storage failures are logged; they never
// withhold the decision.
func (w *Worker) Process(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var in domain.IngestMessage
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		w.metrics.RecordBusMessage(msg.Topic, outcomeInvalid)
		slog.Error("failed to parse ingest message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	req, err := validation.DecodeTransaction(in.Transaction)
	if err != nil {
		w.metrics.RecordBusMessage(msg.Topic, outcomeInvalid)
		slog.Warn("ingested transaction rejected",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	tx, err := req.ToEvent()
	if err != nil {
		w.metrics.RecordBusMessage(msg.Topic, outcomeInvalid)
		return err
	}

	w.saveTransaction(ctx, &tx)

	eval, err := w.evaluator.Run(ctx, in.RunKey, tx)
	if err != nil {
		w.metrics.RecordBusMessage(msg.Topic, outcomeFailed)
		slog.Error("pipeline run failed",
			"tx_id", tx.ID,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if w.repo != nil {
		if err := w.repo.SaveEvaluation(ctx, eval); err != nil {
			slog.Error("failed to save evaluation",
				"tx_id", tx.ID,
				"evaluation_id", eval.ID,
				"error", err,
			)
		}
	}

	payload, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation: %w", err)
	}
	w.publish(ctx, domain.TopicDecision, tx.ID, payload)
	if eval.IsAlert() {
		w.publish(ctx, domain.TopicAlert, tx.ID, payload)
	}

	w.metrics.RecordBusMessage(msg.Topic, outcomeProcessed)
	slog.Info("transaction processed",
		"tx_id", tx.ID,
		"run_key", eval.RunKey,
		"decision", eval.FinalDecision,
		"risk_score", eval.RiskScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) saveTransaction(ctx context.Context, tx *domain.TransactionEvent) {
	if w.repo == nil {
		return
	}
	err := w.repo.SaveTransaction(ctx, tx)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrDuplicate):
		slog.Debug("transaction already stored", "tx_id", tx.ID)
	default:
		slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
	}
}

func (w *Worker) publish(ctx context.Context, topic, txID string, payload []byte) {
	if err := w.bus.Publish(ctx, topic, payload); err != nil {
		w.metrics.RecordBusMessage(topic, outcomeFailed)
		slog.Error("failed to publish",
			"topic", topic,
			"tx_id", txID,
			"error", err,
		)
		return
	}
	w.metrics.RecordBusMessage(topic, outcomePublished)
}

// Stop unsubscribes, cancels in-flight runs and waits for the pool.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.sub != nil {
		if err = w.sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", w.sub.Topic(),
				"error", err,
			)
		}
		w.sub = nil
	}

	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.wg.Wait()
	w.jobs = nil

	slog.Info("worker stopped")
	return err
}

// Stats returns worker statistics.
type Stats struct {
	Running bool   `json:"running"`
	Topic   string `json:"topic,omitempty"`
	Queued  int    `json:"queued"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Stats{Running: w.sub != nil}
	if w.sub != nil {
		s.Topic = w.sub.Topic()
	}
	if w.jobs != nil {
		s.Queued = len(w.jobs)
	}
	return s
}
