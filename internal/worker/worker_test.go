package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/sentinel/internal/assessment"
	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/pipeline"
	"github.com/opensource-finance/sentinel/internal/repository"
	"github.com/opensource-finance/sentinel/internal/rules"
)

func txJSON(id, tier string, amount float64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"id": %q,
		"userId": "user-42",
		"recipientId": "rcp-7",
		"amount": %v,
		"channel": "MOBILE",
		"transactionType": "TRANSFER",
		"kycTier": %q,
		"accountAge": 400,
		"bvnVerified": true,
		"recipientNew": false,
		"location": {"country": "NG"},
		"timestamp": "2026-01-21T12:00:00Z",
		"userHistory": {
			"avgTransactionAmount": 1000,
			"dailyTransactionCount": 1,
			"dailyTransactionVolume": 1000,
			"failedTransactionsLast24h": 0,
			"totalTransactions": 40
		}
	}`, id, amount, tier))
}

func ingest(t *testing.T, runKey string, tx json.RawMessage) []byte {
	t.Helper()
	payload, err := json.Marshal(domain.IngestMessage{RunKey: runKey, Transaction: tx})
	if err != nil {
		t.Fatalf("marshal ingest message: %v", err)
	}
	return payload
}

func lowRisk() *assessment.StaticProvider {
	return &assessment.StaticProvider{Result: domain.Assessment{
		Level:      domain.RiskLow,
		Reasoning:  "routine transfer",
		Confidence: 0.9,
	}}
}

func newRepo(t *testing.T) *repository.SQLRepository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// countingEvaluator records calls and returns a fixed result.
type countingEvaluator struct {
	calls atomic.Int32
	eval  *domain.Evaluation
	err   error
}

func (e *countingEvaluator) Run(_ context.Context, runKey string, tx domain.TransactionEvent) (*domain.Evaluation, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := *e.eval
	out.RunKey = runKey
	out.Transaction = tx
	return &out, nil
}

// collector gathers payloads published on a topic.
type collector struct {
	mu       sync.Mutex
	payloads [][]byte
	notify   chan struct{}
}

func collect(t *testing.T, b domain.EventBus, topic string) *collector {
	t.Helper()
	c := &collector{notify: make(chan struct{}, 16)}
	_, err := b.Subscribe(context.Background(), topic, func(ctx context.Context, msg *domain.Message) error {
		c.mu.Lock()
		c.payloads = append(c.payloads, msg.Payload)
		c.mu.Unlock()
		c.notify <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe %s: %v", topic, err)
	}
	return c
}

func (c *collector) wait(t *testing.T) []byte {
	t.Helper()
	select {
	case <-c.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloads[len(c.payloads)-1]
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestWorkerStartAndStop(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, &countingEvaluator{}, nil)

	if err := w.Start(Config{Workers: 2}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := w.GetStats()
	if !stats.Running || stats.Topic != domain.TopicTransactionIngested {
		t.Errorf("unexpected stats after start: %+v", stats)
	}

	if err := w.Start(Config{Workers: 2}); err == nil {
		t.Error("second Start should fail")
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if w.GetStats().Running {
		t.Error("worker should not be running after stop")
	}
}

func TestWorkerRestart(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	decisions := collect(t, eventBus, domain.TopicDecision)

	eval := &countingEvaluator{eval: &domain.Evaluation{ID: "eval-restart", FinalDecision: domain.DecisionAllow}}
	w := NewWorker(eventBus, nil, eval, nil)

	if err := w.Start(Config{Workers: 1}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := w.Start(Config{Workers: 1}); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer w.Stop()

	ctx := context.Background()
	if err := eventBus.Publish(ctx, domain.TopicTransactionIngested, ingest(t, "", txJSON("tx-restart", "TIER_3", 1000))); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	decisions.wait(t)
	if eval.calls.Load() != 1 {
		t.Errorf("expected 1 pipeline run after restart, got %d", eval.calls.Load())
	}
}

func TestWorkerStopWithoutStart(t *testing.T) {
	w := NewWorker(bus.NewChannelBus(1), nil, &countingEvaluator{}, nil)
	if err := w.Stop(); err != nil {
		t.Errorf("Stop on an idle worker should succeed, got %v", err)
	}
}

func TestWorkerEndToEnd(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	repo := newRepo(t)

	orch := pipeline.New(rules.DefaultCatalog(), lowRisk())
	w := NewWorker(eventBus, repo, orch, nil)
	if err := w.Start(Config{Workers: 2}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	decisions := collect(t, eventBus, domain.TopicDecision)
	alerts := collect(t, eventBus, domain.TopicAlert)

	t.Run("BlockedTransactionAlerts", func(t *testing.T) {
		// TIER_1 caps a single transfer at 50,000.
		err := eventBus.Publish(context.Background(), domain.TopicTransactionIngested,
			ingest(t, "run-block", txJSON("tx-block", "TIER_1", 75000)))
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		var eval domain.Evaluation
		if err := json.Unmarshal(decisions.wait(t), &eval); err != nil {
			t.Fatalf("decode decision: %v", err)
		}
		if eval.FinalDecision != domain.DecisionBlock || eval.MatchedPriority != 1 {
			t.Errorf("expected BLOCK at priority 1, got %s/%d", eval.FinalDecision, eval.MatchedPriority)
		}
		if eval.RunKey != "run-block" {
			t.Errorf("run key not carried through: %q", eval.RunKey)
		}

		var alert domain.Evaluation
		if err := json.Unmarshal(alerts.wait(t), &alert); err != nil {
			t.Fatalf("decode alert: %v", err)
		}
		if alert.ID != eval.ID {
			t.Errorf("alert should carry the same evaluation, got %s vs %s", alert.ID, eval.ID)
		}

		if _, err := repo.GetTransaction(context.Background(), "tx-block"); err != nil {
			t.Errorf("transaction not stored: %v", err)
		}
		if _, err := repo.GetEvaluation(context.Background(), eval.ID); err != nil {
			t.Errorf("evaluation not stored: %v", err)
		}
	})

	t.Run("AllowedTransactionDoesNotAlert", func(t *testing.T) {
		before := alerts.count()

		err := eventBus.Publish(context.Background(), domain.TopicTransactionIngested,
			ingest(t, "", txJSON("tx-allow", "TIER_3", 1000)))
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		var eval domain.Evaluation
		if err := json.Unmarshal(decisions.wait(t), &eval); err != nil {
			t.Fatalf("decode decision: %v", err)
		}
		if eval.FinalDecision != domain.DecisionAllow {
			t.Errorf("expected ALLOW, got %s (%s)", eval.FinalDecision, eval.Summary)
		}
		if eval.RunKey != "user-42" {
			t.Errorf("run key should default to the user id, got %q", eval.RunKey)
		}

		time.Sleep(50 * time.Millisecond)
		if alerts.count() != before {
			t.Error("ALLOW must not be published as an alert")
		}
	})
}

func TestWorkerProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidTransactionIsNotEvaluated", func(t *testing.T) {
		eventBus := bus.NewChannelBus(10)
		defer eventBus.Close()
		eval := &countingEvaluator{eval: &domain.Evaluation{}}
		w := NewWorker(eventBus, nil, eval, nil)

		msg := &domain.Message{ID: "m-1", Topic: domain.TopicTransactionIngested,
			Payload: ingest(t, "", json.RawMessage(`{"id":"tx-1"}`))}

		err := w.Process(ctx, msg)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if eval.calls.Load() != 0 {
			t.Error("invalid transaction must not reach the pipeline")
		}
	})

	t.Run("MalformedEnvelope", func(t *testing.T) {
		eventBus := bus.NewChannelBus(10)
		defer eventBus.Close()
		w := NewWorker(eventBus, nil, &countingEvaluator{}, nil)

		err := w.Process(ctx, &domain.Message{ID: "m-2", Payload: []byte("not json")})
		if err == nil {
			t.Error("expected error for malformed envelope")
		}
	})

	t.Run("AssessmentFailurePublishesNothing", func(t *testing.T) {
		eventBus := bus.NewChannelBus(10)
		defer eventBus.Close()
		decisions := collect(t, eventBus, domain.TopicDecision)

		eval := &countingEvaluator{err: &domain.AssessmentError{Reason: domain.AssessUnavailable, Provider: "static"}}
		w := NewWorker(eventBus, nil, eval, nil)

		err := w.Process(ctx, &domain.Message{ID: "m-3", Payload: ingest(t, "", txJSON("tx-3", "TIER_3", 1000))})
		if !errors.Is(err, domain.ErrAssessment) {
			t.Fatalf("expected assessment error, got %v", err)
		}

		time.Sleep(50 * time.Millisecond)
		if decisions.count() != 0 {
			t.Error("no decision may be published without an assessment")
		}
	})

	t.Run("DuplicateTransactionIsStillEvaluated", func(t *testing.T) {
		eventBus := bus.NewChannelBus(10)
		defer eventBus.Close()
		repo := newRepo(t)

		eval := &countingEvaluator{eval: &domain.Evaluation{FinalDecision: domain.DecisionAllow}}
		w := NewWorker(eventBus, repo, eval, nil)

		payload := ingest(t, "", txJSON("tx-dup", "TIER_3", 1000))
		for i := 0; i < 2; i++ {
			eval.eval.ID = fmt.Sprintf("eval-%d", i)
			if err := w.Process(ctx, &domain.Message{ID: "m-dup", Payload: payload}); err != nil {
				t.Fatalf("Process %d failed: %v", i, err)
			}
		}
		if eval.calls.Load() != 2 {
			t.Errorf("expected 2 pipeline runs, got %d", eval.calls.Load())
		}
	})
}
