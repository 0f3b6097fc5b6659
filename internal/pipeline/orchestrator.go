// Package pipeline runs a transaction through scoring, qualitative
// assessment and the decision policy, in that order.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/sentinel/internal/assessment"
	"github.com/opensource-finance/sentinel/internal/decision"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/metrics"
	"github.com/opensource-finance/sentinel/internal/rules"
)

// DefaultAssessmentTimeout bounds the assessment stage when no timeout is
// configured.
const DefaultAssessmentTimeout = 10 * time.Second

var tracer = otel.Tracer("sentinel-pipeline")

// Orchestrator drives one run per call. It holds no per-run state, so one
// instance serves concurrent runs.
type Orchestrator struct {
	catalog     *rules.Catalog
	assessor    domain.Assessor
	policy      *decision.Processor
	checkpoints Checkpointer
	metrics     *metrics.Collector
	timeout     time.Duration
	now         func() time.Time
	newID       func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCheckpointer records a checkpoint after each stage.
func WithCheckpointer(c Checkpointer) Option {
	return func(o *Orchestrator) { o.checkpoints = c }
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithAssessmentTimeout bounds the assessment call.
func WithAssessmentTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithPolicy replaces the decision policy derived from the catalog.
func WithPolicy(p *decision.Processor) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithClock overrides the clock used for evaluation timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. The critical flags of the decision policy
// come from the catalog.
func New(catalog *rules.Catalog, assessor domain.Assessor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:  catalog,
		assessor: assessor,
		policy:   decision.NewProcessor(catalog.CriticalFlags()),
		timeout:  DefaultAssessmentTimeout,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Catalog returns the catalog the orchestrator scores with.
func (o *Orchestrator) Catalog() *rules.Catalog {
	return o.catalog
}

// Checkpoint returns the last checkpoint of runKey, or nil.
func (o *Orchestrator) Checkpoint(ctx context.Context, runKey string) (*domain.PipelineState, error) {
	if o.checkpoints == nil {
		return nil, nil
	}
	return o.checkpoints.Load(ctx, runKey)
}

// Run evaluates tx from the beginning. An empty runKey defaults to the
// user id. Assessment failures abort the run with an
// *domain.AssessmentError; no decision is produced without an assessment.
func (o *Orchestrator) Run(ctx context.Context, runKey string, tx domain.TransactionEvent) (*domain.Evaluation, error) {
	start := time.Now()

	if err := guard(&tx); err != nil {
		return nil, err
	}
	if runKey == "" {
		runKey = tx.UserID
	}

	ctx, span := tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("tx.id", tx.ID),
			attribute.String("run.key", runKey),
		),
	)
	defer span.End()

	r := &run{key: runKey, state: domain.PipelineState{Transaction: tx}}
	meta := domain.EvaluationMetadata{
		CatalogVersion: o.catalog.Version(),
		RulesEvaluated: o.catalog.Len(),
		Provider:       o.assessor.Name(),
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		meta.TraceID = sc.TraceID().String()
	}

	// Score
	stageStart := time.Now()
	score := o.score(ctx, &r.state.Transaction)
	if err := r.scored(score.RiskScore, score.RuleFlags, score.RuleResults); err != nil {
		return nil, o.fail(span, err)
	}
	meta.ScoreMs = time.Since(stageStart).Milliseconds()
	o.metrics.RecordScore(score.RiskScore, score.RuleFlags)
	o.checkpoint(ctx, r)

	// Assess
	stageStart = time.Now()
	result, err := o.assess(ctx, r)
	if err != nil {
		var aerr *domain.AssessmentError
		if errors.As(err, &aerr) {
			o.metrics.RecordAssessmentFailure(aerr.Reason)
		}
		slog.Warn("assessment failed, run aborted",
			"tx_id", tx.ID,
			"run_key", runKey,
			"risk_score", r.state.RiskScore,
			"error", err,
		)
		return nil, o.fail(span, err)
	}
	if err := r.assessed(result); err != nil {
		return nil, o.fail(span, err)
	}
	meta.AssessMs = time.Since(stageStart).Milliseconds()
	meta.Provider = result.Provider
	o.checkpoint(ctx, r)

	// Decide
	stageStart = time.Now()
	_, decideSpan := tracer.Start(ctx, "pipeline.decide")
	outcome := o.policy.Decide(r.state.RiskScore, r.state.RuleFlags, result.Level)
	decideSpan.SetAttributes(
		attribute.String("decision", string(outcome.Decision)),
		attribute.Int("priority", outcome.Priority),
	)
	decideSpan.End()
	if err := r.decided(outcome.Decision, outcome.Summary); err != nil {
		return nil, o.fail(span, err)
	}
	meta.DecideMs = time.Since(stageStart).Milliseconds()
	o.checkpoint(ctx, r)

	meta.TotalMs = time.Since(start).Milliseconds()
	o.metrics.RecordDecision(string(outcome.Decision), time.Since(start))

	span.SetAttributes(
		attribute.Float64("risk.score", r.state.RiskScore),
		attribute.String("decision", string(outcome.Decision)),
	)

	slog.Info("transaction evaluated",
		"tx_id", tx.ID,
		"run_key", runKey,
		"risk_score", r.state.RiskScore,
		"flags", len(r.state.RuleFlags),
		"risk_level", result.Level,
		"decision", outcome.Decision,
		"priority", outcome.Priority,
		"duration_ms", meta.TotalMs,
	)

	return o.merge(r, outcome.Priority, meta), nil
}

func (o *Orchestrator) score(ctx context.Context, tx *domain.TransactionEvent) rules.Score {
	_, span := tracer.Start(ctx, "pipeline.score")
	defer span.End()

	s := o.catalog.Score(tx)
	span.SetAttributes(
		attribute.Float64("risk.score", s.RiskScore),
		attribute.StringSlice("rule.flags", s.RuleFlags),
	)
	return s
}

func (o *Orchestrator) assess(ctx context.Context, r *run) (*domain.Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "pipeline.assess",
		trace.WithAttributes(attribute.String("provider", o.assessor.Name())),
	)
	defer span.End()

	start := time.Now()
	a, err := o.assessor.Assess(ctx, domain.AssessmentRequest{
		Transaction: r.state.Transaction,
		RiskScore:   r.state.RiskScore,
		RuleFlags:   append([]string(nil), r.state.RuleFlags...),
	})
	o.metrics.RecordAssessment(o.assessor.Name(), time.Since(start))

	if err != nil {
		aerr := assessment.Classify(ctx, o.assessor.Name(), err)
		span.RecordError(aerr)
		span.SetStatus(codes.Error, aerr.Reason)
		return nil, aerr
	}
	if err := assessment.Check(a); err != nil {
		aerr := &domain.AssessmentError{Reason: domain.AssessMalformed, Provider: o.assessor.Name(), Err: err}
		span.RecordError(aerr)
		span.SetStatus(codes.Error, aerr.Reason)
		return nil, aerr
	}
	if a.Provider == "" {
		a.Provider = o.assessor.Name()
	}
	if a.Concerns == nil {
		a.Concerns = []string{}
	}
	span.SetAttributes(attribute.String("risk.level", string(a.Level)))
	return a, nil
}

func (o *Orchestrator) checkpoint(ctx context.Context, r *run) {
	if o.checkpoints == nil {
		return
	}
	if err := o.checkpoints.Save(ctx, r.key, r.state); err != nil {
		slog.Warn("failed to write checkpoint",
			"run_key", r.key,
			"stage", r.state.Stage,
			"error", err,
		)
	}
}

func (o *Orchestrator) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (o *Orchestrator) merge(r *run, priority int, meta domain.EvaluationMetadata) *domain.Evaluation {
	a := r.state.Assessment
	return &domain.Evaluation{
		ID:              o.newID(),
		RunKey:          r.key,
		Transaction:     r.state.Transaction,
		RiskScore:       r.state.RiskScore,
		RuleFlags:       r.state.RuleFlags,
		RuleResults:     r.state.RuleResults,
		RiskLevel:       a.Level,
		Concerns:        a.Concerns,
		Reasoning:       a.Reasoning,
		Confidence:      a.Confidence,
		FinalDecision:   r.state.FinalDecision,
		Summary:         r.state.Summary,
		MatchedPriority: priority,
		Timestamp:       o.now(),
		Metadata:        meta,
	}
}

// guard rejects events that cannot have come through validation.
func guard(tx *domain.TransactionEvent) error {
	var v []domain.FieldViolation
	if tx.ID == "" {
		v = append(v, domain.FieldViolation{Field: "id", Message: "is required"})
	}
	if tx.UserID == "" {
		v = append(v, domain.FieldViolation{Field: "userId", Message: "is required"})
	}
	if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
		v = append(v, domain.FieldViolation{Field: "amount", Message: "must be a finite number"})
	}
	if tx.Timestamp.IsZero() {
		v = append(v, domain.FieldViolation{Field: "timestamp", Message: "is required"})
	}
	if len(v) > 0 {
		return &domain.ValidationError{Violations: v}
	}
	return nil
}
