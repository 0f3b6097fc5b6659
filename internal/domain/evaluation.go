package domain

import (
	"context"
	"time"
)

// Stage is the progress marker of a pipeline run.
type Stage string

const (
	StageNone     Stage = ""
	StageScored   Stage = "SCORED"
	StageAssessed Stage = "ASSESSED"
	StageDecided  Stage = "DECIDED"
)

// Decision is the final outcome for a transaction.
type Decision string

const (
	DecisionAllow  Decision = "ALLOW"
	DecisionBlock  Decision = "BLOCK"
	DecisionReview Decision = "REVIEW"
)

// RiskLevel is the qualitative level returned by an assessor.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether l is one of the known levels.
func (l RiskLevel) Valid() bool {
	return l == RiskLow || l == RiskMedium || l == RiskHigh
}

// Assessment is the qualitative judgement of a transaction.
type Assessment struct {
	Level      RiskLevel `json:"riskLevel"`
	Concerns   []string  `json:"concerningPatterns"`
	Reasoning  string    `json:"reasoning"`
	Confidence float64   `json:"confidenceScore"`
	Provider   string    `json:"provider,omitempty"`
}

// AssessmentRequest is what an assessor receives: the transaction and the
// rule engine's view of it.
type AssessmentRequest struct {
	Transaction TransactionEvent `json:"transaction"`
	RiskScore   float64          `json:"riskScore"`
	RuleFlags   []string         `json:"ruleFlags"`
}

// Assessor produces a qualitative assessment. Implementations may block on
// the network and must honour ctx cancellation.
type Assessor interface {
	Assess(ctx context.Context, req AssessmentRequest) (*Assessment, error)
	Name() string
}

// PipelineState is the record a run fills in stage by stage.
type PipelineState struct {
	Transaction   TransactionEvent `json:"transaction"`
	Stage         Stage            `json:"stage"`
	RiskScore     float64          `json:"riskScore"`
	RuleFlags     []string         `json:"ruleFlags"`
	RuleResults   []RuleResult     `json:"ruleResults,omitempty"`
	Assessment    *Assessment      `json:"assessment,omitempty"`
	FinalDecision Decision         `json:"finalDecision,omitempty"`
	Summary       string           `json:"summary,omitempty"`
}

// Evaluation is the merged result of a completed run and the persisted
// audit record.
type Evaluation struct {
	ID              string             `json:"evaluationId"`
	RunKey          string             `json:"runKey"`
	Transaction     TransactionEvent   `json:"transaction"`
	RiskScore       float64            `json:"riskScore"`
	RuleFlags       []string           `json:"ruleFlags"`
	RuleResults     []RuleResult       `json:"ruleResults,omitempty"`
	RiskLevel       RiskLevel          `json:"riskLevel"`
	Concerns        []string           `json:"concerningPatterns"`
	Reasoning       string             `json:"reasoning"`
	Confidence      float64            `json:"confidenceScore"`
	FinalDecision   Decision           `json:"finalDecision"`
	Summary         string             `json:"summary"`
	MatchedPriority int                `json:"matchedPriority"`
	Timestamp       time.Time          `json:"timestamp"`
	Metadata        EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID        string `json:"traceId,omitempty"`
	ScoreMs        int64  `json:"scoreMs"`
	AssessMs       int64  `json:"assessMs"`
	DecideMs       int64  `json:"decideMs"`
	TotalMs        int64  `json:"totalMs"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	CatalogVersion string `json:"catalogVersion"`
	Provider       string `json:"provider"`
}

// IsAlert reports whether the decision needs human attention.
func (e *Evaluation) IsAlert() bool {
	return e.FinalDecision == DecisionBlock || e.FinalDecision == DecisionReview
}
