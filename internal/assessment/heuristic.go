package assessment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// HeuristicProvider is a deterministic, local assessor for deployments
// without a reasoning service. Its output depends only on its input.
type HeuristicProvider struct {
	describe func(flag string) (string, bool)

	// HighScore and MediumScore are the score bands for the level.
	HighScore   float64
	MediumScore float64
}

// NewHeuristicProvider creates a provider. describe maps flag codes to
// readable concerns and may be nil.
func NewHeuristicProvider(describe func(flag string) (string, bool)) *HeuristicProvider {
	return &HeuristicProvider{describe: describe, HighScore: 60, MediumScore: 25}
}

// Name implements domain.Assessor.
func (p *HeuristicProvider) Name() string { return "heuristic" }

// Assess implements domain.Assessor.
func (p *HeuristicProvider) Assess(ctx context.Context, req domain.AssessmentRequest) (*domain.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(ctx, p.Name(), err)
	}

	tx := req.Transaction
	concerns := make([]string, 0, len(req.RuleFlags)+3)
	for _, f := range req.RuleFlags {
		if p.describe != nil {
			if d, ok := p.describe(f); ok {
				concerns = append(concerns, d)
				continue
			}
		}
		concerns = append(concerns, f)
	}

	patterns := 0
	if !tx.BVNVerified && tx.RecipientNew {
		concerns = append(concerns, "Possible SIM swap or account takeover: unverified BVN paying a new recipient")
		patterns++
	}
	if tx.AccountAge < 30 && tx.RecipientNew && tx.UserHistory.DailyTransactionCount > 5 {
		concerns = append(concerns, "Possible money mule activity: young account fanning out to new recipients")
		patterns++
	}
	if tx.UserHistory.FailedTransactionsLast24h > 3 && tx.RecipientNew {
		concerns = append(concerns, "Repeated failures before paying a new recipient")
		patterns++
	}

	level := domain.RiskLow
	switch {
	case req.RiskScore >= p.HighScore || patterns >= 2:
		level = domain.RiskHigh
	case req.RiskScore >= p.MediumScore || patterns == 1 || len(req.RuleFlags) >= 2:
		level = domain.RiskMedium
	}

	confidence := 0.6 + 0.05*float64(len(req.RuleFlags)+patterns)
	if confidence > 0.95 {
		confidence = 0.95
	}

	return &domain.Assessment{
		Level:      level,
		Concerns:   concerns,
		Reasoning:  fmt.Sprintf("Rule score %s with %d flag(s) and %d behavioural pattern(s) rated %s.", strconv.FormatFloat(req.RiskScore, 'f', -1, 64), len(req.RuleFlags), patterns, level),
		Confidence: confidence,
		Provider:   p.Name(),
	}, nil
}

// StaticProvider always returns the same assessment, or Err when set.
type StaticProvider struct {
	Result domain.Assessment
	Err    error
}

// Name implements domain.Assessor.
func (p *StaticProvider) Name() string { return "static" }

// Assess implements domain.Assessor.
func (p *StaticProvider) Assess(ctx context.Context, _ domain.AssessmentRequest) (*domain.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(ctx, p.Name(), err)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	a := p.Result
	a.Concerns = append([]string{}, p.Result.Concerns...)
	a.Provider = p.Name()
	return &a, nil
}
