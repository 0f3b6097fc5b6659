package rules

import (
	"github.com/opensource-finance/sentinel/internal/domain"
)

// MaxRiskScore is the ceiling of an aggregated score.
const MaxRiskScore = 100.0

// Score is the outcome of one scoring pass.
type Score struct {
	RiskScore   float64
	RuleFlags   []string
	RuleResults []domain.RuleResult
}

// Score evaluates every rule once, in declared order, and sums the weights
// of the rules that trigger. Flags follow catalog order.
func (c *Catalog) Score(tx *domain.TransactionEvent) Score {
	out := Score{
		RuleFlags:   []string{},
		RuleResults: make([]domain.RuleResult, 0, len(c.compiled)),
	}

	var total float64
	for _, cr := range c.compiled {
		triggered := cr.rule.Enabled && tx != nil && cr.trigger(tx)
		out.RuleResults = append(out.RuleResults, domain.RuleResult{
			RuleID:    cr.rule.ID,
			FlagCode:  cr.rule.FlagCode,
			Triggered: triggered,
			Weight:    cr.rule.RiskScore,
			Severity:  cr.rule.Severity,
		})
		if !triggered {
			continue
		}
		total += cr.rule.RiskScore
		out.RuleFlags = append(out.RuleFlags, cr.rule.FlagCode)
	}

	out.RiskScore = min(total, MaxRiskScore)
	return out
}
