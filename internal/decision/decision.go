// Package decision merges the rule score with the qualitative assessment
// into the final ALLOW, BLOCK or REVIEW outcome.
package decision

import (
	"strconv"
	"strings"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Priority identifies which policy rule produced a decision.
const (
	PriorityCriticalFlag = 1
	PriorityHighRisk     = 2
	PriorityMediumRisk   = 3
	PriorityLowOverride  = 4
	PriorityDefault      = 5
)

// Processor applies the decision policy. Rules are checked in priority
// order and the first match wins.
type Processor struct {
	// BlockScore blocks at or above this score
	BlockScore float64

	// ReviewScore sends to review at or above this score
	ReviewScore float64

	// LowReviewScore sends to review at or above this score even when the
	// assessment is low
	LowReviewScore float64

	critical map[string]bool
}

// NewProcessor creates a processor with default thresholds. Any flag in
// criticalFlags blocks outright.
func NewProcessor(criticalFlags []string) *Processor {
	critical := make(map[string]bool, len(criticalFlags))
	for _, f := range criticalFlags {
		critical[f] = true
	}
	return &Processor{
		BlockScore:     80,
		ReviewScore:    40,
		LowReviewScore: 25,
		critical:       critical,
	}
}

// Outcome is the policy result.
type Outcome struct {
	Decision domain.Decision
	Priority int
	Summary  string
}

// Decide is a total function of score, flags and level.
func (p *Processor) Decide(score float64, flags []string, level domain.RiskLevel) Outcome {
	d, prio := p.decide(score, flags, level)
	return Outcome{
		Decision: d,
		Priority: prio,
		Summary:  Summary(d, score, level, flags),
	}
}

func (p *Processor) decide(score float64, flags []string, level domain.RiskLevel) (domain.Decision, int) {
	for _, f := range flags {
		if p.critical[f] {
			return domain.DecisionBlock, PriorityCriticalFlag
		}
	}
	if score >= p.BlockScore || level == domain.RiskHigh {
		return domain.DecisionBlock, PriorityHighRisk
	}
	if score >= p.ReviewScore || level == domain.RiskMedium {
		return domain.DecisionReview, PriorityMediumRisk
	}
	if score >= p.LowReviewScore && level == domain.RiskLow {
		return domain.DecisionReview, PriorityLowOverride
	}
	return domain.DecisionAllow, PriorityDefault
}

// IsCritical reports whether flag blocks outright.
func (p *Processor) IsCritical(flag string) bool {
	return p.critical[flag]
}

// Summary renders the audit line for a decision.
func Summary(d domain.Decision, score float64, level domain.RiskLevel, flags []string) string {
	flagText := "None"
	if len(flags) > 0 {
		flagText = strings.Join(flags, ", ")
	}
	var b strings.Builder
	b.WriteString("Transaction ")
	b.WriteString(string(d))
	b.WriteString(": Risk Score=")
	b.WriteString(strconv.FormatFloat(score, 'f', -1, 64))
	b.WriteString(", Assessment=")
	b.WriteString(string(level))
	b.WriteString(", Flags=[")
	b.WriteString(flagText)
	b.WriteString("]")
	return b.String()
}
