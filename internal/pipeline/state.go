package pipeline

import (
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// next maps each stage to the only stage allowed after it.
var next = map[domain.Stage]domain.Stage{
	domain.StageNone:     domain.StageScored,
	domain.StageScored:   domain.StageAssessed,
	domain.StageAssessed: domain.StageDecided,
}

// Transition checks that to directly follows from.
func Transition(from, to domain.Stage) error {
	if want, ok := next[from]; ok && want == to {
		return nil
	}
	return fmt.Errorf("%w: %q -> %q", domain.ErrInvalidTransition, from, to)
}

// run holds the state of one pipeline run. Stages only fill fields in.
type run struct {
	key   string
	state domain.PipelineState
}

func (r *run) advance(to domain.Stage) error {
	if err := Transition(r.state.Stage, to); err != nil {
		return err
	}
	r.state.Stage = to
	return nil
}

func (r *run) scored(score float64, flags []string, results []domain.RuleResult) error {
	if err := r.advance(domain.StageScored); err != nil {
		return err
	}
	r.state.RiskScore = score
	r.state.RuleFlags = flags
	r.state.RuleResults = results
	return nil
}

func (r *run) assessed(a *domain.Assessment) error {
	if err := r.advance(domain.StageAssessed); err != nil {
		return err
	}
	r.state.Assessment = a
	return nil
}

func (r *run) decided(d domain.Decision, summary string) error {
	if err := r.advance(domain.StageDecided); err != nil {
		return err
	}
	r.state.FinalDecision = d
	r.state.Summary = summary
	return nil
}
