// Package assessment provides the qualitative risk assessors used by the
// pipeline: an HTTP provider, an event-bus provider with its responder, a
// local heuristic provider and a fixed stub.
package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/validation"
)

// New builds the provider selected by cfg. The bus is only used by the
// "bus" provider; catalog descriptions feed the heuristic provider.
func New(cfg domain.AssessmentConfig, bus domain.EventBus, describe func(flag string) (string, bool)) (domain.Assessor, error) {
	switch cfg.Provider {
	case "heuristic", "":
		return NewHeuristicProvider(describe), nil
	case "http":
		return NewHTTPProvider(cfg)
	case "bus":
		if bus == nil {
			return nil, fmt.Errorf("bus assessment provider needs an event bus")
		}
		return NewBusProvider(bus), nil
	default:
		return nil, fmt.Errorf("unknown assessment provider: %s", cfg.Provider)
	}
}

// Check rejects assessments that are outside the accepted shape.
func Check(a *domain.Assessment) error {
	if a == nil {
		return errors.New("empty assessment")
	}
	if !a.Level.Valid() {
		return fmt.Errorf("unknown risk level %q", a.Level)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0, 1]", a.Confidence)
	}
	return nil
}

// wireAssessment is the structured answer of a remote assessor. Pointer
// fields separate a missing field from its zero value.
type wireAssessment struct {
	Level      *domain.RiskLevel `json:"riskLevel" validate:"required,oneof=low medium high"`
	Concerns   []string          `json:"concerningPatterns" validate:"required"`
	Reasoning  *string           `json:"reasoning" validate:"required"`
	Confidence *float64          `json:"confidenceScore" validate:"required,gte=0,lte=1"`
}

// Decode parses a structured assessment. Undecodable JSON and a missing or
// out-of-range field are both malformed.
func Decode(provider string, raw []byte) (*domain.Assessment, error) {
	var w wireAssessment
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, malformed(provider, err)
	}
	if err := validation.Struct(&w); err != nil {
		return nil, malformed(provider, err)
	}
	return &domain.Assessment{
		Level:      *w.Level,
		Concerns:   w.Concerns,
		Reasoning:  *w.Reasoning,
		Confidence: *w.Confidence,
	}, nil
}

// Classify turns a provider failure into an *domain.AssessmentError. The
// context decides between timeout and cancellation.
func Classify(ctx context.Context, provider string, err error) *domain.AssessmentError {
	var aerr *domain.AssessmentError
	if errors.As(err, &aerr) {
		return aerr
	}

	reason := domain.AssessUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		reason = domain.AssessTimeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		reason = domain.AssessCanceled
	}
	return &domain.AssessmentError{Reason: reason, Provider: provider, Err: err}
}

func malformed(provider string, err error) *domain.AssessmentError {
	return &domain.AssessmentError{Reason: domain.AssessMalformed, Provider: provider, Err: err}
}
