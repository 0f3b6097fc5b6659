package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks an input that failed schema validation.
	ErrValidation = errors.New("validation failed")

	// ErrAssessment marks a run aborted because the qualitative
	// assessment could not be obtained.
	ErrAssessment = errors.New("assessment failed")

	// ErrPersistence marks a storage failure. It never invalidates a
	// decision that was already computed.
	ErrPersistence = errors.New("persistence failed")

	// ErrInvalidTransition marks an out-of-order pipeline stage change.
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// FieldViolation is one schema violation.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in an input.
type ValidationError struct {
	Violations []FieldViolation `json:"details"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Assessment failure reasons.
const (
	AssessTimeout     = "timeout"
	AssessCanceled    = "canceled"
	AssessUnavailable = "unavailable"
	AssessMalformed   = "malformed"
)

// AssessmentError describes why an assessment could not be obtained.
type AssessmentError struct {
	Reason   string
	Provider string
	Err      error
}

func (e *AssessmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s, provider=%s): %v", ErrAssessment, e.Reason, e.Provider, e.Err)
	}
	return fmt.Sprintf("%s (%s, provider=%s)", ErrAssessment, e.Reason, e.Provider)
}

// Is lets errors.Is match both ErrAssessment and the wrapped cause.
func (e *AssessmentError) Is(target error) bool { return target == ErrAssessment }

func (e *AssessmentError) Unwrap() error { return e.Err }
