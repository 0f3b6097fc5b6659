// Package validation checks ingress payloads before anything is evaluated.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/sentinel/internal/domain"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator. Field names in errors are the
// JSON names.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Transaction validates a request. It returns nil or a
// *domain.ValidationError listing every violation.
func Transaction(req *domain.TransactionRequest) error {
	if req == nil {
		return &domain.ValidationError{Violations: []domain.FieldViolation{{Field: "", Message: "body is required"}}}
	}
	return Struct(req)
}

// Struct validates any tagged struct and converts the result.
func Struct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &domain.ValidationError{Violations: []domain.FieldViolation{{Message: err.Error()}}}
	}

	out := &domain.ValidationError{Violations: make([]domain.FieldViolation, 0, len(verrs))}
	for _, fe := range verrs {
		out.Violations = append(out.Violations, domain.FieldViolation{
			Field:   fieldPath(fe),
			Message: message(fe),
		})
	}
	return out
}

// DecodeTransaction parses and validates a JSON body. Malformed JSON is a
// violation too, so callers see one error type.
func DecodeTransaction(raw []byte) (*domain.TransactionRequest, error) {
	var req domain.TransactionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &domain.ValidationError{Violations: []domain.FieldViolation{jsonViolation(err)}}
	}
	if err := Transaction(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Event validates and converts a request in one step.
func Event(req *domain.TransactionRequest) (domain.TransactionEvent, error) {
	if err := Transaction(req); err != nil {
		return domain.TransactionEvent{}, err
	}
	ev, err := req.ToEvent()
	if err != nil {
		return domain.TransactionEvent{}, &domain.ValidationError{Violations: []domain.FieldViolation{
			{Field: "timestamp", Message: "must be an ISO-8601 date-time"},
		}}
	}
	return ev, nil
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "datetime":
		return "must be an ISO-8601 date-time"
	case "len":
		return fmt.Sprintf("must be %s characters long", fe.Param())
	case "alpha":
		return "must contain letters only"
	case "ip":
		return "must be an IP address"
	case "url":
		return "must be a URL"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func jsonViolation(err error) domain.FieldViolation {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return domain.FieldViolation{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("must be a %s", typeErr.Type.String()),
		}
	}
	return domain.FieldViolation{Message: "malformed JSON: " + err.Error()}
}
