package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// exprEnv compiles CEL expressions for the expression comparator.
//
// Variables available to an expression:
//
//	tx       map of the transaction, keyed by JSON names
//	amount   double
//	history  map of userHistory
//	hour     int, UTC hour of the transaction timestamp
type exprEnv struct {
	env *cel.Env
}

func newExprEnv() (*exprEnv, error) {
	env, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("history", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("hour", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &exprEnv{env: env}, nil
}

func (e *exprEnv) compile(expr string) (cel.Program, error) {
	if expr == "" {
		return nil, fmt.Errorf("expression comparator needs an expression")
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return program, nil
}

// eval runs a compiled expression. Runtime errors count as not triggered.
func (e *exprEnv) eval(program cel.Program, tx *domain.TransactionEvent) bool {
	activation, err := activationFor(tx)
	if err != nil {
		slog.Debug("expression activation failed", "tx_id", tx.ID, "error", err)
		return false
	}
	out, _, err := program.Eval(activation)
	if err != nil {
		slog.Debug("expression evaluation failed", "tx_id", tx.ID, "error", err)
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

func activationFor(tx *domain.TransactionEvent) (map[string]any, error) {
	raw, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	history, _ := m["userHistory"].(map[string]any)
	return map[string]any{
		"tx":      m,
		"amount":  tx.Amount,
		"history": history,
		"hour":    int64(tx.Timestamp.UTC().Hour()),
	}, nil
}
