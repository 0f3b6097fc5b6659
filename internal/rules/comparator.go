package rules

import (
	"fmt"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Comparator defaults.
const (
	DefaultVolumeSpikeMultiplier   = 3.0
	DefaultAmountAnomalyMultiplier = 5.0
	DefaultWindowStartHour         = 23
	DefaultWindowEndHour           = 5
	DefaultUTCOffsetHours          = 1
)

// trigger decides whether a compiled rule fires for a transaction.
type trigger func(tx *domain.TransactionEvent) bool

// compileTrigger resolves a rule's comparator variant into a trigger.
func (c *Catalog) compileTrigger(rule *domain.RiskRule) (trigger, error) {
	cmp := rule.Comparator
	switch cmp.Kind {
	case domain.ComparatorStatic, "":
		if len(rule.Conditions) == 0 {
			return nil, fmt.Errorf("static comparator needs at least one condition")
		}
		conds := rule.Conditions
		return func(tx *domain.TransactionEvent) bool {
			return foldConditions(tx, conds)
		}, nil

	case domain.ComparatorTierLimit:
		limits := c.limits
		return func(tx *domain.TransactionEvent) bool {
			limit, ok := limits[tx.KYCTier]
			if !ok {
				return false
			}
			return tx.Amount > limit.SingleTransactionLimit
		}, nil

	case domain.ComparatorVolumeSpike:
		m := orDefault(cmp.Multiplier, DefaultVolumeSpikeMultiplier)
		return func(tx *domain.TransactionEvent) bool {
			h := tx.UserHistory
			return h.DailyTransactionVolume > m*(h.AvgTransactionAmount*h.DailyTransactionCount)
		}, nil

	case domain.ComparatorAmountAnomaly:
		m := orDefault(cmp.Multiplier, DefaultAmountAnomalyMultiplier)
		return func(tx *domain.TransactionEvent) bool {
			return tx.Amount > m*tx.UserHistory.AvgTransactionAmount
		}, nil

	case domain.ComparatorTimeWindow:
		if len(rule.Conditions) == 0 {
			return nil, fmt.Errorf("time window comparator needs a condition")
		}
		start := intOrDefault(cmp.WindowStartHour, DefaultWindowStartHour)
		end := intOrDefault(cmp.WindowEndHour, DefaultWindowEndHour)
		if start < 0 || start > 23 || end < 0 || end > 23 {
			return nil, fmt.Errorf("window hours must be within 0..23, got [%d, %d)", start, end)
		}
		offset := intOrDefault(cmp.UTCOffsetHours, DefaultUTCOffsetHours)
		if offset < -12 || offset > 14 {
			return nil, fmt.Errorf("utc offset must be within -12..14, got %d", offset)
		}
		zone := time.FixedZone(fmt.Sprintf("UTC%+d", offset), offset*3600)
		first := rule.Conditions[0]
		return func(tx *domain.TransactionEvent) bool {
			hour := tx.Timestamp.In(zone).Hour()
			return inWindow(hour, start, end) && EvaluateCondition(tx, first)
		}, nil

	case domain.ComparatorExpression:
		prog, err := c.expr.compile(cmp.Expression)
		if err != nil {
			return nil, err
		}
		return func(tx *domain.TransactionEvent) bool {
			return c.expr.eval(prog, tx)
		}, nil

	default:
		return nil, fmt.Errorf("unknown comparator kind %q", cmp.Kind)
	}
}

// foldConditions combines conditions left to right. The logical operator on
// condition i-1 joins condition i; when it is missing, condition i leaves the
// running result unchanged.
func foldConditions(tx *domain.TransactionEvent, conds []domain.RuleCondition) bool {
	if len(conds) == 0 {
		return false
	}
	result := EvaluateCondition(tx, conds[0])
	for i := 1; i < len(conds); i++ {
		current := EvaluateCondition(tx, conds[i])
		switch conds[i-1].LogicalOperator {
		case domain.LogicalAnd:
			result = result && current
		case domain.LogicalOr:
			result = result || current
		}
	}
	return result
}

// inWindow reports whether hour lies in [start, end), wrapping midnight
// when start > end.
func inWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func intOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func intPtr(v int) *int { return &v }
