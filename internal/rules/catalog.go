// Package rules holds the risk rule catalog, its condition evaluator and the
// risk scorer.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// ErrInvalidCatalog is returned when a rule book fails validation.
var ErrInvalidCatalog = errors.New("invalid rule catalog")

// Catalog is the compiled, read-only form of a rule book. It is safe for
// concurrent use; nothing mutates it after NewCatalog returns.
type Catalog struct {
	book     domain.RuleBook
	limits   map[domain.KYCTier]domain.TierLimit
	compiled []compiledRule
	byID     map[string]int
	expr     *exprEnv
}

type compiledRule struct {
	rule    domain.RiskRule
	trigger trigger
}

// NewCatalog validates a rule book and compiles every rule's comparator.
// The book is copied; later changes to it do not affect the catalog.
func NewCatalog(book domain.RuleBook) (*Catalog, error) {
	expr, err := newExprEnv()
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		book:   cloneBook(book),
		limits: make(map[domain.KYCTier]domain.TierLimit, len(book.KYCLimits)),
		byID:   make(map[string]int, len(book.Rules)),
		expr:   expr,
	}
	for tier, limit := range book.KYCLimits {
		c.limits[tier] = limit
	}

	ids := make(map[string]bool, len(c.book.Rules))
	flags := make(map[string]bool, len(c.book.Rules))
	c.compiled = make([]compiledRule, 0, len(c.book.Rules))

	for i := range c.book.Rules {
		rule := &c.book.Rules[i]
		if err := validateRule(rule); err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidCatalog, rule.ID, err)
		}
		if ids[rule.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrInvalidCatalog, rule.ID)
		}
		if flags[rule.FlagCode] {
			return nil, fmt.Errorf("%w: duplicate flag code %q", ErrInvalidCatalog, rule.FlagCode)
		}
		ids[rule.ID] = true
		flags[rule.FlagCode] = true

		trig, err := c.compileTrigger(rule)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidCatalog, rule.ID, err)
		}
		c.byID[rule.ID] = len(c.compiled)
		c.compiled = append(c.compiled, compiledRule{rule: *rule, trigger: trig})
	}

	return c, nil
}

// LoadCatalogFile reads a JSON rule book from path and compiles it.
func LoadCatalogFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule book: %w", err)
	}
	var book domain.RuleBook
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return NewCatalog(book)
}

// EvaluateRule reports whether rule triggers for tx. Disabled rules never
// trigger, and a rule whose comparator cannot be built evaluates false.
// A catalog rule passed unchanged reuses its compiled trigger.
func (c *Catalog) EvaluateRule(tx *domain.TransactionEvent, rule domain.RiskRule) bool {
	if !rule.Enabled || tx == nil {
		return false
	}
	if trig := c.precompiled(rule); trig != nil {
		return trig(tx)
	}
	trig, err := c.compileTrigger(&rule)
	if err != nil {
		return false
	}
	return trig(tx)
}

func (c *Catalog) precompiled(rule domain.RiskRule) trigger {
	i, ok := c.byID[rule.ID]
	if !ok {
		return nil
	}
	cr := c.compiled[i]
	if !reflect.DeepEqual(cr.rule.Comparator, rule.Comparator) || !reflect.DeepEqual(cr.rule.Conditions, rule.Conditions) {
		return nil
	}
	return cr.trigger
}

// Rules returns a copy of the rules in declared order.
func (c *Catalog) Rules() []domain.RiskRule {
	return cloneBook(c.book).Rules
}

// Book returns a copy of the underlying rule book.
func (c *Catalog) Book() domain.RuleBook {
	return cloneBook(c.book)
}

// Version returns the rule book version.
func (c *Catalog) Version() string {
	return c.book.Version
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	return len(c.compiled)
}

// CriticalFlags returns the flag codes of CRITICAL regulatory rules, in
// catalog order. A transaction carrying any of them is always blocked.
func (c *Catalog) CriticalFlags() []string {
	var flags []string
	for _, cr := range c.compiled {
		if cr.rule.Severity == domain.SeverityCritical && cr.rule.Category == domain.CategoryRegulatory {
			flags = append(flags, cr.rule.FlagCode)
		}
	}
	return flags
}

// FlagDescription returns the description of the rule raising flag.
func (c *Catalog) FlagDescription(flag string) (string, bool) {
	for _, cr := range c.compiled {
		if cr.rule.FlagCode == flag {
			return cr.rule.Description, true
		}
	}
	return "", false
}

func validateRule(r *domain.RiskRule) error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.FlagCode == "" {
		return fmt.Errorf("flag code is required")
	}
	if r.RiskScore < 0 || r.RiskScore > 100 {
		return fmt.Errorf("risk score %v outside [0, 100]", r.RiskScore)
	}
	switch r.Severity {
	case domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow:
	default:
		return fmt.Errorf("unknown severity %q", r.Severity)
	}
	switch r.Category {
	case domain.CategoryRegulatory, domain.CategoryInternalPolicy, domain.CategoryAML,
		domain.CategoryAccountSecurity, domain.CategoryVelocity, domain.CategoryBehavioralAnomaly:
	default:
		return fmt.Errorf("unknown category %q", r.Category)
	}
	for i, cond := range r.Conditions {
		if cond.Field == "" {
			return fmt.Errorf("condition %d: field is required", i)
		}
		switch cond.Operator {
		case domain.OpEquals, domain.OpNotEquals, domain.OpGreaterThan, domain.OpLessThan,
			domain.OpGreaterThanOrEqual, domain.OpLessThanOrEqual, domain.OpIn, domain.OpNotIn,
			domain.OpContains, domain.OpBetween:
		default:
			return fmt.Errorf("condition %d: unknown operator %q", i, cond.Operator)
		}
		switch cond.LogicalOperator {
		case "", domain.LogicalAnd, domain.LogicalOr:
		default:
			return fmt.Errorf("condition %d: unknown logical operator %q", i, cond.LogicalOperator)
		}
	}
	return nil
}

func cloneComparator(cmp domain.Comparator) domain.Comparator {
	for _, p := range []**int{&cmp.WindowStartHour, &cmp.WindowEndHour, &cmp.UTCOffsetHours} {
		if *p != nil {
			*p = intPtr(**p)
		}
	}
	return cmp
}

func cloneBook(b domain.RuleBook) domain.RuleBook {
	out := b
	out.Rules = make([]domain.RiskRule, len(b.Rules))
	for i, r := range b.Rules {
		r.Conditions = append([]domain.RuleCondition(nil), r.Conditions...)
		r.Comparator = cloneComparator(r.Comparator)
		out.Rules[i] = r
	}
	if b.KYCLimits != nil {
		out.KYCLimits = make(map[domain.KYCTier]domain.TierLimit, len(b.KYCLimits))
		for k, v := range b.KYCLimits {
			out.KYCLimits[k] = v
		}
	}
	out.RegulatoryFramework.CBNCirculars = append([]string(nil), b.RegulatoryFramework.CBNCirculars...)
	out.RegulatoryFramework.InternalPolicies = append([]string(nil), b.RegulatoryFramework.InternalPolicies...)
	return out
}
