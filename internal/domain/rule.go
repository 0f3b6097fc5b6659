package domain

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals             Operator = "EQUALS"
	OpNotEquals          Operator = "NOT_EQUALS"
	OpGreaterThan        Operator = "GREATER_THAN"
	OpLessThan           Operator = "LESS_THAN"
	OpGreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	OpLessThanOrEqual    Operator = "LESS_THAN_OR_EQUAL"
	OpIn                 Operator = "IN"
	OpNotIn              Operator = "NOT_IN"
	OpContains           Operator = "CONTAINS"
	OpBetween            Operator = "BETWEEN"
)

// LogicalOperator joins a condition with the one that follows it.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Severity of a rule.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Category groups rules by their governing source.
type Category string

const (
	CategoryRegulatory        Category = "CBN_REGULATORY"
	CategoryInternalPolicy    Category = "INTERNAL_POLICY"
	CategoryAML               Category = "AML_CTF"
	CategoryAccountSecurity   Category = "ACCOUNT_SECURITY"
	CategoryVelocity          Category = "VELOCITY_CHECK"
	CategoryBehavioralAnomaly Category = "BEHAVIORAL_ANOMALY"
)

// RuleCondition is a single field/operator/value predicate.
// LogicalOperator decides how the next condition combines with the
// running result; it is ignored on the last condition.
type RuleCondition struct {
	Field           string          `json:"field"`
	Operator        Operator        `json:"operator"`
	Value           any             `json:"value"`
	LogicalOperator LogicalOperator `json:"logicalOperator,omitempty"`
}

// ComparatorKind selects how a rule decides whether it triggers.
type ComparatorKind string

const (
	// ComparatorStatic folds the declared conditions left to right.
	ComparatorStatic ComparatorKind = "static"
	// ComparatorTierLimit compares amount with the tier's single-transaction limit.
	ComparatorTierLimit ComparatorKind = "tier_limit"
	// ComparatorVolumeSpike compares today's volume with a multiple of the
	// user's typical daily volume.
	ComparatorVolumeSpike ComparatorKind = "volume_spike"
	// ComparatorAmountAnomaly compares amount with a multiple of the user's average.
	ComparatorAmountAnomaly ComparatorKind = "amount_anomaly"
	// ComparatorTimeWindow requires a local-hour window and the first condition.
	ComparatorTimeWindow ComparatorKind = "time_window"
	// ComparatorExpression evaluates a CEL boolean expression.
	ComparatorExpression ComparatorKind = "expression"
)

// Comparator is the tagged variant attached to a rule. Only the fields that
// belong to Kind are read. Window hours and offset are pointers so that an
// explicit 0 (midnight, UTC) differs from an absent value.
type Comparator struct {
	Kind            ComparatorKind `json:"kind"`
	Multiplier      float64        `json:"multiplier,omitempty"`
	WindowStartHour *int           `json:"windowStartHour,omitempty"`
	WindowEndHour   *int           `json:"windowEndHour,omitempty"`
	UTCOffsetHours  *int           `json:"utcOffsetHours,omitempty"`
	Expression      string         `json:"expression,omitempty"`
}

// RuleMetadata carries audit information for a rule.
type RuleMetadata struct {
	EffectiveDate       string `json:"effectiveDate"`
	LastUpdated         string `json:"lastUpdated"`
	RegulatoryReference string `json:"regulatoryReference,omitempty"`
	UpdatedBy           string `json:"updatedBy"`
}

// RiskRule is one entry of the rule catalog.
type RiskRule struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    Category        `json:"category"`
	Description string          `json:"description"`
	Conditions  []RuleCondition `json:"conditions"`
	RiskScore   float64         `json:"riskScore"`
	Severity    Severity        `json:"severity"`
	FlagCode    string          `json:"flagCode"`
	Enabled     bool            `json:"enabled"`
	Comparator  Comparator      `json:"comparator"`
	Metadata    RuleMetadata    `json:"metadata"`
}

// TierLimit is the amount ceiling attached to a KYC tier.
type TierLimit struct {
	DailyLimit             float64 `json:"dailyLimit"`
	SingleTransactionLimit float64 `json:"singleTransactionLimit"`
}

// RegulatoryFramework lists the sources the rule book implements.
type RegulatoryFramework struct {
	CBNCirculars     []string `json:"cbnCirculars"`
	InternalPolicies []string `json:"internalPolicies"`
}

// RuleBook is the declarative catalog document.
type RuleBook struct {
	Rules               []RiskRule            `json:"rules"`
	KYCLimits           map[KYCTier]TierLimit `json:"kycLimits"`
	Version             string                `json:"version"`
	EffectiveDate       string                `json:"effectiveDate"`
	LastUpdated         string                `json:"lastUpdated"`
	RegulatoryFramework RegulatoryFramework   `json:"regulatoryFramework"`
}

// RuleResult is the per-rule audit entry of a scoring pass.
type RuleResult struct {
	RuleID    string   `json:"ruleId"`
	FlagCode  string   `json:"flagCode"`
	Triggered bool     `json:"triggered"`
	Weight    float64  `json:"weight"`
	Severity  Severity `json:"severity"`
}
