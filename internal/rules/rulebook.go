package rules

import (
	"github.com/opensource-finance/sentinel/internal/domain"
)

const (
	refKYC = "FPR/DIR/GEN/CIR/07/010"
	refAML = "BSD/DIR/GEN/LAB/11/021"

	compliance = "compliance@fintech.ng"
	risk       = "risk@fintech.ng"

	rulesUpdated = "2026-01-10"
)

// DefaultRuleBook returns a fresh copy of the built-in Nigerian fintech rule
// book: CBN tier limits and BVN checks, AML structuring, velocity and
// behavioural rules, and internal policy rules.
func DefaultRuleBook() domain.RuleBook {
	return domain.RuleBook{
		Version:       "2.1.0",
		EffectiveDate: "2026-01-01",
		LastUpdated:   "2026-01-15",
		KYCLimits: map[domain.KYCTier]domain.TierLimit{
			domain.KYCTier0: {DailyLimit: 0, SingleTransactionLimit: 0},
			domain.KYCTier1: {DailyLimit: 50000, SingleTransactionLimit: 50000},
			domain.KYCTier2: {DailyLimit: 200000, SingleTransactionLimit: 200000},
			domain.KYCTier3: {DailyLimit: 1000000, SingleTransactionLimit: 1000000},
		},
		RegulatoryFramework: domain.RegulatoryFramework{
			CBNCirculars: []string{
				"PSM/DIR/PUB/CIR/01/037 - Guidelines on Electronic Banking",
				refKYC + " - KYC Requirements",
				refAML + " - AML/CFT Regulations",
			},
			InternalPolicies: []string{
				"FraudPrevention-Policy-v3.2",
				"TransactionMonitoring-SOP-v2.0",
			},
		},
		Rules: []domain.RiskRule{
			{
				ID:          "rule_001",
				Name:        "KYC Tier Single Transaction Limit",
				Category:    domain.CategoryRegulatory,
				Description: "CBN mandated single transaction limits based on KYC tier",
				Conditions: []domain.RuleCondition{
					{Field: "amount", Operator: domain.OpGreaterThan, Value: 0.0, LogicalOperator: domain.LogicalAnd},
				},
				RiskScore:  100,
				Severity:   domain.SeverityCritical,
				FlagCode:   "CBN_001_TIER_LIMIT_EXCEEDED",
				Enabled:    true,
				Comparator: domain.Comparator{Kind: domain.ComparatorTierLimit},
				Metadata: domain.RuleMetadata{
					EffectiveDate:       "2020-10-01",
					LastUpdated:         rulesUpdated,
					RegulatoryReference: refKYC,
					UpdatedBy:           compliance,
				},
			},
			{
				ID:          "rule_002",
				Name:        "Unverified BVN Transaction",
				Category:    domain.CategoryRegulatory,
				Description: "Transactions from accounts without BVN verification",
				Conditions: []domain.RuleCondition{
					{Field: "bvnVerified", Operator: domain.OpEquals, Value: false, LogicalOperator: domain.LogicalAnd},
					{Field: "amount", Operator: domain.OpGreaterThan, Value: 10000.0},
				},
				RiskScore:  80,
				Severity:   domain.SeverityCritical,
				FlagCode:   "CBN_002_BVN_UNVERIFIED",
				Enabled:    true,
				Comparator: domain.Comparator{Kind: domain.ComparatorStatic},
				Metadata:   domain.RuleMetadata{LastUpdated: rulesUpdated, RegulatoryReference: refAML, UpdatedBy: compliance},
			},
			{
				ID:          "rule_003",
				Name:        "New Account High Value Transaction",
				Category:    domain.CategoryInternalPolicy,
				Description: "Account less than 7 days old attempting high value transaction",
				Conditions: []domain.RuleCondition{
					{Field: "accountAge", Operator: domain.OpLessThan, Value: 7.0, LogicalOperator: domain.LogicalAnd},
					{Field: "amount", Operator: domain.OpGreaterThan, Value: 100000.0},
				},
				RiskScore:  35,
				Severity:   domain.SeverityHigh,
				FlagCode:   "POL_003_NEW_ACCOUNT_HIGH_VALUE",
				Enabled:    true,
				Comparator: domain.Comparator{Kind: domain.ComparatorStatic},
				Metadata:   domain.RuleMetadata{LastUpdated: rulesUpdated, UpdatedBy: risk},
			},
			{
				ID:          "rule_004",
				Name:        "Odd Hours Transaction",
				Category:    domain.CategoryInternalPolicy,
				Description: "Transaction during unusual hours (11PM - 5AM WAT)",
				Conditions: []domain.RuleCondition{
					{Field: "amount", Operator: domain.OpGreaterThan, Value: 50000.0},
				},
				RiskScore: 15,
				Severity:  domain.SeverityMedium,
				FlagCode:  "POL_004_ODD_HOURS",
				Enabled:   true,
				Comparator: domain.Comparator{
					Kind:            domain.ComparatorTimeWindow,
					WindowStartHour: intPtr(DefaultWindowStartHour),
					WindowEndHour:   intPtr(DefaultWindowEndHour),
					UTCOffsetHours:  intPtr(DefaultUTCOffsetHours),
				},
				Metadata: domain.RuleMetadata{LastUpdated: rulesUpdated, UpdatedBy: risk},
			},
			{
				ID:          "rule_005",
				Name:        "New Recipient High Amount",
				Category:    domain.CategoryAccountSecurity,
				Description: "First-time recipient with high transaction amount",
				Conditions: []domain.RuleCondition{
					{Field: "recipientNew", Operator: domain.OpEquals, Value: true, LogicalOperator: domain.LogicalAnd},
					{Field: "amount", Operator: domain.OpGreaterThan, Value: 200000.0},
				},
				RiskScore:  20,
				Severity:   domain.SeverityMedium,
				FlagCode:   "SEC_005_NEW_RECIPIENT_HIGH_AMT",
				Enabled:    true,
				Comparator: domain.Comparator{Kind: domain.ComparatorStatic},
				Metadata:   domain.RuleMetadata{LastUpdated: rulesUpdated, UpdatedBy: risk},
			},
			{
				ID:          "rule_006",
				Name:        "Structuring Detection",
				Category:    domain.CategoryAML,
				Description: "Multiple transactions just below reporting threshold",
				Conditions: []domain.RuleCondition{
					{Field: "userHistory.dailyTransactionCount", Operator: domain.OpGreaterThan, Value: 5.0, LogicalOperator: domain.LogicalAnd},
					{Field: "amount", Operator: domain.OpBetween, Value: []any{400000.0, 500000.0}},
				},
				RiskScore:  45,
				Severity:   domain.SeverityHigh,
				FlagCode:   "AML_006_STRUCTURING",
				Enabled:    true,
				Comparator: domain.Comparator{Kind: domain.ComparatorStatic},
				Metadata:   domain.RuleMetadata{LastUpdated: rulesUpdated, RegulatoryReference: refAML, UpdatedBy: compliance},
			},
			{
				ID:          "rule_007",
				Name:        "Daily Transaction Volume Exceeded",
				Category:    domain.CategoryVelocity,
				Description: "User exceeded typical daily transaction volume by 300%",
				Conditions: []domain.RuleCondition{
					{Field: "userHistory.dailyTransactionVolume", Operator: domain.OpGreaterThan, Value: 0.0},
				},
				RiskScore:  30,
				Severity:   domain.SeverityHigh,
				FlagCode:   "VEL_007_DAILY_VOLUME_SPIKE",
				Enabled:    true,
				Comparator: domain.Comparator{Kind: domain.ComparatorVolumeSpike, Multiplier: DefaultVolumeSpikeMultiplier},
				Metadata:   domain.RuleMetadata{LastUpdated: rulesUpdated, UpdatedBy: risk},
			},
			{
				ID:          "rule_008",
				Name:        "Multiple Failed Attempts",
				Category:    domain.CategoryAccountSecurity,
				Description: "Multiple failed transaction attempts in 24 hours",
				Conditions: []domain.RuleCondition{
					{Field: "userHistory.failedTransactionsLast24h", Operator: domain.OpGreaterThan, Value: 3.0},
				},
				RiskScore:  25,
				Severity:   domain.SeverityHigh,
				FlagCode:   "SEC_008_MULTIPLE_FAILED",
				Enabled:    true,
				Comparator: domain.Comparator{Kind: domain.ComparatorStatic},
				Metadata:   domain.RuleMetadata{LastUpdated: rulesUpdated, UpdatedBy: risk},
			},
			{
				ID:          "rule_009",
				Name:        "Amount Anomaly Detection",
				Category:    domain.CategoryBehavioralAnomaly,
				Description: "Transaction amount exceeds user's average by 500%",
				Conditions: []domain.RuleCondition{
					{Field: "amount", Operator: domain.OpGreaterThan, Value: 0.0},
				},
				RiskScore:  25,
				Severity:   domain.SeverityMedium,
				FlagCode:   "BEH_009_AMOUNT_ANOMALY",
				Enabled:    true,
				Comparator: domain.Comparator{Kind: domain.ComparatorAmountAnomaly, Multiplier: DefaultAmountAnomalyMultiplier},
				Metadata:   domain.RuleMetadata{LastUpdated: rulesUpdated, UpdatedBy: risk},
			},
			{
				ID:          "rule_010",
				Name:        "Foreign Transaction",
				Category:    domain.CategoryInternalPolicy,
				Description: "Transaction from outside Nigeria",
				Conditions: []domain.RuleCondition{
					{Field: "location.country", Operator: domain.OpNotEquals, Value: "NG"},
				},
				RiskScore:  20,
				Severity:   domain.SeverityMedium,
				FlagCode:   "POL_010_FOREIGN_TXN",
				Enabled:    true,
				Comparator: domain.Comparator{Kind: domain.ComparatorStatic},
				Metadata:   domain.RuleMetadata{LastUpdated: rulesUpdated, UpdatedBy: risk},
			},
			{
				ID:          "rule_011",
				Name:        "Large Cash Withdrawal",
				Category:    domain.CategoryInternalPolicy,
				Description: "Large withdrawal transactions require additional scrutiny",
				Conditions: []domain.RuleCondition{
					{Field: "transactionType", Operator: domain.OpEquals, Value: "WITHDRAWAL", LogicalOperator: domain.LogicalAnd},
					{Field: "amount", Operator: domain.OpGreaterThan, Value: 500000.0},
				},
				RiskScore:  20,
				Severity:   domain.SeverityMedium,
				FlagCode:   "POL_011_LARGE_WITHDRAWAL",
				Enabled:    true,
				Comparator: domain.Comparator{Kind: domain.ComparatorStatic},
				Metadata:   domain.RuleMetadata{LastUpdated: rulesUpdated, UpdatedBy: risk},
			},
		},
	}
}

// DefaultCatalog compiles DefaultRuleBook. It panics only if the built-in
// rule book is invalid.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultRuleBook())
	if err != nil {
		panic(err)
	}
	return c
}
