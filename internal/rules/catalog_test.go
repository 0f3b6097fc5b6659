package rules

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

func highRiskTx() *domain.TransactionEvent {
	device := "device_fingerprint_123"
	state := "Lagos"
	ip := "102.89.32.10"
	return &domain.TransactionEvent{
		ID:                "txn_123456",
		UserID:            "user_abc",
		RecipientID:       "recipient_xyz",
		Amount:            450000,
		Currency:          "NGN",
		Channel:           domain.ChannelMobile,
		TransactionType:   domain.TransactionTransfer,
		KYCTier:           domain.KYCTier1,
		AccountAge:        3,
		BVNVerified:       false,
		RecipientNew:      true,
		DeviceFingerprint: &device,
		Location:          domain.Location{Country: "NG", State: &state, IPAddress: &ip},
		Timestamp:         time.Date(2026, 1, 21, 23, 30, 0, 0, time.UTC),
		UserHistory: domain.UserHistory{
			AvgTransactionAmount:      50000,
			DailyTransactionCount:     6,
			DailyTransactionVolume:    2500000,
			FailedTransactionsLast24h: 4,
			TotalTransactions:         15,
		},
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	if c.Len() != 11 {
		t.Fatalf("expected 11 rules, got %d", c.Len())
	}
	if c.Version() != "2.1.0" {
		t.Errorf("expected version 2.1.0, got %s", c.Version())
	}

	want := []string{"CBN_001_TIER_LIMIT_EXCEEDED", "CBN_002_BVN_UNVERIFIED"}
	if got := c.CriticalFlags(); !reflect.DeepEqual(got, want) {
		t.Errorf("CriticalFlags() = %v, want %v", got, want)
	}

	desc, ok := c.FlagDescription("POL_010_FOREIGN_TXN")
	if !ok || desc != "Transaction from outside Nigeria" {
		t.Errorf("unexpected description %q (%v)", desc, ok)
	}
}

func TestScoreQuietTransaction(t *testing.T) {
	s := DefaultCatalog().Score(quietTx())

	if s.RiskScore != 0 {
		t.Errorf("expected score 0, got %v", s.RiskScore)
	}
	if len(s.RuleFlags) != 0 {
		t.Errorf("expected no flags, got %v", s.RuleFlags)
	}
	if len(s.RuleResults) != 11 {
		t.Errorf("expected 11 rule results, got %d", len(s.RuleResults))
	}
}

func TestScoreTierLimitAndBVN(t *testing.T) {
	tx := quietTx()
	tx.Amount = 450000
	tx.KYCTier = domain.KYCTier1
	tx.BVNVerified = false
	tx.UserHistory.AvgTransactionAmount = 450000

	s := DefaultCatalog().Score(tx)

	want := []string{"CBN_001_TIER_LIMIT_EXCEEDED", "CBN_002_BVN_UNVERIFIED"}
	if !reflect.DeepEqual(s.RuleFlags, want) {
		t.Errorf("flags = %v, want %v", s.RuleFlags, want)
	}
	if s.RiskScore != 100 {
		t.Errorf("expected 100+80 to clamp to 100, got %v", s.RiskScore)
	}
}

func TestScoreNewAccountHighValue(t *testing.T) {
	tx := quietTx()
	tx.AccountAge = 3
	tx.Amount = 150000
	tx.UserHistory.AvgTransactionAmount = 50000

	s := DefaultCatalog().Score(tx)

	if !reflect.DeepEqual(s.RuleFlags, []string{"POL_003_NEW_ACCOUNT_HIGH_VALUE"}) {
		t.Errorf("unexpected flags %v", s.RuleFlags)
	}
	if s.RiskScore != 35 {
		t.Errorf("expected 35, got %v", s.RiskScore)
	}
}

func TestScoreHighRiskTransaction(t *testing.T) {
	s := DefaultCatalog().Score(highRiskTx())

	want := []string{
		"CBN_001_TIER_LIMIT_EXCEEDED",
		"CBN_002_BVN_UNVERIFIED",
		"POL_003_NEW_ACCOUNT_HIGH_VALUE",
		"POL_004_ODD_HOURS",
		"SEC_005_NEW_RECIPIENT_HIGH_AMT",
		"AML_006_STRUCTURING",
		"VEL_007_DAILY_VOLUME_SPIKE",
		"SEC_008_MULTIPLE_FAILED",
		"BEH_009_AMOUNT_ANOMALY",
	}
	if !reflect.DeepEqual(s.RuleFlags, want) {
		t.Errorf("flags = %v, want %v", s.RuleFlags, want)
	}
	if s.RiskScore != 100 {
		t.Errorf("expected clamped score 100, got %v", s.RiskScore)
	}
}

func TestScoreDeterministic(t *testing.T) {
	c := DefaultCatalog()
	first := c.Score(highRiskTx())
	for i := 0; i < 20; i++ {
		again := c.Score(highRiskTx())
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestScoreSumsBelowCeiling(t *testing.T) {
	tx := quietTx()
	tx.Location.Country = "GH"
	tx.TransactionType = domain.TransactionWithdrawal
	tx.Amount = 600000
	tx.UserHistory.AvgTransactionAmount = 600000

	s := DefaultCatalog().Score(tx)

	want := []string{"POL_010_FOREIGN_TXN", "POL_011_LARGE_WITHDRAWAL"}
	if !reflect.DeepEqual(s.RuleFlags, want) {
		t.Errorf("flags = %v, want %v", s.RuleFlags, want)
	}
	if s.RiskScore != 40 {
		t.Errorf("expected 40, got %v", s.RiskScore)
	}
}

func TestFoldConditions(t *testing.T) {
	tx := quietTx()
	yes := cond("amount", domain.OpGreaterThan, 0)
	no := cond("amount", domain.OpLessThan, 0)
	with := func(c domain.RuleCondition, op domain.LogicalOperator) domain.RuleCondition {
		c.LogicalOperator = op
		return c
	}

	tests := []struct {
		name  string
		conds []domain.RuleCondition
		want  bool
	}{
		{"single true", []domain.RuleCondition{yes}, true},
		{"single false", []domain.RuleCondition{no}, false},
		{"and", []domain.RuleCondition{with(yes, domain.LogicalAnd), no}, false},
		{"or", []domain.RuleCondition{with(no, domain.LogicalOr), yes}, true},
		// (false OR true) AND false, not false OR (true AND false)
		{"left to right", []domain.RuleCondition{with(no, domain.LogicalOr), with(yes, domain.LogicalAnd), no}, false},
		// (true AND false) OR true
		{"left to right or last", []domain.RuleCondition{with(yes, domain.LogicalAnd), with(no, domain.LogicalOr), yes}, true},
		{"missing operator keeps result", []domain.RuleCondition{yes, no}, true},
		{"missing operator keeps false", []domain.RuleCondition{no, yes}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := foldConditions(tx, tt.conds); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateRule(t *testing.T) {
	c := DefaultCatalog()
	rules := c.Rules()

	t.Run("disabled never triggers", func(t *testing.T) {
		r := rules[1] // BVN rule
		r.Enabled = false
		tx := highRiskTx()
		if c.EvaluateRule(tx, r) {
			t.Error("disabled rule triggered")
		}
		r.Enabled = true
		if !c.EvaluateRule(tx, r) {
			t.Error("enabled rule did not trigger")
		}
	})

	t.Run("tier limit", func(t *testing.T) {
		r := rules[0]
		tx := quietTx()
		tx.KYCTier = domain.KYCTier0
		tx.Amount = 1
		if !c.EvaluateRule(tx, r) {
			t.Error("TIER_0 allows nothing")
		}
		tx.KYCTier = domain.KYCTier2
		tx.Amount = 200000
		if c.EvaluateRule(tx, r) {
			t.Error("amount equal to the limit must not trigger")
		}
		tx.KYCTier = domain.KYCTier("TIER_9")
		if c.EvaluateRule(tx, r) {
			t.Error("unknown tier must not trigger")
		}
	})

	t.Run("volume spike", func(t *testing.T) {
		r := rules[6]
		tx := quietTx()
		tx.UserHistory = domain.UserHistory{AvgTransactionAmount: 100, DailyTransactionCount: 2, DailyTransactionVolume: 600}
		if c.EvaluateRule(tx, r) {
			t.Error("volume equal to 3x typical must not trigger")
		}
		tx.UserHistory.DailyTransactionVolume = 601
		if !c.EvaluateRule(tx, r) {
			t.Error("expected spike")
		}
	})

	t.Run("amount anomaly", func(t *testing.T) {
		r := rules[8]
		tx := quietTx()
		tx.UserHistory.AvgTransactionAmount = 200
		tx.Amount = 1000
		if c.EvaluateRule(tx, r) {
			t.Error("5x average must not trigger")
		}
		tx.Amount = 1001
		if !c.EvaluateRule(tx, r) {
			t.Error("expected anomaly")
		}
	})
}

func TestTimeWindow(t *testing.T) {
	c := DefaultCatalog()
	r := c.Rules()[3]

	// UTC hour -> local hour at UTC+1
	tests := []struct {
		utcHour int
		want    bool
	}{
		{21, false}, // 22
		{22, true},  // 23
		{23, true},  // 00
		{3, true},   // 04
		{4, false},  // 05
		{12, false}, // 13
	}

	for _, tt := range tests {
		tx := quietTx()
		tx.Amount = 60000
		tx.UserHistory.AvgTransactionAmount = 60000
		tx.Timestamp = time.Date(2026, 1, 21, tt.utcHour, 15, 0, 0, time.UTC)
		if got := c.EvaluateRule(tx, r); got != tt.want {
			t.Errorf("utc hour %d: got %v, want %v", tt.utcHour, got, tt.want)
		}
	}

	t.Run("first condition required", func(t *testing.T) {
		tx := quietTx()
		tx.Timestamp = time.Date(2026, 1, 21, 23, 0, 0, 0, time.UTC)
		tx.Amount = 50000
		if c.EvaluateRule(tx, r) {
			t.Error("amount not above 50000 must not trigger")
		}
	})
}

func TestTimeWindowExplicitZero(t *testing.T) {
	rule := domain.RiskRule{
		ID:        "tw_utc",
		Category:  domain.CategoryInternalPolicy,
		RiskScore: 10,
		Severity:  domain.SeverityLow,
		FlagCode:  "TW_UTC_MIDNIGHT",
		Enabled:   true,
		Conditions: []domain.RuleCondition{
			{Field: "amount", Operator: domain.OpGreaterThan, Value: 0.0},
		},
		Comparator: domain.Comparator{
			Kind:            domain.ComparatorTimeWindow,
			WindowStartHour: intPtr(0),
			WindowEndHour:   intPtr(1),
			UTCOffsetHours:  intPtr(0),
		},
	}
	c, err := NewCatalog(domain.RuleBook{Version: "test", Rules: []domain.RiskRule{rule}})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	tx := quietTx()
	tx.Amount = 10
	tx.Timestamp = time.Date(2026, 1, 21, 0, 30, 0, 0, time.UTC)
	if !c.EvaluateRule(tx, rule) {
		t.Error("00:30 UTC should fall in the [0, 1) UTC window")
	}

	tx.Timestamp = time.Date(2026, 1, 21, 23, 30, 0, 0, time.UTC)
	if c.EvaluateRule(tx, rule) {
		t.Error("23:30 UTC is outside the [0, 1) UTC window")
	}

	t.Run("absent fields use defaults", func(t *testing.T) {
		r := rule
		r.Comparator = domain.Comparator{Kind: domain.ComparatorTimeWindow}
		tx := quietTx()
		tx.Amount = 10
		tx.Timestamp = time.Date(2026, 1, 21, 22, 30, 0, 0, time.UTC) // 23:30 at UTC+1
		if !c.EvaluateRule(tx, r) {
			t.Error("default window should cover 23:30 local time")
		}
	})

	t.Run("offset out of range", func(t *testing.T) {
		r := rule
		r.Comparator.UTCOffsetHours = intPtr(20)
		if _, err := NewCatalog(domain.RuleBook{Version: "test", Rules: []domain.RiskRule{r}}); err == nil {
			t.Error("expected error for offset outside -12..14")
		}
	})
}

func TestEvaluateRuleReusesCompiledTrigger(t *testing.T) {
	c := DefaultCatalog()
	for _, r := range c.Rules() {
		if c.precompiled(r) == nil {
			t.Errorf("rule %s should reuse its compiled trigger", r.ID)
		}
	}

	r := c.Rules()[3]
	r.Comparator.WindowStartHour = intPtr(9)
	r.Comparator.WindowEndHour = intPtr(17)
	if c.precompiled(r) != nil {
		t.Fatal("a changed comparator must not reuse the catalog trigger")
	}

	tx := quietTx()
	tx.Amount = 60000
	tx.Timestamp = time.Date(2026, 1, 21, 11, 0, 0, 0, time.UTC) // 12:00 at UTC+1
	if !c.EvaluateRule(tx, r) {
		t.Error("changed window should be evaluated as passed")
	}
	if c.EvaluateRule(tx, c.Rules()[3]) {
		t.Error("catalog window should not cover noon")
	}
}

func TestInWindow(t *testing.T) {
	if !inWindow(10, 9, 17) || inWindow(17, 9, 17) {
		t.Error("non-wrapping window is [start, end)")
	}
	if !inWindow(0, 23, 5) || inWindow(5, 23, 5) || !inWindow(23, 23, 5) {
		t.Error("wrapping window is [start, 24) and [0, end)")
	}
}

func TestExpressionComparator(t *testing.T) {
	book := domain.RuleBook{
		Version: "test",
		Rules: []domain.RiskRule{
			{
				ID:        "expr_001",
				Category:  domain.CategoryAML,
				RiskScore: 50,
				Severity:  domain.SeverityHigh,
				FlagCode:  "EXPR_001",
				Enabled:   true,
				Comparator: domain.Comparator{
					Kind:       domain.ComparatorExpression,
					Expression: `amount > 100000.0 && (tx.channel == "USSD" || history.failedTransactionsLast24h > 2.0)`,
				},
			},
		},
	}
	c, err := NewCatalog(book)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	tx := quietTx()
	tx.Amount = 200000
	if got := c.Score(tx); got.RiskScore != 0 {
		t.Errorf("expected no trigger, got %+v", got)
	}

	tx.Channel = domain.ChannelUSSD
	if got := c.Score(tx); got.RiskScore != 50 || len(got.RuleFlags) != 1 {
		t.Errorf("expected trigger, got %+v", got)
	}

	t.Run("non bool expression rejected", func(t *testing.T) {
		bad := book
		bad.Rules = []domain.RiskRule{book.Rules[0]}
		bad.Rules[0].Comparator.Expression = "amount * 2.0"
		if _, err := NewCatalog(bad); !errors.Is(err, ErrInvalidCatalog) {
			t.Errorf("expected ErrInvalidCatalog, got %v", err)
		}
	})
}

func TestNewCatalogValidation(t *testing.T) {
	valid := func() domain.RuleBook {
		b := DefaultRuleBook()
		b.Rules = b.Rules[:2]
		return b
	}

	tests := []struct {
		name   string
		mutate func(b *domain.RuleBook)
	}{
		{"duplicate flag", func(b *domain.RuleBook) { b.Rules[1].FlagCode = b.Rules[0].FlagCode }},
		{"duplicate id", func(b *domain.RuleBook) { b.Rules[1].ID = b.Rules[0].ID }},
		{"weight above 100", func(b *domain.RuleBook) { b.Rules[0].RiskScore = 101 }},
		{"negative weight", func(b *domain.RuleBook) { b.Rules[0].RiskScore = -1 }},
		{"unknown severity", func(b *domain.RuleBook) { b.Rules[0].Severity = "SEVERE" }},
		{"unknown category", func(b *domain.RuleBook) { b.Rules[0].Category = "OTHER" }},
		{"unknown operator", func(b *domain.RuleBook) { b.Rules[1].Conditions[0].Operator = "LIKE" }},
		{"unknown logical operator", func(b *domain.RuleBook) { b.Rules[1].Conditions[0].LogicalOperator = "XOR" }},
		{"static without conditions", func(b *domain.RuleBook) { b.Rules[1].Conditions = nil }},
		{"unknown comparator", func(b *domain.RuleBook) { b.Rules[0].Comparator.Kind = "magic" }},
		{"missing flag", func(b *domain.RuleBook) { b.Rules[0].FlagCode = "" }},
	}

	if _, err := NewCatalog(valid()); err != nil {
		t.Fatalf("valid book rejected: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(&b)
			if _, err := NewCatalog(b); !errors.Is(err, ErrInvalidCatalog) {
				t.Errorf("expected ErrInvalidCatalog, got %v", err)
			}
		})
	}
}

func TestCatalogIsImmutable(t *testing.T) {
	book := DefaultRuleBook()
	c, err := NewCatalog(book)
	if err != nil {
		t.Fatal(err)
	}

	book.Rules[1].Enabled = false
	book.Rules[1].Conditions[1].Value = 1e12
	book.KYCLimits[domain.KYCTier1] = domain.TierLimit{SingleTransactionLimit: 1e12}

	rules := c.Rules()
	rules[0].RiskScore = 0

	s := c.Score(highRiskTx())
	if s.RuleFlags[0] != "CBN_001_TIER_LIMIT_EXCEEDED" || s.RuleFlags[1] != "CBN_002_BVN_UNVERIFIED" {
		t.Errorf("catalog changed after construction: %v", s.RuleFlags)
	}
	if s.RuleResults[0].Weight != 100 {
		t.Errorf("rule weight changed: %v", s.RuleResults[0].Weight)
	}
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	raw := `{
		"version": "9.0.0",
		"kycLimits": {"TIER_1": {"dailyLimit": 10, "singleTransactionLimit": 10}},
		"rules": [
			{"id": "r1", "category": "CBN_REGULATORY", "riskScore": 100, "severity": "CRITICAL",
			 "flagCode": "LIMIT", "enabled": true, "comparator": {"kind": "tier_limit"}},
			{"id": "r2", "category": "INTERNAL_POLICY", "riskScore": 10, "severity": "LOW",
			 "flagCode": "CHANNEL", "enabled": true,
			 "conditions": [{"field": "channel", "operator": "IN", "value": ["USSD", "MOBILE"]}]}
		]
	}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("LoadCatalogFile: %v", err)
	}
	if c.Version() != "9.0.0" || c.Len() != 2 {
		t.Fatalf("unexpected catalog %s/%d", c.Version(), c.Len())
	}

	tx := quietTx()
	tx.KYCTier = domain.KYCTier1
	s := c.Score(tx)
	if !reflect.DeepEqual(s.RuleFlags, []string{"LIMIT", "CHANNEL"}) || s.RiskScore != 100 {
		t.Errorf("unexpected score %+v", s)
	}

	if _, err := LoadCatalogFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
