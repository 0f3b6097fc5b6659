package main

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadLabelled(t *testing.T) {
	input := strings.Join([]string{
		`{"isFraud": true, "transaction": {"id": "tx-1"}}`,
		``,
		`not json`,
		`{"isFraud": false, "transaction": {"id": "tx-2"}}`,
		`{"isFraud": false}`,
		`{"isFraud": true, "transaction": {"id": "tx-3"}}`,
	}, "\n")

	t.Run("All", func(t *testing.T) {
		txs, skipped, err := readLabelled(strings.NewReader(input), 0, false)
		if err != nil {
			t.Fatalf("readLabelled failed: %v", err)
		}
		if len(txs) != 3 || skipped != 2 {
			t.Errorf("expected 3 transactions and 2 skipped, got %d and %d", len(txs), skipped)
		}
	})

	t.Run("FraudOnly", func(t *testing.T) {
		txs, _, _ := readLabelled(strings.NewReader(input), 0, true)
		if len(txs) != 2 {
			t.Errorf("expected 2 fraud transactions, got %d", len(txs))
		}
	})

	t.Run("Limit", func(t *testing.T) {
		txs, _, _ := readLabelled(strings.NewReader(input), 1, false)
		if len(txs) != 1 {
			t.Errorf("expected 1 transaction, got %d", len(txs))
		}
	})
}

func TestMetricsScores(t *testing.T) {
	m := &Metrics{}
	outcomes := []struct {
		actual   bool
		decision string
	}{
		{true, "BLOCK"},
		{true, "REVIEW"},
		{true, "ALLOW"},
		{false, "REVIEW"},
		{false, "ALLOW"},
		{false, "ALLOW"},
	}
	for _, o := range outcomes {
		m.Record(o.actual, &AnalyseResponse{FinalDecision: o.decision})
	}

	if m.TruePositives != 2 || m.FalseNegatives != 1 || m.FalsePositives != 1 || m.TrueNegatives != 2 {
		t.Fatalf("unexpected matrix: %+v", m)
	}
	if m.Blocked != 1 || m.Reviewed != 2 || m.Allowed != 3 {
		t.Errorf("unexpected decision counts: %+v", m)
	}

	s := m.Scores()
	near := func(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
	if !near(s.Precision, 2.0/3) || !near(s.Recall, 2.0/3) || !near(s.F1, 2.0/3) {
		t.Errorf("unexpected scores: %+v", s)
	}
	if !near(s.Accuracy, 4.0/6) {
		t.Errorf("unexpected accuracy: %v", s.Accuracy)
	}
}

func TestEmptyMetricsScoreZero(t *testing.T) {
	if s := (&Metrics{}).Scores(); s != (Scores{}) {
		t.Errorf("expected zero scores, got %+v", s)
	}
}

func TestRunBenchmark(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions/analyse" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			ID string `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		decision := "ALLOW"
		switch body.ID {
		case "fraud":
			decision = "BLOCK"
		case "broken":
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"evaluationId":"e-%s","finalDecision":%q,"riskScore":0}`, body.ID, decision)
	}))
	defer srv.Close()

	txs := []LabelledTransaction{
		{IsFraud: true, Transaction: json.RawMessage(`{"id":"fraud"}`)},
		{IsFraud: false, Transaction: json.RawMessage(`{"id":"quiet"}`)},
		{IsFraud: true, Transaction: json.RawMessage(`{"id":"broken"}`)},
	}

	m := runBenchmark(txs, srv.URL, 2, false)

	if m.TotalProcessed != 3 || m.TotalErrors != 1 {
		t.Errorf("expected 3 processed with 1 error, got %d and %d", m.TotalProcessed, m.TotalErrors)
	}
	if m.TruePositives != 1 || m.TrueNegatives != 1 {
		t.Errorf("unexpected matrix: %+v", m)
	}
}
