// Benchmark tool for measuring Sentinel against labelled transactions.
//
// Usage:
//
//	go run ./cmd/benchmark -data /path/to/labelled.jsonl -url http://localhost:8080
//
// Each input line is {"isFraud": true, "transaction": {...}} where the
// transaction is a POST /transactions/analyse body. The tool:
//  1. Sends each transaction to Sentinel for analysis
//  2. Counts BLOCK or REVIEW as a positive prediction
//  3. Compares predictions with the fraud labels
//  4. Reports precision, recall, F1-score and the confusion matrix
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// LabelledTransaction is one input line.
type LabelledTransaction struct {
	IsFraud     bool            `json:"isFraud"`
	Transaction json.RawMessage `json:"transaction"`
}

// AnalyseResponse is the subset of the Sentinel response the benchmark reads.
type AnalyseResponse struct {
	EvaluationID  string   `json:"evaluationId"`
	FinalDecision string   `json:"finalDecision"`
	RiskScore     float64  `json:"riskScore"`
	RuleFlags     []string `json:"ruleFlags"`
	RiskLevel     string   `json:"riskLevel"`
}

// Positive reports whether the decision counts as a fraud prediction.
func (r *AnalyseResponse) Positive() bool {
	return r.FinalDecision == "BLOCK" || r.FinalDecision == "REVIEW"
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud predicted as BLOCK/REVIEW
	FalsePositives int64 // Non-fraud predicted as BLOCK/REVIEW
	TrueNegatives  int64 // Non-fraud predicted as ALLOW
	FalseNegatives int64 // Fraud predicted as ALLOW (missed fraud!)

	Blocked  int64
	Reviewed int64
	Allowed  int64

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

// Record adds one prediction to the confusion matrix.
func (m *Metrics) Record(actual bool, result *AnalyseResponse) {
	if actual {
		atomic.AddInt64(&m.TotalFraud, 1)
	} else {
		atomic.AddInt64(&m.TotalNonFraud, 1)
	}

	switch result.FinalDecision {
	case "BLOCK":
		atomic.AddInt64(&m.Blocked, 1)
	case "REVIEW":
		atomic.AddInt64(&m.Reviewed, 1)
	default:
		atomic.AddInt64(&m.Allowed, 1)
	}

	predicted := result.Positive()
	switch {
	case predicted && actual:
		atomic.AddInt64(&m.TruePositives, 1)
	case predicted && !actual:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !predicted && !actual:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}
}

// Scores are the derived detection metrics.
type Scores struct {
	Precision float64
	Recall    float64
	F1        float64
	Accuracy  float64
}

// Scores computes precision, recall, F1 and accuracy. Undefined ratios
// are zero.
func (m *Metrics) Scores() Scores {
	var s Scores
	if m.TruePositives+m.FalsePositives > 0 {
		s.Precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	if m.TruePositives+m.FalseNegatives > 0 {
		s.Recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * (s.Precision * s.Recall) / (s.Precision + s.Recall)
	}
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		s.Accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}
	return s
}

func main() {
	dataPath := flag.String("data", "", "Path to a labelled JSON-lines file")
	baseURL := flag.String("url", "http://localhost:8080", "Sentinel base URL")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraud transactions")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *dataPath == "" {
		fmt.Println("Usage: benchmark -data /path/to/labelled.jsonl [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           SENTINEL BENCHMARK - Labelled Transactions          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nData File:    %s\n", *dataPath)
	fmt.Printf("Sentinel URL: %s\n", *baseURL)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Printf("Fraud Only:   %v\n", *fraudOnly)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Sentinel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Sentinel is running:")
		fmt.Println("  go run ./cmd/sentinel")
		os.Exit(1)
	}
	fmt.Println("✓ Sentinel is healthy")

	f, err := os.Open(*dataPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open data file: %v\n", err)
		os.Exit(1)
	}
	transactions, skipped, err := readLabelled(f, *limit, *fraudOnly)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read data file: %v\n", err)
		os.Exit(1)
	}
	if len(transactions) == 0 {
		fmt.Println("ERROR: No transactions loaded")
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transactions (%d malformed lines skipped)\n", len(transactions), skipped)

	fraudCount := 0
	for _, tx := range transactions {
		if tx.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(transactions)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(transactions)-fraudCount, 100*float64(len(transactions)-fraudCount)/float64(len(transactions)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transactions, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readLabelled parses JSON lines. Blank lines are ignored; malformed lines
// are counted and skipped.
func readLabelled(r io.Reader, limit int, fraudOnly bool) ([]LabelledTransaction, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var (
		transactions []LabelledTransaction
		skipped      int
	)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var tx LabelledTransaction
		if err := json.Unmarshal(line, &tx); err != nil || len(tx.Transaction) == 0 {
			skipped++
			continue
		}
		if fraudOnly && !tx.IsFraud {
			continue
		}

		transactions = append(transactions, tx)
		if limit > 0 && len(transactions) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, err
	}
	return transactions, skipped, nil
}

func runBenchmark(transactions []LabelledTransaction, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabelledTransaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for tx := range work {
				start := time.Now()
				result, err := analyse(client, baseURL, tx.Transaction)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				}

				metrics.Record(tx.IsFraud, result)

				if verbose {
					status := "✓"
					if result.Positive() != tx.IsFraud {
						status = "✗"
					}
					fmt.Printf("%s %-36s | Fraud: %-5v | %-6s | Score: %5.1f | Level: %-6s | Flags: %v\n",
						status,
						result.EvaluationID,
						tx.IsFraud,
						result.FinalDecision,
						result.RiskScore,
						result.RiskLevel,
						result.RuleFlags,
					)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	wg.Wait()

	return metrics
}

func analyse(client *http.Client, baseURL string, body []byte) (*AnalyseResponse, error) {
	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/transactions/analyse", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result AnalyseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.FinalDecision == "" {
		return nil, errors.New("response carries no decision")
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Decisions:        BLOCK %d, REVIEW %d, ALLOW %d\n", m.Blocked, m.Reviewed, m.Allowed)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                 BLOCK/REVIEW    ALLOW")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	s := m.Scores()

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged, how many were actual fraud)\n", s.Precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", s.Recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", s.F1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", s.Accuracy)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}
