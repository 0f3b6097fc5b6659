package assessment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// HTTPProvider asks a remote reasoning service for an assessment.
type HTTPProvider struct {
	endpoint        string
	apiKey          string
	client          *http.Client
	limiter         *rate.Limiter
	maxThrottleWait time.Duration
	maxRetries      int
	baseBackoff     time.Duration
	maxBackoff      time.Duration
}

// httpRequest is the body posted to the reasoning service.
type httpRequest struct {
	Transaction domain.TransactionEvent `json:"transaction"`
	RiskScore   float64                 `json:"riskScore"`
	RuleFlags   []string                `json:"ruleFlags"`
	Prompt      string                  `json:"prompt"`
}

// NewHTTPProvider creates a provider from configuration.
func NewHTTPProvider(cfg domain.AssessmentConfig, opts ...ClientOption) (*HTTPProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("assessment endpoint is required")
	}
	perSec := cfg.RateLimitPerSec
	if perSec <= 0 {
		perSec = 20
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	opts = append([]ClientOption{WithClientTimeout(cfg.Timeout)}, opts...)
	return &HTTPProvider{
		endpoint:        cfg.Endpoint,
		apiKey:          cfg.APIKey,
		client:          NewHTTPClient(opts...),
		limiter:         rate.NewLimiter(rate.Limit(perSec), burst),
		maxThrottleWait: cfg.MaxThrottleWait,
		maxRetries:      cfg.MaxRetries,
		baseBackoff:     cfg.BaseBackoff,
		maxBackoff:      cfg.MaxBackoff,
	}, nil
}

// Name implements domain.Assessor.
func (p *HTTPProvider) Name() string { return "http" }

// Assess implements domain.Assessor. Transport errors, 429 and 5xx are
// retried with backoff until the context expires or retries run out.
func (p *HTTPProvider) Assess(ctx context.Context, req domain.AssessmentRequest) (*domain.Assessment, error) {
	if err := p.throttle(ctx); err != nil {
		return nil, Classify(ctx, p.Name(), err)
	}

	body, err := json.Marshal(httpRequest{
		Transaction: req.Transaction,
		RiskScore:   req.RiskScore,
		RuleFlags:   req.RuleFlags,
		Prompt:      BuildPrompt(req),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode assessment request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt, p.baseBackoff, p.maxBackoff)
			slog.Debug("retrying assessment", "attempt", attempt, "wait_ms", wait.Milliseconds(), "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, Classify(ctx, p.Name(), ctx.Err())
			case <-time.After(wait):
			}
		}

		a, retry, err := p.do(ctx, body)
		if err == nil {
			a.Provider = p.Name()
			return a, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}

	return nil, Classify(ctx, p.Name(), lastErr)
}

// do performs one attempt and reports whether a failure is retryable.
func (p *HTTPProvider) do(ctx context.Context, body []byte) (*domain.Assessment, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("assessment service returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("assessment service returned %d", resp.StatusCode)
	}

	a, err := Decode(p.Name(), raw)
	if err != nil {
		return nil, false, err
	}
	return a, false, nil
}

// throttle waits for a rate token, failing fast when the wait would exceed
// maxThrottleWait.
func (p *HTTPProvider) throttle(ctx context.Context) error {
	r := p.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("assessment rate limit misconfigured")
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	if p.maxThrottleWait > 0 && delay > p.maxThrottleWait {
		r.Cancel()
		return fmt.Errorf("assessment throttled: wait %s exceeds %s", delay, p.maxThrottleWait)
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
