package assessment

import (
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

const (
	defaultClientTimeout         = 15 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultMaxIdleConnsPerHost   = 32
	defaultDialerTimeout         = 2 * time.Second
)

// ClientConfig tunes the provider's HTTP client. Zero values fall back to
// defaults.
type ClientConfig struct {
	ClientTimeout         time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	MaxIdleConnsPerHost   int
	DialerTimeout         time.Duration
	Transport             http.RoundTripper
}

// ClientOption configures ClientConfig.
type ClientOption func(*ClientConfig)

// WithClientTimeout caps the whole request.
func WithClientTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.ClientTimeout = d }
}

// WithResponseHeaderTimeout caps the wait for response headers.
func WithResponseHeaderTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.ResponseHeaderTimeout = d }
}

// WithTransport replaces the transport entirely. Used by tests.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *ClientConfig) { c.Transport = rt }
}

// NewHTTPClient builds an *http.Client with bounded timeouts.
func NewHTTPClient(opts ...ClientOption) *http.Client {
	cfg := ClientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = defaultClientTimeout
	}
	if cfg.ResponseHeaderTimeout <= 0 {
		cfg.ResponseHeaderTimeout = defaultResponseHeaderTimeout
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = defaultIdleConnTimeout
	}
	if cfg.TLSHandshakeTimeout <= 0 {
		cfg.TLSHandshakeTimeout = defaultTLSHandshakeTimeout
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = defaultMaxIdleConnsPerHost
	}
	if cfg.DialerTimeout <= 0 {
		cfg.DialerTimeout = defaultDialerTimeout
	}

	rt := cfg.Transport
	if rt == nil {
		rt = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: cfg.DialerTimeout, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:       cfg.IdleConnTimeout,
			TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
			ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
			ForceAttemptHTTP2:     true,
		}
	}

	return &http.Client{Transport: rt, Timeout: cfg.ClientTimeout}
}

// backoff returns a jittered exponential delay for retry attempt n
// (1-based), capped at max. Large n saturates at max instead of overflowing.
func backoff(n int, base, max time.Duration) time.Duration {
	if n <= 0 || base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < n && delay < math.MaxInt64/2; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			break
		}
	}
	if max > 0 && delay > max {
		delay = max
	}
	if quarter := int64(delay / 4); quarter > 0 {
		// -12.5% .. +12.5%
		delay += time.Duration(rand.Int63n(quarter)) - delay/8
	}
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}
