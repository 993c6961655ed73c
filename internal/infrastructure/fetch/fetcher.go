package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"UpdatesDigest/internal/config"
	"UpdatesDigest/internal/infrastructure/metrics"
)

// Failure reasons reported in Result.Reason.
const (
	ReasonTimeout  = "timeout"
	ReasonCanceled = "canceled"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0"

// Options bound a single Fetch call. Zero values fall back to the fetcher
// defaults; a negative MaxRetries disables retries.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
}

// Result is the normalized outcome of a fetch. Failures are values, not errors.
type Result struct {
	OK          bool
	Payload     []byte
	ContentType string
	StatusCode  int
	Reason      string
	Attempts    int
}

// Err converts a failed result into an error for callers that propagate one.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("fetch failed: %s", r.Reason)
}

// Fetcher performs resilient GET requests with rotating client identity.
type Fetcher struct {
	client     *http.Client
	userAgents []string
	backoff    time.Duration
	maxBody    int64
	defaults   Options
	logger     *slog.Logger
	metrics    *metrics.Metrics
	sleep      func(context.Context, time.Duration) error
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the underlying client (tests, custom transports).
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = log }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// New builds a fetcher from configuration. The proxy URL, when set, must parse.
func New(cfg config.FetchConfig, opts ...Option) (*Fetcher, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	f := &Fetcher{
		client:     &http.Client{Transport: transport},
		userAgents: append([]string(nil), cfg.UserAgents...),
		backoff:    cfg.BackoffBase,
		maxBody:    cfg.MaxBodyBytes,
		defaults:   Options{Timeout: cfg.Timeout, MaxRetries: cfg.MaxRetries},
		sleep:      sleep,
	}
	if len(f.userAgents) == 0 {
		f.userAgents = []string{defaultUserAgent}
	}
	if f.backoff <= 0 {
		f.backoff = time.Second
	}
	if f.maxBody <= 0 {
		f.maxBody = 5 << 20
	}
	if f.defaults.Timeout <= 0 {
		f.defaults.Timeout = 20 * time.Second
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Defaults returns the options used when a caller passes zero values.
func (f *Fetcher) Defaults() Options {
	return f.defaults
}

// Fetch GETs rawURL. Timeouts and 4xx (except 429) are terminal; 5xx, 429 and
// transport errors are retried with linear backoff (attempt n waits n*base).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) Result {
	if opts.Timeout <= 0 {
		opts.Timeout = f.defaults.Timeout
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = f.defaults.MaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Result{Reason: fmt.Sprintf("invalid url %q", rawURL)}
	}
	host := parsed.Hostname()

	var last Result
	for attempt := 1; attempt <= opts.MaxRetries+1; attempt++ {
		f.metrics.FetchAttempt(host)
		res, retry := f.attempt(ctx, rawURL, opts.Timeout)
		res.Attempts = attempt
		if res.OK {
			f.metrics.FetchResult(host, "ok")
			return res
		}
		last = res
		if !retry || attempt > opts.MaxRetries {
			break
		}

		delay := time.Duration(attempt) * f.backoff
		f.debug("fetch retry scheduled", "url", rawURL, "attempt", attempt, "reason", res.Reason, "delay", delay)
		if err := f.sleep(ctx, delay); err != nil {
			last.Reason = ReasonCanceled
			break
		}
	}

	f.metrics.FetchResult(host, outcomeLabel(last))
	f.warn("fetch failed", "url", rawURL, "attempts", last.Attempts, "reason", last.Reason)
	return last
}

// attempt runs one request and reports whether a failure is worth retrying.
func (f *Fetcher) attempt(parent context.Context, rawURL string, timeout time.Duration) (Result, bool) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{Reason: fmt.Sprintf("build request: %v", err)}, false
	}
	req.Header.Set("User-Agent", f.pickUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/rss+xml,application/atom+xml,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return classifyTransportError(parent, ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		res := Result{StatusCode: resp.StatusCode, Reason: fmt.Sprintf("http %d", resp.StatusCode)}
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return res, retry
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		res, retry := classifyTransportError(parent, ctx, err)
		res.StatusCode = resp.StatusCode
		return res, retry
	}

	return Result{
		OK:          true,
		Payload:     payload,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, false
}

func classifyTransportError(parent, attemptCtx context.Context, err error) (Result, bool) {
	if parent.Err() != nil {
		return Result{Reason: ReasonCanceled}, false
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return Result{Reason: ReasonTimeout}, false
	}
	return Result{Reason: fmt.Sprintf("network: %v", err)}, true
}

func (f *Fetcher) pickUserAgent() string {
	return f.userAgents[rand.IntN(len(f.userAgents))]
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func outcomeLabel(r Result) string {
	switch {
	case r.Reason == ReasonTimeout, r.Reason == ReasonCanceled:
		return r.Reason
	case r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests:
		return "retry_exhausted"
	case r.StatusCode >= 400:
		return "client_error"
	default:
		return "network"
	}
}

func (f *Fetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}

func (f *Fetcher) warn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
