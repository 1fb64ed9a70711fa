// Package generation is the single chokepoint between the analysis stages
// and the generative model. Every stage calls through the Wrapper so retry
// policy, pacing and failure semantics stay uniform.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrExhausted is returned after the final failed attempt. The last
// underlying error is wrapped alongside it and reachable via errors.Is/As.
var ErrExhausted = errors.New("generation retries exhausted")

// ModelClient is the raw generative call beneath the wrapper.
type ModelClient interface {
	Generate(ctx context.Context, model string, prompt string) (string, error)
}

// Options tunes retry and pacing behavior. Zero values select defaults:
// 3 attempts, 2s base backoff, 10 requests per minute.
type Options struct {
	MaxAttempts       int
	BaseBackoff       time.Duration
	RequestsPerMinute int
}

// Wrapper executes generative calls with bounded retry, exponential backoff
// on transient failures, and request pacing shared across all callers. The
// pacing limiter replaces the fixed inter-stage sleeps the pipeline would
// otherwise need to respect upstream rate limits.
type Wrapper struct {
	client      ModelClient
	model       string
	maxAttempts int
	baseBackoff time.Duration
	limiter     *rate.Limiter
}

// NewWrapper creates a Wrapper for the given client and model.
func NewWrapper(client ModelClient, model string, opts Options) *Wrapper {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 2 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(opts.RequestsPerMinute) / 60.0)
	}
	return &Wrapper{
		client:      client,
		model:       model,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		limiter:     rate.NewLimiter(limit, 1),
	}
}

// Generate runs one generative call with retries. Non-transient errors
// (malformed request, auth failure) propagate immediately; transient ones
// (rate limiting, network) are retried with exponential backoff until the
// attempt budget runs out, after which ErrExhausted wraps the last error.
func (w *Wrapper) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err := w.limiter.Wait(ctx); err != nil {
			return "", err
		}

		text, err := w.client.Generate(ctx, w.model, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !isTransient(err) {
			return "", err
		}
		if attempt == w.maxAttempts {
			break
		}

		backoff := w.baseBackoff << (attempt - 1)
		slog.Warn("generation attempt failed, backing off",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrExhausted, w.maxAttempts, lastErr)
}

// transienter is implemented by errors that know their own retry class
// (gemini.APIError reports rate limits and 5xx as transient).
type transienter interface {
	Transient() bool
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var t transienter
	if errors.As(err, &t) {
		return t.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof")
}
