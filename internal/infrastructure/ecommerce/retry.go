package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 10 * 1024 * 1024 // 10MB max response

// FailureClass classifies the outcome of one upstream attempt
type FailureClass string

const (
	FailureNone        FailureClass = ""
	FailureAuth        FailureClass = "auth"
	FailureForbidden   FailureClass = "forbidden"
	FailureRateLimited FailureClass = "rate_limited"
	FailureTooLarge    FailureClass = "too_large"
	FailureNotFound    FailureClass = "not_found"
	FailureTimeout     FailureClass = "timeout"
	FailureFatal       FailureClass = "fatal"
)

// ClassifyStatus maps an HTTP status code to a failure class
func ClassifyStatus(code int) FailureClass {
	switch {
	case code >= 200 && code < 300:
		return FailureNone
	case code == http.StatusUnauthorized:
		return FailureAuth
	case code == http.StatusForbidden:
		return FailureForbidden
	case code == http.StatusNotFound:
		return FailureNotFound
	case code == http.StatusRequestEntityTooLarge:
		return FailureTooLarge
	case code == http.StatusTooManyRequests:
		return FailureRateLimited
	default:
		return FailureFatal
	}
}

// RetryState describes a scheduled retry
type RetryState struct {
	Attempt int
	Delay   time.Duration
	Class   FailureClass
}

// RetryConfig holds the shared retry limits
type RetryConfig struct {
	// MaxAttempts caps the total number of attempts for 403 and 429
	MaxAttempts int
	// ForbiddenBaseDelay is doubled on every consecutive 403
	ForbiddenBaseDelay time.Duration
	// RateLimitCooldown is the flat wait after a 429
	RateLimitCooldown time.Duration
}

// DefaultRetryConfig returns the default retry limits
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:        3,
		ForbiddenBaseDelay: 30 * time.Second,
		RateLimitCooldown:  60 * time.Second,
	}
}

// RequestBuilder builds a fresh request for each attempt so that signatures
// carry a current timestamp.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// RetryPolicy executes upstream calls and applies the retry table
type RetryPolicy struct {
	config     RetryConfig
	httpClient *http.Client
	clock      Clock
	logger     *zap.Logger
	onRetry    func(RetryState)
}

// NewRetryPolicy creates a retry policy around an HTTP client
func NewRetryPolicy(config RetryConfig, httpClient *http.Client, clock Clock, logger *zap.Logger) *RetryPolicy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryPolicy{
		config:     config,
		httpClient: httpClient,
		clock:      clockOrSystem(clock),
		logger:     logger,
	}
}

// OnRetry registers a hook called before every retry wait
func (p *RetryPolicy) OnRetry(fn func(RetryState)) {
	p.onRetry = fn
}

// Config returns the retry limits
func (p *RetryPolicy) Config() RetryConfig {
	return p.config
}

// Do runs build and sends the request until it succeeds, fails
// terminally, or exhausts the attempt cap. It returns the response body of
// the successful attempt.
func (p *RetryPolicy) Do(ctx context.Context, build RequestBuilder) ([]byte, error) {
	forbiddenDelay := p.config.ForbiddenBaseDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := build(ctx)
		if err != nil {
			return nil, err
		}

		code, body, err := p.send(req)
		if err != nil {
			return nil, p.transportError(ctx, err)
		}

		class := ClassifyStatus(code)
		var delay time.Duration
		switch class {
		case FailureNone:
			return body, nil
		case FailureAuth:
			return nil, fmt.Errorf("%w: HTTP %d", integration.ErrUnauthenticated, code)
		case FailureNotFound:
			return nil, fmt.Errorf("%w: HTTP %d", integration.ErrNotFound, code)
		case FailureTooLarge:
			return nil, fmt.Errorf("%w: HTTP %d", integration.ErrBatchTooLarge, code)
		case FailureForbidden:
			if attempt >= p.config.MaxAttempts {
				return nil, fmt.Errorf("%w: after %d attempts", integration.ErrForbidden, attempt)
			}
			delay = forbiddenDelay
			forbiddenDelay *= 2
		case FailureRateLimited:
			if attempt >= p.config.MaxAttempts {
				return nil, fmt.Errorf("%w: after %d attempts", integration.ErrRateLimited, attempt)
			}
			delay = p.config.RateLimitCooldown
		default:
			return nil, integration.NewUpstreamError(code, snippet(body))
		}

		state := RetryState{Attempt: attempt, Delay: delay, Class: class}
		p.logger.Warn("Upstream call will be retried",
			zap.String("path", req.URL.Path),
			zap.Int("status", code),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("class", string(class)),
		)
		if p.onRetry != nil {
			p.onRetry(state)
		}
		if err := p.clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (p *RetryPolicy) send(req *http.Request) (int, []byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// transportError maps a failed round trip. Caller cancellation is returned
// as is; timeouts become ErrTimeout.
func (p *RetryPolicy) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", integration.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", integration.ErrUpstream, err)
}

// snippet trims an error body for inclusion in error messages
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
