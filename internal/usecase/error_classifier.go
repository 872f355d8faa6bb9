package usecase

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"uiagent/internal/domain"
)

// Stream-open retry policy.
const (
	maxOpenRetries = 2
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// Retryability of a provider failure.
type Retryability int

const (
	Permanent Retryability = iota
	Retryable
)

// ClassifiedError holds the result of error classification.
type ClassifiedError struct {
	Original   error
	Class      Retryability
	Sentinel   error // mapped domain sentinel, or nil
	StatusCode int   // extracted HTTP status, or 0 if unknown
}

// apiErrorPattern matches the "API error <status>:" text drivers embed.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

var transientPatterns = []string{
	"connection refused", "connection reset", "no such host", "eof", "timeout",
}

// ClassifyProviderError decides whether opening a provider stream again may
// succeed. An open breaker, bad credentials and oversized prompts never will.
func ClassifyProviderError(err error) ClassifiedError {
	out := ClassifiedError{Original: err}
	if err == nil {
		return out
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return out
	case errors.Is(err, domain.ErrAuthInvalid):
		out.Sentinel = domain.ErrAuthInvalid
		return out
	case errors.Is(err, domain.ErrContextOverflow):
		out.Sentinel = domain.ErrContextOverflow
		return out
	case errors.Is(err, domain.ErrRateLimit):
		out.Sentinel, out.Class = domain.ErrRateLimit, Retryable
		return out
	}

	msg := err.Error()
	if strings.Contains(msg, "circuit open") {
		out.Sentinel = domain.ErrProviderError
		return out
	}
	if m := apiErrorPattern.FindStringSubmatch(msg); len(m) == 2 {
		out.StatusCode, _ = strconv.Atoi(m[1])
		if out.StatusCode == 429 || out.StatusCode >= 500 {
			out.Class = Retryable
		}
		return out
	}

	lower := strings.ToLower(msg)
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			out.Class = Retryable
			return out
		}
	}
	return out
}

// retryBackoff computes exponential backoff with up to 25% jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay << uint(attempt)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay + time.Duration(rand.Int63n(int64(delay/4)+1))
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
