package digest

import (
	"context"
	"errors"
	"strings"
	"time"

	"video-digest/internal/textgen"
)

const (
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = time.Second
	DefaultAttemptTimeout = 55 * time.Second
)

var errBlankOutput = errors.New("generator returned blank text")

// MaxBackoff caps the delay between two attempts.
const MaxBackoff = time.Minute

// ExponentialBackoff returns a backoff of 2^attempt * base, capped at
// MaxBackoff, where attempt is the zero-based index of the attempt that just
// failed.
func ExponentialBackoff(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if base <= 0 {
			return 0
		}
		d := base
		for i := 0; i < attempt && d < MaxBackoff; i++ {
			d *= 2
		}
		return min(d, MaxBackoff)
	}
}

// Retrier runs a call with a per-attempt timeout and backoff between attempts.
type Retrier struct {
	MaxAttempts    int
	Backoff        func(attempt int) time.Duration
	AttemptTimeout time.Duration
	// RateLimited classifies failures; defaults to textgen.IsRateLimited.
	RateLimited func(error) bool
}

// Outcome describes how a resilient call settled.
type Outcome struct {
	Text           string
	Attempts       int
	Fallback       bool
	Err            error // last attempt error when Fallback is set
	AllRateLimited bool
}

// Do calls call until it returns non-blank text, attempts run out or ctx is
// done. In the latter two cases the text comes from fallback.
func (r Retrier) Do(ctx context.Context, call func(context.Context) (string, error), fallback func() string) Outcome {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	backoff := r.Backoff
	if backoff == nil {
		backoff = ExponentialBackoff(DefaultRetryBaseDelay)
	}
	isRateLimited := r.RateLimited
	if isRateLimited == nil {
		isRateLimited = textgen.IsRateLimited
	}

	var (
		out     Outcome
		allRL   = true
		lastErr error
	)
	for a := 0; a < attempts && ctx.Err() == nil; a++ {
		text, err := r.attempt(ctx, call)
		out.Attempts++
		if err == nil && strings.TrimSpace(text) != "" {
			out.Text = strings.TrimSpace(text)
			return out
		}
		if err == nil {
			err = errBlankOutput
		}
		lastErr = err
		if !isRateLimited(err) {
			allRL = false
		}
		if a == attempts-1 {
			break
		}

		timer := time.NewTimer(backoff(a))
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	out.Text = fallback()
	out.Fallback = true
	out.Err = lastErr
	out.AllRateLimited = out.Attempts > 0 && allRL && ctx.Err() == nil
	return out
}

// attempt runs one call under the attempt timeout. The call runs in its own
// goroutine so a call that ignores its context is abandoned, not awaited.
func (r Retrier) attempt(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
	timeout := r.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := call(actx)
		ch <- result{text, err}
	}()

	select {
	case res := <-ch:
		return res.text, res.err
	case <-actx.Done():
		return "", actx.Err()
	}
}
