package textgen

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// ErrRateLimited marks a provider failure caused by quota or throttling.
var ErrRateLimited = errors.New("rate limited by provider")

// IsRateLimited reports whether err was caused by provider throttling.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var gerr genai.APIError
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	var oerr *openai.Error
	if errors.As(err, &oerr) && oerr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	var aerr *anthropic.Error
	if errors.As(err, &aerr) && aerr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "rate limit")
}

// classify tags throttling errors with ErrRateLimited, keeping the original chain.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrRateLimited) {
		return err
	}
	if IsRateLimited(err) {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return err
}
