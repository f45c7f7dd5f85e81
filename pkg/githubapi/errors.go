package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/go-github/v66/github"
)

// APIError is the stable error contract produced at the GitHub call boundary.
// The retry policy matches on it instead of inspecting transport error shapes.
type APIError struct {
	StatusCode  int
	RateLimited bool
	Message     string
}

func (e *APIError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("github api rate limited (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github api error (status %d): %s", e.StatusCode, e.Message)
}

// wrapError converts go-github error shapes into APIError. Non-HTTP errors
// (network, context) pass through unchanged.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &APIError{StatusCode: 429, RateLimited: true, Message: rateErr.Message}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &APIError{StatusCode: 429, RateLimited: true, Message: abuseErr.Message}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return &APIError{StatusCode: respErr.Response.StatusCode, Message: respErr.Message}
	}

	return err
}

// IsRetryable classifies a GitHub call failure. Rate limits, server errors
// and timeouts are transient; 4xx structural errors (404, 401, 422) are not.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RateLimited || apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
