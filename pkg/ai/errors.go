package ai

import (
	"context"
	"errors"
	"fmt"
	"net"

	openai "github.com/sashabaranov/go-openai"
)

// APIError is the stable error contract produced at the analysis call
// boundary, mirroring the one the GitHub client produces for its system.
type APIError struct {
	StatusCode  int
	RateLimited bool
	Message     string
}

func (e *APIError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("analysis api rate limited (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("analysis api error (status %d): %s", e.StatusCode, e.Message)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode:  apiErr.HTTPStatusCode,
			RateLimited: apiErr.HTTPStatusCode == 429,
			Message:     apiErr.Message,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{
			StatusCode:  reqErr.HTTPStatusCode,
			RateLimited: reqErr.HTTPStatusCode == 429,
			Message:     reqErr.Error(),
		}
	}

	return err
}

// IsRetryable classifies an analysis call failure: rate limits, timeouts and
// server errors are transient; malformed-request errors are not.
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
