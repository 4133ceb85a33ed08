package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidURL indicates the input is not an absolute URL with a host.
	ErrInvalidURL = errors.New("invalid url")
	// ErrMaxRetriesExceeded indicates the rate-limit retry budget ran out.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	// ErrMissingAPIKey is returned by Run before any work starts.
	ErrMissingAPIKey = errors.New("api key is required")
	// ErrNoURLs is returned by Run when the batch is empty.
	ErrNoURLs = errors.New("at least one url is required")
)

// ErrRateLimited indicates the extraction API answered 429. It wraps the last
// status when the retry budget runs out, or the context error when a backoff
// sleep is interrupted.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrHardFailure indicates a non-200, non-429 status from the extraction API.
type ErrHardFailure struct {
	StatusCode int
}

func (e ErrHardFailure) Error() string {
	return fmt.Sprintf("hard_failure: status %d", e.StatusCode)
}

// ErrTransport indicates a network fault or an undecodable response body.
type ErrTransport struct {
	Err error
}

func (e ErrTransport) Error() string {
	return fmt.Errorf("transport: %w", e.Err).Error()
}

func (e ErrTransport) Unwrap() error {
	return e.Err
}

// ErrTaskTimeout indicates a URL exceeded its time budget and was abandoned.
type ErrTaskTimeout struct {
	After time.Duration
}

func (e ErrTaskTimeout) Error() string {
	return fmt.Sprintf("timeout: task abandoned after %s", e.After)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, ErrInvalidURL) {
		return "invalid_url"
	}
	if errors.Is(err, ErrMaxRetriesExceeded) {
		return "max_retries"
	}
	var timeout ErrTaskTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var hard ErrHardFailure
	if errors.As(err, &hard) {
		return "hard_failure"
	}
	var transport ErrTransport
	if errors.As(err, &transport) {
		return "transport"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}

// ErrorMessage renders err as the message stored on a ScrapeResult.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInvalidURL) {
		return "Invalid URL format."
	}
	if errors.Is(err, ErrMaxRetriesExceeded) {
		return "Maximum retries exceeded."
	}
	var timeout ErrTaskTimeout
	if errors.As(err, &timeout) {
		return fmt.Sprintf("Timed out after %gs.", timeout.After.Seconds())
	}
	var hard ErrHardFailure
	if errors.As(err, &hard) {
		return fmt.Sprintf("Failed to fetch data. Status code: %d", hard.StatusCode)
	}
	var transport ErrTransport
	if errors.As(err, &transport) {
		return fmt.Sprintf("Request failed: %v", transport.Err)
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled."
	}
	return err.Error()
}
