package port

import "fmt"

// MediaLoadError means the source could not be decoded or its
// metadata (duration, dimensions) could not be determined.
type MediaLoadError struct {
	Path string
	Err  error
}

func (e *MediaLoadError) Error() string {
	return fmt.Sprintf("media load failed for %s: %v", e.Path, e.Err)
}

func (e *MediaLoadError) Unwrap() error { return e.Err }

// SeekTimeoutError means a requested timestamp never became ready
// within the configured seek timeout.
type SeekTimeoutError struct {
	Timestamp float64
}

func (e *SeekTimeoutError) Error() string {
	return fmt.Sprintf("seek to %.2fs did not complete in time", e.Timestamp)
}

// EmptyFrameSetError is a defensive invariant: the caller must
// guarantee at least one sampled frame before building a request.
type EmptyFrameSetError struct{}

func (e *EmptyFrameSetError) Error() string {
	return "cannot build an analysis request from an empty frame set"
}

// AuthConfigurationError means the inference credential is absent.
// Fatal at startup; no network call is ever attempted without it.
type AuthConfigurationError struct{}

func (e *AuthConfigurationError) Error() string {
	return "inference API key is not configured"
}

// RateLimitError corresponds to HTTP 429 from the inference endpoint.
type RateLimitError struct {
	Body string
}

func (e *RateLimitError) Error() string {
	return "inference endpoint rate limited the request"
}

// QuotaExceededError corresponds to HTTP 402 from the inference
// endpoint. Fatal for the submission.
type QuotaExceededError struct {
	Body string
}

func (e *QuotaExceededError) Error() string {
	return "inference quota exceeded: " + e.Body
}

// GatewayError covers every other non-2xx inference response.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("inference endpoint returned %d: %s", e.StatusCode, e.Body)
}
