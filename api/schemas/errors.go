package schemas

import "errors"

// Error taxonomy shared across the pipeline. Components wrap these sentinels
// with fmt.Errorf("...: %w", ...) so callers classify with errors.Is.
var (
	// ErrRateLimited is returned by a source connector or provider when the
	// upstream service throttled us (HTTP 429 or equivalent).
	ErrRateLimited = errors.New("rate limited by upstream service")

	// ErrAuthFailed indicates a missing or rejected credential.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrUnavailable indicates the upstream service errored or was unreachable.
	ErrUnavailable = errors.New("upstream service unavailable")

	// ErrMalformedResponse indicates the upstream service answered with a body
	// that could not be decoded.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrFetchTerminal marks a fetch failure that must not be retried
	// (HTTP 4xx). The candidate is kept with empty content.
	ErrFetchTerminal = errors.New("terminal fetch failure")

	// ErrFetchRetryable marks a fetch failure worth retrying
	// (HTTP 5xx, timeout, connection reset).
	ErrFetchRetryable = errors.New("retryable fetch failure")
)
