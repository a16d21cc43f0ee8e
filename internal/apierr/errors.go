// Package apierr carries the failure vocabulary shared by this
// repository's HTTP clients (the transcription service and any future
// remote API). A client classifies each provider response into one of
// these sentinels at its boundary; retry policy and exit-code mapping
// then work from the sentinel alone, never from provider-specific types
// or status codes.
package apierr

import "errors"

var (
	// ErrRateLimit means the remote service is shedding load; the request
	// is safe to retry after a backoff.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded means the account's budget is spent. Retrying
	// cannot help until a human intervenes.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout covers requests that never completed: connection
	// failures, gateway timeouts, and 5xx responses. Retryable.
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed means the credentials were rejected. Not retryable.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest covers remaining 4xx responses: the request itself is
	// wrong, so repeating it verbatim cannot succeed.
	ErrBadRequest = errors.New("bad request")
)
