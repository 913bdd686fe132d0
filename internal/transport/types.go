package transport

import (
	"errors"
	"time"
)

// Error taxonomy for a single send attempt. All three are retryable; after
// the attempt chain is exhausted they are absorbed into the fail-open
// fallback and never surface to callers of SendBatch.
var (
	// ErrTimeout is returned when a single attempt exceeds the request timeout
	ErrTimeout = errors.New("attempt timed out")

	// ErrProtocol is returned when the response body has an unrecognized shape
	ErrProtocol = errors.New("unrecognized response shape")

	// ErrTransport is returned on network failure or a non-2xx status
	ErrTransport = errors.New("transport failure")
)

// Config for creating a new Client. Endpoint is the only field mutable
// after construction, via SetEndpoint.
type Config struct {
	Endpoint         string
	RequestTimeout   time.Duration
	RetryAttempts    int
	RetryBackoffBase time.Duration
}
