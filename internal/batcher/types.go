package batcher

import (
	"context"
	"errors"
	"time"

	"classgate/internal/classify"
)

// ErrInvalidArgument is returned synchronously when a fingerprint or
// content is empty. It is the only error a caller ever sees; every other
// failure resolves the completion with a fail-open or default result.
var ErrInvalidArgument = errors.New("fingerprint and content are required")

// Transport delivers one batch to the classifier. Implementations never
// return an error; unreachable classifiers are reported through
// fail-open results instead.
type Transport interface {
	SendBatch(ctx context.Context, posts []classify.Post) map[string]classify.Result
}

// Config for creating a new Batcher. Zero fields fall back to the
// package defaults.
type Config struct {
	BatchSize    int
	MaxWait      time.Duration // worst-case latency before a partial batch is cut
	RedrainDelay time.Duration // delay before cutting the next batch from a backlog
}

// Defaults applied by New for unset Config fields
const (
	DefaultBatchSize    = 25
	DefaultMaxWait      = 5 * time.Second
	DefaultRedrainDelay = 100 * time.Millisecond
)

// pendingRequest is one enqueued item waiting for its result. The result
// channel is buffered and written to exactly once.
type pendingRequest struct {
	fingerprint string
	content     string
	result      chan classify.Result
}
