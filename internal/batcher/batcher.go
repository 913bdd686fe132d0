// Package batcher multiplexes uncoordinated single-item classification
// requests into size- or time-bounded batches and fans results back out
// to the callers.
//
// An item enqueued below the size threshold waits at most MaxWait before
// its batch is cut; reaching BatchSize cuts immediately. Every enqueued
// fingerprint receives exactly one result on its completion channel, even
// when the classifier is unreachable.
package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"classgate/internal/cache"
	"classgate/internal/classify"
	"classgate/internal/metrics"
)

// Batcher owns the pending queue and flush timer
type Batcher struct {
	transport    Transport
	results      cache.Cache
	batchSize    int
	maxWait      time.Duration
	redrainDelay time.Duration
	logger       zerolog.Logger

	mu    sync.Mutex
	queue []*pendingRequest
	timer *time.Timer

	// sendMu serializes batch cuts so one batch is fully resolved
	// before the next is cut from the queue.
	sendMu sync.Mutex
}

// New creates a new Batcher. A nil resultCache disables deduplication.
func New(cfg Config, transport Transport, resultCache cache.Cache, logger zerolog.Logger) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.RedrainDelay <= 0 {
		cfg.RedrainDelay = DefaultRedrainDelay
	}
	if resultCache == nil {
		resultCache = cache.NewNoopCache()
	}

	return &Batcher{
		transport:    transport,
		results:      resultCache,
		batchSize:    cfg.BatchSize,
		maxWait:      cfg.MaxWait,
		redrainDelay: cfg.RedrainDelay,
		logger:       logger.With().Str("component", "batcher").Logger(),
	}
}

// Enqueue appends an item to the pending queue and returns a channel
// that receives its result exactly once. Reaching the batch size cuts a
// batch immediately; otherwise the first queued item arms the flush
// timer so a lone item never waits longer than MaxWait.
func (b *Batcher) Enqueue(ctx context.Context, fingerprint, content string) (<-chan classify.Result, error) {
	if fingerprint == "" || content == "" {
		return nil, ErrInvalidArgument
	}

	result := make(chan classify.Result, 1)

	if cached, ok := b.results.Get(fingerprint); ok {
		cached.Fingerprint = fingerprint
		result <- cached
		return result, nil
	}

	b.mu.Lock()
	b.queue = append(b.queue, &pendingRequest{
		fingerprint: fingerprint,
		content:     content,
		result:      result,
	})
	depth := len(b.queue)
	full := depth >= b.batchSize
	if !full && b.timer == nil {
		b.timer = time.AfterFunc(b.maxWait, func() {
			b.ProcessBatch(ctx)
		})
	}
	b.mu.Unlock()

	metrics.EnqueuedTotal.Inc()
	metrics.QueueDepth.Set(float64(depth))

	if full {
		go b.ProcessBatch(ctx)
	}

	return result, nil
}

// ProcessBatch cancels the armed timer, cuts up to batchSize items from
// the front of the queue and resolves them with the transport's result
// map. A fingerprint the map does not cover resolves to the allow
// default. A non-empty remainder re-arms a short re-drain timer instead
// of waiting out the full MaxWait window again.
func (b *Batcher) ProcessBatch(ctx context.Context) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	b.stopTimerLocked()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}

	n := b.batchSize
	if n > len(b.queue) {
		n = len(b.queue)
	}
	batch := b.queue[:n]
	b.queue = append([]*pendingRequest(nil), b.queue[n:]...)
	remaining := len(b.queue)
	b.mu.Unlock()

	posts := make([]classify.Post, n)
	for i, p := range batch {
		posts[i] = classify.Post{Hash: p.fingerprint, Content: p.content}
	}

	b.logger.Debug().
		Int("items", n).
		Int("remaining", remaining).
		Msg("cutting batch")

	resultMap := b.transport.SendBatch(ctx, posts)
	metrics.BatchesSentTotal.Inc()

	for _, p := range batch {
		res, ok := resultMap[p.fingerprint]
		if !ok {
			res = classify.DefaultResult(p.fingerprint)
		} else {
			res.Fingerprint = p.fingerprint
			if !res.FailedOpen {
				b.results.Set(p.fingerprint, res)
			}
		}
		p.result <- res
	}

	metrics.QueueDepth.Set(float64(remaining))

	if remaining > 0 {
		b.mu.Lock()
		b.stopTimerLocked()
		if len(b.queue) > 0 {
			b.timer = time.AfterFunc(b.redrainDelay, func() {
				b.ProcessBatch(ctx)
			})
		}
		b.mu.Unlock()
	}
}

// Flush forces an immediate batch cut and waits for it to resolve
func (b *Batcher) Flush(ctx context.Context) {
	b.ProcessBatch(ctx)
}

// Clear abandons all queued work: every pending item resolves with the
// allow default, the queue empties and the timer stops. No network call
// is made.
func (b *Batcher) Clear() {
	b.mu.Lock()
	b.stopTimerLocked()
	abandoned := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, p := range abandoned {
		p.result <- classify.DefaultResult(p.fingerprint)
	}

	metrics.QueueDepth.Set(0)

	if len(abandoned) > 0 {
		b.logger.Debug().Int("items", len(abandoned)).Msg("cleared pending queue")
	}
}

// Size returns the current queue length
func (b *Batcher) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// ClassifyNow bypasses the queue and classifies exactly the given items
// right away. The returned map covers every input fingerprint; items the
// response left unmapped carry the allow default.
func (b *Batcher) ClassifyNow(ctx context.Context, posts []classify.Post) (map[string]classify.Result, error) {
	for _, post := range posts {
		if post.Hash == "" || post.Content == "" {
			return nil, ErrInvalidArgument
		}
	}
	if len(posts) == 0 {
		return map[string]classify.Result{}, nil
	}

	resultMap := b.transport.SendBatch(ctx, posts)
	metrics.BatchesSentTotal.Inc()

	out := make(map[string]classify.Result, len(posts))
	for _, post := range posts {
		res, ok := resultMap[post.Hash]
		if !ok {
			res = classify.DefaultResult(post.Hash)
		} else {
			res.Fingerprint = post.Hash
			if !res.FailedOpen {
				b.results.Set(post.Hash, res)
			}
		}
		out[post.Hash] = res
	}

	return out, nil
}

// Close stops the timer and drains the queue batch by batch. Used for
// graceful shutdown; Clear is the hard-cancel alternative.
func (b *Batcher) Close(ctx context.Context) {
	for b.Size() > 0 {
		b.ProcessBatch(ctx)
	}

	b.mu.Lock()
	b.stopTimerLocked()
	b.mu.Unlock()

	b.logger.Info().Msg("batcher closed")
}

// stopTimerLocked stops and clears the flush timer. Caller holds mu.
func (b *Batcher) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
