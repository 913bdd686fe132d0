package batcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"classgate/internal/cache"
	"classgate/internal/classify"
)

// fakeTransport records batches and answers from a configurable function.
// When fn is nil every post resolves block/0.75.
type fakeTransport struct {
	mu    sync.Mutex
	calls [][]classify.Post
	fn    func(posts []classify.Post) map[string]classify.Result
	sent  chan int // receives the size of each batch sent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan int, 16)}
}

func (f *fakeTransport) SendBatch(ctx context.Context, posts []classify.Post) map[string]classify.Result {
	f.mu.Lock()
	f.calls = append(f.calls, posts)
	f.mu.Unlock()
	f.sent <- len(posts)

	if f.fn != nil {
		return f.fn(posts)
	}
	out := make(map[string]classify.Result, len(posts))
	for _, post := range posts {
		out[post.Hash] = classify.Result{
			Fingerprint: post.Hash,
			Label:       classify.LabelBlock,
			Confidence:  0.75,
		}
	}
	return out
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func awaitResult(t *testing.T, ch <-chan classify.Result, timeout time.Duration) classify.Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(timeout):
		t.Fatal("no result received in time")
		return classify.Result{}
	}
}

func TestEnqueue_InvalidArgument(t *testing.T) {
	b := New(Config{}, newFakeTransport(), nil, zerolog.Nop())

	if _, err := b.Enqueue(context.Background(), "", "content"); err != ErrInvalidArgument {
		t.Errorf("empty fingerprint: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := b.Enqueue(context.Background(), "hash_1", ""); err != ErrInvalidArgument {
		t.Errorf("empty content: err = %v, want ErrInvalidArgument", err)
	}
	if b.Size() != 0 {
		t.Errorf("Size = %d after rejected enqueues, want 0", b.Size())
	}
}

func TestEnqueue_SizeThresholdCutsImmediately(t *testing.T) {
	ft := newFakeTransport()
	b := New(Config{BatchSize: 3, MaxWait: time.Minute}, ft, nil, zerolog.Nop())

	ctx := context.Background()
	var chans []<-chan classify.Result
	for i := 0; i < 3; i++ {
		ch, err := b.Enqueue(ctx, fmt.Sprintf("hash_%d", i), "content")
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		chans = append(chans, ch)
	}

	// The third enqueue hits the threshold; no timer wait involved.
	select {
	case size := <-ft.sent:
		if size != 3 {
			t.Errorf("batch size = %d, want 3", size)
		}
	case <-time.After(time.Second):
		t.Fatal("size threshold did not trigger a send")
	}

	for i, ch := range chans {
		res := awaitResult(t, ch, time.Second)
		if res.Fingerprint != fmt.Sprintf("hash_%d", i) {
			t.Errorf("result %d has fingerprint %s", i, res.Fingerprint)
		}
		if res.Label != classify.LabelBlock {
			t.Errorf("result %d label = %s, want block", i, res.Label)
		}
	}

	if b.Size() != 0 {
		t.Errorf("Size = %d after full cut, want 0", b.Size())
	}
}

func TestEnqueue_TimerFlushesLoneItem(t *testing.T) {
	ft := newFakeTransport()
	b := New(Config{BatchSize: 10, MaxWait: 50 * time.Millisecond}, ft, nil, zerolog.Nop())

	ch, err := b.Enqueue(context.Background(), "hash_lonely", "content")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	res := awaitResult(t, ch, time.Second)
	if res.Fingerprint != "hash_lonely" {
		t.Errorf("fingerprint = %s", res.Fingerprint)
	}
	if got := ft.callCount(); got != 1 {
		t.Errorf("transport called %d times, want 1", got)
	}
}

func TestProcessBatch_RedrainsBacklog(t *testing.T) {
	ft := newFakeTransport()
	b := New(Config{BatchSize: 25, MaxWait: time.Minute, RedrainDelay: 10 * time.Millisecond}, ft, nil, zerolog.Nop())

	ctx := context.Background()
	var chans []<-chan classify.Result
	for i := 0; i < 30; i++ {
		ch, err := b.Enqueue(ctx, fmt.Sprintf("hash_%02d", i), "content")
		if err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
		chans = append(chans, ch)
	}

	var sizes []int
	for len(sizes) < 2 {
		select {
		case size := <-ft.sent:
			sizes = append(sizes, size)
		case <-time.After(2 * time.Second):
			t.Fatalf("saw %d batches, want 2", len(sizes))
		}
	}

	if sizes[0] != 25 || sizes[1] != 5 {
		t.Errorf("batch sizes = %v, want [25 5]", sizes)
	}

	for i, ch := range chans {
		res := awaitResult(t, ch, time.Second)
		if res.Fingerprint != fmt.Sprintf("hash_%02d", i) {
			t.Errorf("result %d has fingerprint %s", i, res.Fingerprint)
		}
	}

	if b.Size() != 0 {
		t.Errorf("Size = %d after drain, want 0", b.Size())
	}
}

func TestProcessBatch_UnmappedResolvesToDefault(t *testing.T) {
	ft := newFakeTransport()
	ft.fn = func(posts []classify.Post) map[string]classify.Result {
		// Answer only the first post.
		return map[string]classify.Result{
			posts[0].Hash: {Fingerprint: posts[0].Hash, Label: classify.LabelBlock, Confidence: 0.9},
		}
	}
	b := New(Config{BatchSize: 2, MaxWait: time.Minute}, ft, nil, zerolog.Nop())

	ctx := context.Background()
	ch1, _ := b.Enqueue(ctx, "hash_a", "content")
	ch2, _ := b.Enqueue(ctx, "hash_b", "content")

	r1 := awaitResult(t, ch1, time.Second)
	if r1.Label != classify.LabelBlock {
		t.Errorf("hash_a label = %s, want block", r1.Label)
	}

	r2 := awaitResult(t, ch2, time.Second)
	if r2.Label != classify.LabelAllow || r2.Confidence != 0 || r2.FailedOpen {
		t.Errorf("hash_b = %+v, want allow/0 default", r2)
	}
}

func TestFlush_CutsPartialBatch(t *testing.T) {
	ft := newFakeTransport()
	b := New(Config{BatchSize: 10, MaxWait: time.Minute}, ft, nil, zerolog.Nop())

	ctx := context.Background()
	ch1, _ := b.Enqueue(ctx, "hash_a", "content")
	ch2, _ := b.Enqueue(ctx, "hash_b", "content")

	b.Flush(ctx)

	// Flush is synchronous; both results must already be buffered.
	select {
	case <-ch1:
	default:
		t.Error("hash_a unresolved after Flush")
	}
	select {
	case <-ch2:
	default:
		t.Error("hash_b unresolved after Flush")
	}

	if got := ft.callCount(); got != 1 {
		t.Errorf("transport called %d times, want 1", got)
	}
}

func TestFlush_EmptyQueueIsNoop(t *testing.T) {
	ft := newFakeTransport()
	b := New(Config{}, ft, nil, zerolog.Nop())

	b.Flush(context.Background())

	if got := ft.callCount(); got != 0 {
		t.Errorf("transport called %d times on empty flush, want 0", got)
	}
}

func TestClear_ResolvesAllWithoutNetwork(t *testing.T) {
	ft := newFakeTransport()
	b := New(Config{BatchSize: 10, MaxWait: time.Minute}, ft, nil, zerolog.Nop())

	ctx := context.Background()
	var chans []<-chan classify.Result
	for i := 0; i < 4; i++ {
		ch, _ := b.Enqueue(ctx, fmt.Sprintf("hash_%d", i), "content")
		chans = append(chans, ch)
	}

	b.Clear()

	for i, ch := range chans {
		select {
		case res := <-ch:
			if res.Label != classify.LabelAllow || res.Confidence != 0 {
				t.Errorf("result %d = %+v, want allow/0", i, res)
			}
		default:
			t.Errorf("result %d unresolved after Clear", i)
		}
	}

	if b.Size() != 0 {
		t.Errorf("Size = %d after Clear, want 0", b.Size())
	}
	if got := ft.callCount(); got != 0 {
		t.Errorf("transport called %d times, want 0", got)
	}
}

func TestClassifyNow_BypassesQueue(t *testing.T) {
	ft := newFakeTransport()
	b := New(Config{BatchSize: 10, MaxWait: time.Minute}, ft, nil, zerolog.Nop())

	ctx := context.Background()
	posts := []classify.Post{
		{Hash: "hash_a", Content: "one"},
		{Hash: "hash_b", Content: "two"},
	}

	results, err := b.ClassifyNow(ctx, posts)
	if err != nil {
		t.Fatalf("ClassifyNow: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d entries, want 2", len(results))
	}
	if results["hash_a"].Label != classify.LabelBlock {
		t.Errorf("hash_a = %+v", results["hash_a"])
	}
	if b.Size() != 0 {
		t.Errorf("Size = %d, want 0 (queue bypassed)", b.Size())
	}

	if _, err := b.ClassifyNow(ctx, []classify.Post{{Hash: "", Content: "x"}}); err != ErrInvalidArgument {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}

	empty, err := b.ClassifyNow(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty input: results = %v, err = %v", empty, err)
	}
}

func TestEnqueue_CacheHitSkipsNetwork(t *testing.T) {
	ft := newFakeTransport()
	mc, err := cache.NewMemoryCache(16, time.Minute)
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	defer mc.Close()

	b := New(Config{BatchSize: 10, MaxWait: time.Minute}, ft, mc, zerolog.Nop())
	ctx := context.Background()

	ch, err := b.Enqueue(ctx, "hash_dup", "content")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	b.Flush(ctx)

	first := awaitResult(t, ch, time.Second)
	if first.Label != classify.LabelBlock {
		t.Fatalf("first result = %+v", first)
	}

	again, err := b.Enqueue(ctx, "hash_dup", "content")
	if err != nil {
		t.Fatalf("Enqueue again: %v", err)
	}

	// Cached results resolve synchronously without queueing.
	select {
	case res := <-again:
		if res != first {
			t.Errorf("cached result = %+v, want %+v", res, first)
		}
	default:
		t.Fatal("cache hit did not resolve immediately")
	}

	if b.Size() != 0 {
		t.Errorf("Size = %d, want 0", b.Size())
	}
	if got := ft.callCount(); got != 1 {
		t.Errorf("transport called %d times, want 1", got)
	}
}

func TestEnqueue_FailOpenResultsAreNotCached(t *testing.T) {
	ft := newFakeTransport()
	ft.fn = func(posts []classify.Post) map[string]classify.Result {
		out := make(map[string]classify.Result, len(posts))
		for _, post := range posts {
			out[post.Hash] = classify.FailOpenResult(post.Hash)
		}
		return out
	}

	mc, err := cache.NewMemoryCache(16, time.Minute)
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	defer mc.Close()

	b := New(Config{BatchSize: 10, MaxWait: time.Minute}, ft, mc, zerolog.Nop())
	ctx := context.Background()

	ch, _ := b.Enqueue(ctx, "hash_x", "content")
	b.Flush(ctx)

	res := awaitResult(t, ch, time.Second)
	if !res.FailedOpen {
		t.Fatalf("result = %+v, want failedOpen", res)
	}

	if _, ok := mc.Get("hash_x"); ok {
		t.Error("fail-open result was cached")
	}
}

func TestClose_DrainsQueue(t *testing.T) {
	ft := newFakeTransport()
	b := New(Config{BatchSize: 2, MaxWait: time.Minute, RedrainDelay: time.Millisecond}, ft, nil, zerolog.Nop())

	ctx := context.Background()
	var chans []<-chan classify.Result
	for i := 0; i < 5; i++ {
		ch, _ := b.Enqueue(ctx, fmt.Sprintf("hash_%d", i), "content")
		chans = append(chans, ch)
	}

	b.Close(ctx)

	if b.Size() != 0 {
		t.Errorf("Size = %d after Close, want 0", b.Size())
	}
	for i, ch := range chans {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Errorf("result %d unresolved after Close", i)
		}
	}
}
