package orchestrate_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/outcall"
	"github.com/xraph/outcall/orchestrate"
	"github.com/xraph/outcall/provider"
)

// syncClient is a synchronous provider double: fails its first `failures`
// calls, optionally sleeps or blocks, then succeeds.
type syncClient struct {
	mu       sync.Mutex
	calls    int
	failures int
	delay    time.Duration
	block    chan struct{}
	data     string
}

func (c *syncClient) Name() string { return "fake-sync" }

func (c *syncClient) Generate(ctx context.Context, _ *provider.Request) (*provider.Result, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()

	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= c.failures {
		return nil, fmt.Errorf("transient provider error on call %d", n)
	}
	return &provider.Result{Data: []byte(c.data)}, nil
}

func (c *syncClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// asyncClient acknowledges dispatches immediately; completion arrives via
// the orchestrator's Handle* methods.
type asyncClient struct {
	mu         sync.Mutex
	dispatches int
	taskPrefix string
}

func (c *asyncClient) Name() string { return "fake-async" }

func (c *asyncClient) Generate(context.Context, *provider.Request) (*provider.Result, error) {
	return nil, errors.New("async provider does not generate synchronously")
}

func (c *asyncClient) Dispatch(context.Context, *provider.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatches++
	return fmt.Sprintf("%s-%d", c.taskPrefix, c.dispatches), nil
}

// countingNotifier records reset notifications.
type countingNotifier struct {
	mu   sync.Mutex
	keys []string
}

func (n *countingNotifier) ResetInProgress(_ context.Context, key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keys = append(n.keys, key)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.keys)
}

func fastConfig(maxRetries int) outcall.Config {
	cfg := outcall.DefaultConfig()
	cfg.MaxRetries = maxRetries
	cfg.OuterTimeout = 5 * time.Second
	cfg.PerAttemptTimeout = time.Second
	sched := make([]time.Duration, maxRetries)
	for i := range sched {
		sched[i] = time.Millisecond
	}
	cfg.BackoffSchedule = sched
	return cfg
}

func testRequest(subject string) *provider.Request {
	return &provider.Request{
		Subject:  subject,
		Category: "video",
		Content:  "Once upon a time, a story worth rendering.",
		Params:   map[string]any{"resolution": "1080p"},
	}
}

func TestOrchestrator_SuccessIsCachedOnSecondSubmit(t *testing.T) {
	client := &syncClient{data: "artifact-bytes"}
	o, err := orchestrate.New(client, orchestrate.WithConfig(fastConfig(2)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	ctx := context.Background()
	req := testRequest("story-42")

	first, err := o.Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.Cached {
		t.Error("first result reported as cached")
	}
	if first.ArtifactID.IsNil() {
		t.Error("artifact id not minted")
	}

	second, err := o.Submit(ctx, req)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if !second.Cached {
		t.Error("second result not served from cache")
	}
	if string(second.Data) != "artifact-bytes" {
		t.Errorf("Data = %q, want %q", second.Data, "artifact-bytes")
	}
	if got := client.callCount(); got != 1 {
		t.Errorf("provider invoked %d times, want 1", got)
	}
}

func TestOrchestrator_SingleFlightRejectsDuplicate(t *testing.T) {
	client := &syncClient{data: "artifact", block: make(chan struct{})}
	notifier := &countingNotifier{}
	o, err := orchestrate.New(client,
		orchestrate.WithConfig(fastConfig(0)),
		orchestrate.WithResetNotifier(notifier),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	ctx := context.Background()
	req := testRequest("story-42")

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(ctx, req)
		done <- err
	}()

	waitFor(t, func() bool { return o.Active(req.Key()) })

	if _, err := o.Submit(ctx, req); !errors.Is(err, outcall.ErrAlreadyInProgress) {
		t.Fatalf("duplicate Submit error = %v, want ErrAlreadyInProgress", err)
	}
	// Rejection must not reset the running operation's flag.
	if n := notifier.count(); n != 0 {
		t.Errorf("reset emitted %d times on rejection, want 0", n)
	}

	close(client.block)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if o.Active(req.Key()) {
		t.Error("operation key still active after completion")
	}
	if n := notifier.count(); n != 0 {
		t.Errorf("reset emitted %d times on success, want 0", n)
	}
}

func TestOrchestrator_RetriesExhausted(t *testing.T) {
	client := &syncClient{failures: 100}
	notifier := &countingNotifier{}
	o, err := orchestrate.New(client,
		orchestrate.WithConfig(fastConfig(2)),
		orchestrate.WithResetNotifier(notifier),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	_, err = o.Submit(context.Background(), testRequest("story-42"))
	if !errors.Is(err, outcall.ErrRetriesExhausted) {
		t.Fatalf("Submit error = %v, want ErrRetriesExhausted", err)
	}
	if errors.Is(err, outcall.ErrOperationTimeout) {
		t.Error("exhausted retries misreported as outer timeout")
	}
	if got := client.callCount(); got != 3 {
		t.Errorf("provider invoked %d times, want 3", got)
	}
	if n := notifier.count(); n != 1 {
		t.Errorf("reset emitted %d times, want 1", n)
	}
	if o.Active("story-42/video") {
		t.Error("operation key still active after failure")
	}
}

func TestOrchestrator_OuterDeadlineOverridesSchedule(t *testing.T) {
	client := &syncClient{failures: 100}
	notifier := &countingNotifier{}
	cfg := fastConfig(5)
	cfg.OuterTimeout = 80 * time.Millisecond
	cfg.BackoffSchedule = []time.Duration{
		50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond,
		50 * time.Millisecond, 50 * time.Millisecond,
	}
	o, err := orchestrate.New(client,
		orchestrate.WithConfig(cfg),
		orchestrate.WithResetNotifier(notifier),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	_, err = o.Submit(context.Background(), testRequest("story-42"))
	if !errors.Is(err, outcall.ErrOperationTimeout) {
		t.Fatalf("Submit error = %v, want ErrOperationTimeout", err)
	}
	if got := client.callCount(); got >= 6 {
		t.Errorf("provider invoked %d times, want fewer than 6", got)
	}
	if n := notifier.count(); n != 1 {
		t.Errorf("reset emitted %d times, want 1", n)
	}
}

func TestOrchestrator_PerAttemptTimeoutIsRetryable(t *testing.T) {
	client := &syncClient{delay: 200 * time.Millisecond, data: "never"}
	cfg := fastConfig(1)
	cfg.PerAttemptTimeout = 20 * time.Millisecond
	o, err := orchestrate.New(client, orchestrate.WithConfig(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	_, err = o.Submit(context.Background(), testRequest("story-42"))
	if !errors.Is(err, outcall.ErrRetriesExhausted) {
		t.Fatalf("Submit error = %v, want ErrRetriesExhausted", err)
	}
	if got := client.callCount(); got != 2 {
		t.Errorf("provider invoked %d times, want 2", got)
	}
}

func TestOrchestrator_FailsTwiceThenSucceeds(t *testing.T) {
	client := &syncClient{failures: 2, data: "third-time-lucky"}
	notifier := &countingNotifier{}
	cfg := outcall.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.BackoffSchedule = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	cfg.OuterTimeout = 5 * time.Second
	cfg.PerAttemptTimeout = time.Second
	o, err := orchestrate.New(client,
		orchestrate.WithConfig(cfg),
		orchestrate.WithResetNotifier(notifier),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	start := time.Now()
	res, err := o.Submit(context.Background(), testRequest("story-42"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("elapsed %v, want >= 300ms of backoff pacing", elapsed)
	}
	if string(res.Data) != "third-time-lucky" {
		t.Errorf("Data = %q, want %q", res.Data, "third-time-lucky")
	}
	if got := client.callCount(); got != 3 {
		t.Errorf("provider invoked %d times, want 3", got)
	}
	if n := notifier.count(); n != 0 {
		t.Errorf("reset emitted %d times on success, want 0", n)
	}
}

func TestOrchestrator_AsyncCompletionResolvesSubmit(t *testing.T) {
	client := &asyncClient{taskPrefix: "task"}
	o, err := orchestrate.New(client, orchestrate.WithConfig(fastConfig(0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	done := make(chan struct {
		res *provider.Result
		err error
	}, 1)
	go func() {
		res, err := o.Submit(context.Background(), testRequest("story-42"))
		done <- struct {
			res *provider.Result
			err error
		}{res, err}
	}()

	waitFor(t, func() bool { return o.Stats().Correlation.Pending == 1 })

	if !o.HandleCompletion("task-1", &provider.Result{TaskID: "task-1", Data: []byte("rendered")}) {
		t.Fatal("HandleCompletion found no waiter")
	}

	out := <-done
	if out.err != nil {
		t.Fatalf("Submit: %v", out.err)
	}
	if string(out.res.Data) != "rendered" {
		t.Errorf("Data = %q, want %q", out.res.Data, "rendered")
	}
	if out.res.TaskID != "task-1" {
		t.Errorf("TaskID = %q, want %q", out.res.TaskID, "task-1")
	}
}

func TestOrchestrator_AsyncFailureConsumesAttempt(t *testing.T) {
	client := &asyncClient{taskPrefix: "task"}
	notifier := &countingNotifier{}
	o, err := orchestrate.New(client,
		orchestrate.WithConfig(fastConfig(1)),
		orchestrate.WithResetNotifier(notifier),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), testRequest("story-42"))
		done <- err
	}()

	for _, task := range []string{"task-1", "task-2"} {
		waitFor(t, func() bool { return o.Stats().Correlation.Pending == 1 })
		if !o.HandleFailure(task, errors.New("render farm rejected job")) {
			t.Fatalf("HandleFailure found no waiter for %s", task)
		}
	}

	if err := <-done; !errors.Is(err, outcall.ErrRetriesExhausted) {
		t.Fatalf("Submit error = %v, want ErrRetriesExhausted", err)
	}
	if n := notifier.count(); n != 1 {
		t.Errorf("reset emitted %d times, want 1", n)
	}
}

func TestOrchestrator_UnmatchedSignalIsDropped(t *testing.T) {
	o, err := orchestrate.New(&syncClient{}, orchestrate.WithConfig(fastConfig(0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	if o.HandleCompletion("ghost-task", &provider.Result{}) {
		t.Error("HandleCompletion matched a never-registered task")
	}
	if o.HandleFailure("ghost-task", errors.New("boom")) {
		t.Error("HandleFailure matched a never-registered task")
	}
}

func TestOrchestrator_InvalidRequestRejected(t *testing.T) {
	client := &syncClient{}
	o, err := orchestrate.New(client, orchestrate.WithConfig(fastConfig(0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	_, err = o.Submit(context.Background(), &provider.Request{Category: "video", Content: "x"})
	if !errors.Is(err, outcall.ErrInvalidInput) {
		t.Fatalf("Submit error = %v, want ErrInvalidInput", err)
	}
	if got := client.callCount(); got != 0 {
		t.Errorf("provider invoked %d times for invalid input, want 0", got)
	}
}

func TestOrchestrator_InvalidateForcesRecompute(t *testing.T) {
	client := &syncClient{data: "artifact"}
	o, err := orchestrate.New(client, orchestrate.WithConfig(fastConfig(0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	ctx := context.Background()
	req := testRequest("story-42")

	if _, err := o.Submit(ctx, req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := o.Invalidate(ctx, req); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := o.Lookup(ctx, req); !errors.Is(err, outcall.ErrEntryNotFound) {
		t.Fatalf("Lookup after Invalidate = %v, want ErrEntryNotFound", err)
	}

	res, err := o.Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit after Invalidate: %v", err)
	}
	if res.Cached {
		t.Error("recompute after invalidation reported as cached")
	}
	if got := client.callCount(); got != 2 {
		t.Errorf("provider invoked %d times, want 2", got)
	}
}

func TestOrchestrator_ChangedContentMissesAndPriorEntryInvalidates(t *testing.T) {
	client := &syncClient{data: "artifact"}
	o, err := orchestrate.New(client, orchestrate.WithConfig(fastConfig(0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	ctx := context.Background()
	prior := testRequest("story-42")
	if _, err := o.Submit(ctx, prior); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Edited source hashes to a new key: a fresh compute, not a stale hit.
	edited := testRequest("story-42")
	edited.Content = prior.Content + " The ending was rewritten."
	res, err := o.Submit(ctx, edited)
	if err != nil {
		t.Fatalf("Submit edited: %v", err)
	}
	if res.Cached {
		t.Error("edited content served from the prior entry")
	}
	if got := client.callCount(); got != 2 {
		t.Errorf("provider invoked %d times, want 2", got)
	}

	// The prior request still identifies the obsolete entry for cleanup.
	if err := o.Invalidate(ctx, prior); err != nil {
		t.Fatalf("Invalidate prior: %v", err)
	}
	if _, err := o.Lookup(ctx, prior); !errors.Is(err, outcall.ErrEntryNotFound) {
		t.Fatalf("Lookup prior after Invalidate = %v, want ErrEntryNotFound", err)
	}
	if _, err := o.Lookup(ctx, edited); err != nil {
		t.Errorf("Lookup edited after prior invalidation: %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached within 2s")
}
