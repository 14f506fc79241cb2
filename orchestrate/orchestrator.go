package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/outcall"
	"github.com/xraph/outcall/backoff"
	"github.com/xraph/outcall/cache"
	"github.com/xraph/outcall/cache/memory"
	"github.com/xraph/outcall/contenthash"
	"github.com/xraph/outcall/correlate"
	"github.com/xraph/outcall/id"
	"github.com/xraph/outcall/middleware"
	"github.com/xraph/outcall/operation"
	"github.com/xraph/outcall/provider"
)

// OperationTimeoutError reports an operation abandoned because its outer
// budget elapsed, distinguishing it from an ordinary exhausted-retries
// failure.
type OperationTimeoutError struct {
	Key      string
	Budget   time.Duration
	Attempts int
}

func (e *OperationTimeoutError) Error() string {
	return fmt.Sprintf("outcall: operation %s exceeded its %s budget after %d attempts",
		e.Key, e.Budget, e.Attempts)
}

func (e *OperationTimeoutError) Unwrap() error { return outcall.ErrOperationTimeout }

// Orchestrator coordinates provider calls, retries, deadlines, caching,
// and callback correlation for one provider client.
type Orchestrator struct {
	client provider.Client
	cfg    outcall.Config

	cache      *cache.Cache
	hasher     *contenthash.Hasher
	correlator *correlate.Manager
	notifier   ResetNotifier
	backoff    backoff.Strategy
	logger     *slog.Logger

	middlewares []middleware.Middleware
	chain       middleware.Middleware

	mu     sync.Mutex
	active map[string]*operation.Operation

	ownsCache      bool
	ownsCorrelator bool
}

// Stats is a point-in-time view of the orchestrator's in-flight state.
type Stats struct {
	// ActiveOperations is the number of operation keys currently running.
	ActiveOperations int `json:"active_operations"`

	// Correlation reports the pending-waiter state.
	Correlation correlate.Stats `json:"correlation"`
}

// New builds an Orchestrator around a provider client. Unconfigured
// collaborators get working defaults: an in-memory cache, a correlation
// manager swept per the config, a backoff strategy from the configured
// schedule, and a no-op reset notifier.
func New(client provider.Client, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil provider client", outcall.ErrInvalidInput)
	}

	o := &Orchestrator{
		client:   client,
		cfg:      outcall.DefaultConfig(),
		notifier: noopNotifier{},
		logger:   slog.Default(),
		active:   make(map[string]*operation.Operation),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	if o.hasher == nil {
		o.hasher = contenthash.New()
	}
	if o.cache == nil {
		o.cache = cache.New(nil, memory.New(), cache.WithLogger(o.logger))
		o.ownsCache = true
	}
	if o.correlator == nil {
		o.correlator = correlate.NewManager(
			correlate.WithLogger(o.logger),
			correlate.WithDefaultTimeout(o.cfg.PerAttemptTimeout),
			correlate.WithSweep(o.cfg.SweepInterval, o.cfg.SweepGrace),
		)
		o.ownsCorrelator = true
	}
	if o.backoff == nil {
		o.backoff = backoff.FromDurations(o.cfg.BackoffSchedule)
	}

	// Recover outermost so a panic anywhere in the stack becomes an
	// attempt error; Timeout innermost so the per-attempt deadline wraps
	// only the provider call.
	mws := []middleware.Middleware{
		middleware.Recover(o.logger),
		middleware.Logging(o.logger),
	}
	mws = append(mws, o.middlewares...)
	mws = append(mws, middleware.Timeout(o.logger))
	o.chain = middleware.Chain(mws...)

	return o, nil
}

// Start launches background housekeeping (the correlation sweep) when the
// orchestrator owns the correlation manager.
func (o *Orchestrator) Start() {
	if o.ownsCorrelator {
		o.correlator.Start()
	}
}

// Stop halts housekeeping and releases collaborators the orchestrator
// created itself. Injected collaborators are left to their owners.
func (o *Orchestrator) Stop() error {
	if o.ownsCorrelator {
		o.correlator.Stop()
	}
	if o.ownsCache {
		return o.cache.Close()
	}
	return nil
}

// Submit drives one generation request to a terminal outcome. The caller
// receives exactly one of: a result (fresh or cached), an
// outcall.ErrAlreadyInProgress rejection, an outcall.ErrRetriesExhausted
// failure, or an outcall.ErrOperationTimeout failure.
func (o *Orchestrator) Submit(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key := req.Key()

	op, err := o.begin(key)
	if err != nil {
		// Rejection: the running operation's state is untouched and no
		// reset is emitted, because the flag belongs to that operation.
		return nil, err
	}
	defer o.end(key)

	sum, err := o.hasher.Hash(req.Content, hashInputs(req))
	if err != nil {
		return nil, o.finalize(ctx, op, operation.StateFailed, err)
	}

	octx, cancel := context.WithTimeout(ctx, op.OuterTimeout)
	defer cancel()

	entry, hit, err := o.cache.GetOrCompute(octx, sum, o.cfg.CacheTTL, func(cctx context.Context) (*cache.Entry, error) {
		return o.execute(cctx, op, req)
	})
	if err != nil {
		state := operation.StateFailed
		terminal := err
		if !errors.Is(err, outcall.ErrRetriesExhausted) && errors.Is(err, context.DeadlineExceeded) {
			state = operation.StateTimedOut
			terminal = &OperationTimeoutError{
				Key:      key,
				Budget:   op.OuterTimeout,
				Attempts: op.Attempt + 1,
			}
		}
		return nil, o.finalize(ctx, op, state, terminal)
	}

	op.State = operation.StateSucceeded
	o.logger.InfoContext(ctx, "operation succeeded",
		slog.String("operation_id", op.ID.String()),
		slog.String("operation_key", key),
		slog.Bool("cached", hit),
		slog.Duration("elapsed", time.Since(op.StartedAt)))
	return resultFromEntry(entry, hit), nil
}

// HandleCompletion feeds a provider's out-of-band success callback to the
// waiter registered for taskID. It reports whether a waiter was matched;
// an unmatched signal is logged and dropped, since late or duplicate
// provider callbacks are expected.
func (o *Orchestrator) HandleCompletion(taskID string, res *provider.Result) bool {
	if o.correlator.NotifySuccess(taskID, res) {
		return true
	}
	o.logger.Warn("unmatched completion signal",
		slog.String("task_id", taskID))
	return false
}

// HandleFailure feeds a provider's out-of-band failure callback to the
// waiter registered for taskID.
func (o *Orchestrator) HandleFailure(taskID string, err error) bool {
	if o.correlator.NotifyFailure(taskID, err) {
		return true
	}
	o.logger.Warn("unmatched failure signal",
		slog.String("task_id", taskID),
		slog.Any("error", err))
	return false
}

// Active reports whether an operation is currently running for the logical
// job key.
func (o *Orchestrator) Active(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[key]
	return ok
}

// Stats returns the in-flight view for observability.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	n := len(o.active)
	o.mu.Unlock()
	return Stats{
		ActiveOperations: n,
		Correlation:      o.correlator.Stats(),
	}
}

// Lookup returns the cached result for a request without invoking the
// provider. It reports outcall.ErrEntryNotFound on a miss.
func (o *Orchestrator) Lookup(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sum, err := o.hasher.Hash(req.Content, hashInputs(req))
	if err != nil {
		return nil, err
	}
	entry, err := o.cache.Get(ctx, sum)
	if err != nil {
		return nil, err
	}
	return resultFromEntry(entry, true), nil
}

// Invalidate removes the cached result for a request, forcing the next
// Submit to recompute. Use it when the upstream source is known to have
// changed.
func (o *Orchestrator) Invalidate(ctx context.Context, req *provider.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	sum, err := o.hasher.Hash(req.Content, hashInputs(req))
	if err != nil {
		return err
	}
	return o.cache.Invalidate(ctx, sum)
}

// begin claims the single-flight slot for key.
func (o *Orchestrator) begin(key string) (*operation.Operation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.active[key]; ok {
		return nil, fmt.Errorf("%w: %s", outcall.ErrAlreadyInProgress, key)
	}
	op := &operation.Operation{
		ID:                id.NewOperationID(),
		Key:               key,
		MaxRetries:        o.cfg.MaxRetries,
		PerAttemptTimeout: o.cfg.PerAttemptTimeout,
		OuterTimeout:      o.cfg.OuterTimeout,
		State:             operation.StateRunning,
		StartedAt:         time.Now(),
	}
	o.active[key] = op
	return op, nil
}

// end releases the single-flight slot for key.
func (o *Orchestrator) end(key string) {
	o.mu.Lock()
	delete(o.active, key)
	o.mu.Unlock()
}

// finalize records a failure terminal and emits the mandatory reset
// notification, awaited. A reset failure is joined onto the terminal error
// so the cleanup outcome stays observable.
func (o *Orchestrator) finalize(ctx context.Context, op *operation.Operation, state operation.State, terminal error) error {
	op.State = state
	op.LastError = terminal.Error()

	o.logger.ErrorContext(ctx, "operation failed",
		slog.String("operation_id", op.ID.String()),
		slog.String("operation_key", op.Key),
		slog.String("state", string(state)),
		slog.Int("attempts", op.Attempt+1),
		slog.Any("error", terminal))

	// The outer deadline is usually already blown here; the reset must
	// still run.
	resetCtx := context.WithoutCancel(ctx)
	if err := o.notifier.ResetInProgress(resetCtx, op.Key); err != nil {
		o.logger.ErrorContext(ctx, "state reset failed",
			slog.String("operation_key", op.Key),
			slog.Any("error", err))
		return errors.Join(terminal, err)
	}
	return terminal
}

// execute runs the attempt loop inside the outer deadline. It returns a
// cache entry on success, ctx.Err() when the outer budget wins, or an
// ErrRetriesExhausted terminal wrapping the last attempt error.
func (o *Orchestrator) execute(ctx context.Context, op *operation.Operation, req *provider.Request) (*cache.Entry, error) {
	var lastErr error
	for attempt := 0; attempt <= op.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		op.Attempt = attempt

		res, err := o.attempt(ctx, op, req)
		if err == nil {
			return o.entryFromResult(res), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt < op.MaxRetries {
			delay := o.backoff.Delay(attempt + 1)
			o.logger.WarnContext(ctx, "attempt failed, backing off",
				slog.String("operation_key", op.Key),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("%w: %d attempts for %s, last: %w",
		outcall.ErrRetriesExhausted, op.MaxRetries+1, op.Key, lastErr)
}

// attempt runs one provider invocation through the middleware chain.
func (o *Orchestrator) attempt(ctx context.Context, op *operation.Operation, req *provider.Request) (*provider.Result, error) {
	var res *provider.Result
	err := o.chain(ctx, op, func(hctx context.Context) error {
		r, err := o.invoke(hctx, op, req)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// invoke performs the actual provider call. Asynchronous providers are
// dispatched and then awaited through the correlation manager under the
// attempt's remaining budget.
func (o *Orchestrator) invoke(ctx context.Context, op *operation.Operation, req *provider.Request) (*provider.Result, error) {
	ac, ok := o.client.(provider.AsyncClient)
	if !ok {
		return o.client.Generate(ctx, req)
	}

	taskID, err := ac.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	op.TaskID = taskID

	timeout := op.PerAttemptTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	w, err := o.correlator.Register(taskID, timeout)
	if err != nil {
		return nil, err
	}
	o.logger.DebugContext(ctx, "awaiting provider callback",
		slog.String("operation_key", op.Key),
		slog.String("task_id", taskID))
	return w.Wait(ctx)
}

// entryFromResult normalizes a provider result into a cache entry, minting
// the artifact ID when the provider did not.
func (o *Orchestrator) entryFromResult(res *provider.Result) *cache.Entry {
	if res.ArtifactID.IsNil() {
		res.ArtifactID = id.NewArtifactID()
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = time.Now()
	}
	if res.Provider == "" {
		res.Provider = o.client.Name()
	}
	return &cache.Entry{
		Value: res.Data,
		Meta: cache.Meta{
			ArtifactID:  res.ArtifactID,
			Provider:    res.Provider,
			ContentType: res.ContentType,
			TaskID:      res.TaskID,
			ComputedAt:  res.CompletedAt,
		},
	}
}

func resultFromEntry(e *cache.Entry, cached bool) *provider.Result {
	return &provider.Result{
		ArtifactID:  e.Meta.ArtifactID,
		TaskID:      e.Meta.TaskID,
		Data:        e.Value,
		ContentType: e.Meta.ContentType,
		Provider:    e.Meta.Provider,
		Cached:      cached,
		CompletedAt: e.Meta.ComputedAt,
	}
}

// hashInputs collects every request field that affects the output, so the
// cache key changes exactly when the artifact would.
func hashInputs(req *provider.Request) map[string]any {
	inputs := map[string]any{
		"category": req.Category,
	}
	if len(req.Params) > 0 {
		inputs["params"] = req.Params
	}
	if len(req.Overrides) > 0 {
		inputs["overrides"] = req.Overrides
	}
	return inputs
}
