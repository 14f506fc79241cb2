package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/outcall"
	"github.com/xraph/outcall/provider"
)

// DefaultTimeout bounds how long a waiter may remain pending when Register
// is called with a non-positive timeout.
const DefaultTimeout = 10 * time.Minute

// TimeoutError reports a waiter that expired before its callback arrived.
type TimeoutError struct {
	TaskID   string
	Deadline time.Time
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("outcall: no callback for task %s within %s", e.TaskID, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error { return outcall.ErrWaiterTimeout }

type outcome struct {
	result *provider.Result
	err    error
}

// Waiter is a pending registration for one task ID. It resolves exactly
// once: by callback, deadline, or cancellation, whichever comes first.
type Waiter struct {
	taskID       string
	registeredAt time.Time
	deadline     time.Time
	ch           chan outcome
	timer        Timer
	m            *Manager
}

// TaskID returns the provider-assigned task this waiter is registered for.
func (w *Waiter) TaskID() string { return w.taskID }

// Deadline returns the instant after which the waiter times out.
func (w *Waiter) Deadline() time.Time { return w.deadline }

// Wait blocks until the waiter resolves or ctx is done. A ctx cancellation
// deregisters the waiter so a late callback for the task is treated as
// unmatched.
func (w *Waiter) Wait(ctx context.Context) (*provider.Result, error) {
	select {
	case o := <-w.ch:
		return o.result, o.err
	case <-ctx.Done():
		w.Cancel()
		// The callback may have won the race against cancellation.
		select {
		case o := <-w.ch:
			return o.result, o.err
		default:
			return nil, ctx.Err()
		}
	}
}

// Cancel deregisters the waiter without resolving it. Canceling an already
// resolved waiter is a no-op.
func (w *Waiter) Cancel() {
	w.m.remove(w.taskID, w)
}

// Stats is a point-in-time view of the manager's pending waiters.
type Stats struct {
	// Pending is the number of registered, unresolved waiters.
	Pending int `json:"pending"`

	// OldestAge is how long the oldest pending waiter has been
	// registered; zero when none are pending.
	OldestAge time.Duration `json:"oldest_age"`
}

// Manager owns the task-ID-to-waiter registry.
type Manager struct {
	mu      sync.Mutex
	waiters map[string]*Waiter

	clock          Clock
	logger         *slog.Logger
	defaultTimeout time.Duration
	sweepInterval  time.Duration
	sweepGrace     time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the time source, primarily for tests.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDefaultTimeout sets the timeout applied when Register receives a
// non-positive one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.defaultTimeout = d
		}
	}
}

// WithSweep sets the background sweep cadence and the grace window added to
// a waiter's deadline before the sweep expires it.
func WithSweep(interval, grace time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.sweepInterval = interval
		}
		if grace >= 0 {
			m.sweepGrace = grace
		}
	}
}

// NewManager creates a Manager. Call Start to run the background sweep.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		waiters:        make(map[string]*Waiter),
		clock:          realClock{},
		logger:         slog.Default(),
		defaultTimeout: DefaultTimeout,
		sweepInterval:  30 * time.Second,
		sweepGrace:     5 * time.Second,
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register creates a waiter for taskID with the given timeout. It returns
// outcall.ErrWaiterExists when a waiter for the task is already pending:
// one operation owns one task.
func (m *Manager) Register(taskID string, timeout time.Duration) (*Waiter, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: empty task id", outcall.ErrInvalidInput)
	}
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	m.mu.Lock()
	if _, ok := m.waiters[taskID]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: task %s", outcall.ErrWaiterExists, taskID)
	}

	now := m.clock.Now()
	w := &Waiter{
		taskID:       taskID,
		registeredAt: now,
		deadline:     now.Add(timeout),
		ch:           make(chan outcome, 1),
		m:            m,
	}
	m.waiters[taskID] = w
	// Armed under the lock so any resolver that finds the waiter also
	// sees its timer. The callback only runs later, on its own goroutine.
	w.timer = m.clock.AfterFunc(timeout, func() { m.expire(taskID) })
	m.mu.Unlock()

	return w, nil
}

// NotifySuccess resolves the waiter for taskID with a completed result. It
// reports whether a waiter was pending; an unmatched callback is the
// caller's signal to log and drop.
func (m *Manager) NotifySuccess(taskID string, res *provider.Result) bool {
	return m.resolve(taskID, outcome{result: res})
}

// NotifyFailure resolves the waiter for taskID with the provider-reported
// error.
func (m *Manager) NotifyFailure(taskID string, err error) bool {
	return m.resolve(taskID, outcome{err: err})
}

// Stats returns the pending-waiter view.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Pending: len(m.waiters)}
	now := m.clock.Now()
	for _, w := range m.waiters {
		if age := now.Sub(w.registeredAt); age > s.OldestAge {
			s.OldestAge = age
		}
	}
	return s
}

// Start launches the background sweep. It is a no-op when already started.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.sweepLoop()
}

// Stop halts the sweep and expires every pending waiter so no caller blocks
// past shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
	} else {
		m.started = false
		close(m.stopCh)
		m.mu.Unlock()
		m.wg.Wait()
	}

	m.mu.Lock()
	pending := make([]*Waiter, 0, len(m.waiters))
	for _, w := range m.waiters {
		pending = append(pending, w)
	}
	m.mu.Unlock()

	for _, w := range pending {
		m.expire(w.taskID)
	}
}

// Sweep expires every waiter past its deadline plus the grace window and
// returns how many it expired. The background loop calls this on a ticker;
// it is exported for deterministic use in tests and manual housekeeping.
func (m *Manager) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	var stale []string
	for taskID, w := range m.waiters {
		if now.After(w.deadline.Add(m.sweepGrace)) {
			stale = append(stale, taskID)
		}
	}
	m.mu.Unlock()

	for _, taskID := range stale {
		if m.expire(taskID) {
			m.logger.Warn("swept stale waiter", slog.String("task_id", taskID))
		}
	}
	return len(stale)
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stopCh:
			return
		}
	}
}

// resolve removes the waiter for taskID and delivers the outcome. Removal
// under the lock guarantees exactly-once resolution.
func (m *Manager) resolve(taskID string, o outcome) bool {
	m.mu.Lock()
	w, ok := m.waiters[taskID]
	if ok {
		delete(m.waiters, taskID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.ch <- o
	return true
}

// expire resolves the waiter for taskID with a TimeoutError. The timer is
// stopped even on this path: the sweep and Stop expire waiters whose own
// deadline timer is still armed, and a stale timer firing later would
// settle whichever waiter has reused the task ID by then.
func (m *Manager) expire(taskID string) bool {
	m.mu.Lock()
	w, ok := m.waiters[taskID]
	if ok {
		delete(m.waiters, taskID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	now := m.clock.Now()
	w.ch <- outcome{err: &TimeoutError{
		TaskID:   taskID,
		Deadline: w.deadline,
		Elapsed:  now.Sub(w.registeredAt),
	}}
	return true
}

// remove deregisters a specific waiter without resolving it.
func (m *Manager) remove(taskID string, w *Waiter) {
	m.mu.Lock()
	if cur, ok := m.waiters[taskID]; ok && cur == w {
		delete(m.waiters, taskID)
	}
	m.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
}
