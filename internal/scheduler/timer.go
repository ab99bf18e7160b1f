package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultBudget     = 30 * time.Second
	defaultExpiryLead = 5 * time.Second
)

// TimerScheduler runs requests in-process with time.Timer. A new Submit
// replaces the pending request, as the OS does for a fixed task identifier.
type TimerScheduler struct {
	mu      sync.Mutex
	handler Handler
	timer   *time.Timer
	gen     uint64
	dueAt   time.Time
	stopped bool
	wg      sync.WaitGroup

	budget     time.Duration
	expiryLead time.Duration
	log        *slog.Logger
	now        func() time.Time
}

// Option configures a TimerScheduler.
type Option func(*TimerScheduler)

// WithBudget sets the execution budget of each task.
func WithBudget(d time.Duration) Option {
	return func(s *TimerScheduler) {
		if d > 0 {
			s.budget = d
		}
	}
}

// WithExpiryLead sets how long before the deadline Expired fires.
func WithExpiryLead(d time.Duration) Option {
	return func(s *TimerScheduler) {
		if d >= 0 {
			s.expiryLead = d
		}
	}
}

// NewTimerScheduler creates a scheduler. Call SetHandler before the first
// request comes due.
func NewTimerScheduler(log *slog.Logger, opts ...Option) *TimerScheduler {
	s := &TimerScheduler{
		budget:     defaultBudget,
		expiryLead: defaultExpiryLead,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.expiryLead >= s.budget {
		s.expiryLead = s.budget / 2
	}
	return s
}

// SetHandler sets the function that runs delivered tasks.
func (s *TimerScheduler) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *TimerScheduler) Submit(after time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	s.cancelLocked()

	s.gen++
	gen := s.gen
	s.dueAt = s.now().Add(after)
	s.timer = time.AfterFunc(after, func() { s.fire(gen) })

	s.log.Info("background sync scheduled", "after", after, "due_at", s.dueAt.Format(time.RFC3339))
	return nil
}

func (s *TimerScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *TimerScheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.dueAt = time.Time{}
	// Invalidate a timer that already fired but has not taken the lock yet.
	s.gen++
}

// Pending returns when the pending request is due.
func (s *TimerScheduler) Pending() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dueAt, !s.dueAt.IsZero()
}

// Stop drops pending requests and waits for running tasks until ctx is done.
func (s *TimerScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.cancelLocked()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TimerScheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.dueAt = time.Time{}
	handler := s.handler
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	task := newTimerTask(s.budget, s.expiryLead, s.log)
	if handler == nil {
		s.log.Warn("background task delivered without a handler")
		task.Complete(false)
		return
	}

	handler(task)

	if !task.completed() {
		s.log.Warn("background task handler returned without completing")
		task.Complete(false)
	}
}

// timerTask is the Task delivered by TimerScheduler.
type timerTask struct {
	ctx     context.Context
	cancel  context.CancelFunc
	expired chan struct{}
	expiry  *time.Timer
	log     *slog.Logger

	once    sync.Once
	done    chan struct{}
	success bool
}

func newTimerTask(budget, lead time.Duration, log *slog.Logger) *timerTask {
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	t := &timerTask{
		ctx:     ctx,
		cancel:  cancel,
		expired: make(chan struct{}),
		done:    make(chan struct{}),
		log:     log,
	}
	t.expiry = time.AfterFunc(budget-lead, func() { close(t.expired) })
	return t
}

func (t *timerTask) Context() context.Context { return t.ctx }

func (t *timerTask) Expired() <-chan struct{} { return t.expired }

func (t *timerTask) Complete(success bool) {
	t.once.Do(func() {
		t.success = success
		t.expiry.Stop()
		t.cancel()
		close(t.done)
		t.log.Debug("background task completed", "success", success)
	})
}

func (t *timerTask) completed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
