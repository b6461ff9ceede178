// Package scheduler runs periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opensource-finance/creditlens/internal/domain"
)

// TaskFunc is one run of a scheduled task.
type TaskFunc func(ctx context.Context) error

// TaskStatus reports a task's schedule and run history.
type TaskStatus struct {
	Name       string    `json:"name"`
	Schedule   string    `json:"schedule"`
	LastRun    time.Time `json:"lastRun,omitempty"`
	NextRun    time.Time `json:"nextRun,omitempty"`
	RunCount   int64     `json:"runCount"`
	ErrorCount int64     `json:"errorCount"`
	LastError  string    `json:"lastError,omitempty"`
}

type task struct {
	name     string
	schedule string
	run      TaskFunc
	timeout  time.Duration
	entryID  cron.EntryID

	mu        sync.Mutex
	lastRun   time.Time
	runs      int64
	errors    int64
	lastError string
}

// Scheduler wraps a robfig/cron runner. Overlapping runs of one task are
// skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	tasks map[string]*task
}

// New creates a Scheduler evaluating schedules in UTC.
func New(opts ...cron.Option) *Scheduler {
	opts = append([]cron.Option{
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(opts...),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*task),
	}
}

// Add registers fn under name. timeout bounds each run; zero means none.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("%w: task %q already scheduled", domain.ErrInvalidInput, name)
	}

	t := &task{name: name, schedule: spec, run: fn, timeout: timeout}
	id, err := s.cron.AddFunc(spec, func() { s.execute(t) })
	if err != nil {
		return fmt.Errorf("%w: invalid schedule %q for %s: %v", domain.ErrInvalidInput, spec, name, err)
	}
	t.entryID = id
	s.tasks[name] = t

	slog.Info("task scheduled", "task", name, "schedule", spec)
	return nil
}

// Start begins running scheduled tasks.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "tasks", len(s.Tasks()))
}

// Stop halts scheduling and waits for running tasks to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// RunNow executes a task immediately and returns its error.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: task %q", domain.ErrNotFound, name)
	}
	return s.execute(t)
}

func (s *Scheduler) execute(t *task) error {
	ctx := s.ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	err := t.run(ctx)

	t.mu.Lock()
	t.lastRun = start
	t.runs++
	if err != nil {
		t.errors++
		t.lastError = err.Error()
	} else {
		t.lastError = ""
	}
	t.mu.Unlock()

	if err != nil {
		slog.Error("scheduled task failed", "task", t.name, "error", err)
	} else {
		slog.Debug("scheduled task completed", "task", t.name, "duration_ms", time.Since(start).Milliseconds())
	}
	return err
}

// Tasks returns the status of every task, sorted by name.
func (s *Scheduler) Tasks() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		out = append(out, TaskStatus{
			Name:       t.name,
			Schedule:   t.schedule,
			LastRun:    t.lastRun,
			NextRun:    s.cron.Entry(t.entryID).Next,
			RunCount:   t.runs,
			ErrorCount: t.errors,
			LastError:  t.lastError,
		})
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Refresher refreshes the economic snapshot.
type Refresher interface {
	Refresh(ctx context.Context) (*domain.EconomicSnapshot, error)
}

// EconomicRefreshTask is the name the snapshot refresh is scheduled under.
const EconomicRefreshTask = "economic-refresh"

// EconomicRefresh returns a task that refreshes r and logs the snapshot.
func EconomicRefresh(r Refresher) TaskFunc {
	return func(ctx context.Context) error {
		snap, err := r.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("economic refresh: %w", err)
		}
		slog.Info("economic snapshot refreshed",
			"source", snap.Source,
			"as_of", snap.AsOf,
			"policy_rate", snap.PolicyRate,
		)
		return nil
	}
}
