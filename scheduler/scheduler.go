// Package scheduler runs periodic maintenance: outbox dispatch and ledger
// pruning. Ticks either run the task inline or, when a job queue is wired,
// enqueue an execution message for a Worker to pick up.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/robfig/cron/v3"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

// Task is one unit of scheduled work. Parameters come from the execution
// message when the task runs from a queue.
type Task func(ctx context.Context, params map[string]any) error

type Option func(*Scheduler)

func WithEnqueuer(enqueuer core.JobEnqueuer) Option {
	return func(s *Scheduler) {
		s.enqueuer = enqueuer
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Scheduler) {
		s.logger = glog.Ensure(logger)
	}
}

func WithTaskTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.taskTimeout = timeout
		}
	}
}

type entry struct {
	spec string
	task Task
	id   cron.EntryID
}

type Scheduler struct {
	cron        *cron.Cron
	enqueuer    core.JobEnqueuer
	logger      core.Logger
	taskTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:      glog.Nop(),
		taskTimeout: 5 * time.Minute,
		entries:     map[string]*entry{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	cronLog := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Register binds a task to a cron spec. An empty spec registers the task
// without a schedule so it can still be run by a Worker or RunNow.
func (s *Scheduler) Register(jobID, spec string, task Task) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return core.NewBadInputError("scheduler: job id is required")
	}
	if task == nil {
		return core.NewBadInputError("scheduler: task is required")
	}
	spec = strings.TrimSpace(spec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[jobID]; exists {
		return core.NewConflictError(fmt.Sprintf("scheduler: job %q already registered", jobID))
	}
	e := &entry{spec: spec, task: task}
	if spec != "" {
		id, err := s.cron.AddFunc(spec, func() {
			s.tick(jobID)
		})
		if err != nil {
			return core.NewBadInputError(fmt.Sprintf("scheduler: invalid spec %q for %s: %v", spec, jobID, err))
		}
		e.id = id
	}
	s.entries[jobID] = e
	return nil
}

// Task returns the task registered for jobID.
func (s *Scheduler) Task(jobID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[strings.TrimSpace(jobID)]
	if !ok {
		return nil, false
	}
	return e.task, true
}

func (s *Scheduler) JobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", strings.Join(s.JobIDs(), ","))
}

// Stop halts new ticks, cancels running inline tasks and waits for them up
// to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow performs one tick for jobID immediately.
func (s *Scheduler) RunNow(ctx context.Context, jobID string) error {
	task, ok := s.Task(jobID)
	if !ok {
		return fmt.Errorf("scheduler: job %q: %w", jobID, errUnknownJob)
	}
	if s.enqueuer != nil {
		return s.enqueue(ctx, jobID)
	}
	return s.run(ctx, jobID, task, nil)
}

func (s *Scheduler) tick(jobID string) {
	if err := s.RunNow(s.baseCtx, jobID); err != nil {
		s.logger.Error("scheduled job failed", "job_id", jobID, "error", err.Error())
	}
}

func (s *Scheduler) enqueue(ctx context.Context, jobID string) error {
	err := s.enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          jobID,
		ScriptPath:     jobID,
		Parameters:     map[string]any{"scheduled_at": time.Now().UTC().Format(time.RFC3339)},
		IdempotencyKey: jobID,
		DedupPolicy:    "drop",
	})
	if err != nil {
		return fmt.Errorf("scheduler: enqueue %s: %w", jobID, err)
	}
	s.logger.Debug("scheduled job enqueued", "job_id", jobID)
	return nil
}

func (s *Scheduler) run(ctx context.Context, jobID string, task Task, params map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()
	started := time.Now()
	err := task(ctx, params)
	duration := time.Since(started).Milliseconds()
	if err != nil {
		s.logger.Warn("scheduled job returned error", "job_id", jobID, "duration_ms", duration, "error", err.Error())
		return err
	}
	s.logger.Debug("scheduled job completed", "job_id", jobID, "duration_ms", duration)
	return nil
}

// cronLogger routes robfig/cron diagnostics through glog.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	glog.Ensure(l.logger).Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{"error", fmt.Sprint(err)}, keysAndValues...)
	glog.Ensure(l.logger).Error("cron: "+msg, args...)
}

var _ cron.Logger = cronLogger{}
