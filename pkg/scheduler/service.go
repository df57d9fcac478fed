package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/config"
	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

const orphanScanLimit = 100

// Scheduler runs jobs strictly one at a time in arrival order. Producers
// call Submit or Enqueue from any goroutine; a single Run loop owns the
// device.
type Scheduler struct {
	store          JobStore
	device         Device
	logger         logger.Logger
	recorder       Recorder
	defaultTimeout time.Duration

	queue    chan string
	handlers map[types.JobKind]Handler
	running  atomic.Bool

	subs   *xsync.MapOf[uint64, *Subscription]
	nextID atomic.Uint64
}

type Option func(*Scheduler)

func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.logger = log
		}
	}
}

func WithRecorder(rec Recorder) Option {
	return func(s *Scheduler) {
		if rec != nil {
			s.recorder = rec
		}
	}
}

func NewScheduler(store JobStore, device Device, cfg config.JobsConfig, opts ...Option) *Scheduler {
	capacity := cfg.QueueCapacity
	if capacity < 1 {
		capacity = 1
	}

	s := &Scheduler{
		store:          store,
		device:         device,
		logger:         logger.GetLogger(),
		recorder:       nopRecorder{},
		defaultTimeout: cfg.DefaultTimeout(),
		queue:          make(chan string, capacity),
		handlers:       make(map[types.JobKind]Handler),
		subs:           xsync.NewMapOf[uint64, *Subscription](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")

	s.RegisterHandler(types.JobAction, s.prepareAction)
	s.RegisterHandler(types.JobReadGroup, s.prepareReadGroup)
	s.RegisterHandler(types.JobCommandPoint, s.prepareCommandPoint)
	return s
}

// RegisterHandler binds a handler to a job kind. Call before Run.
func (s *Scheduler) RegisterHandler(kind types.JobKind, handler Handler) {
	if kind == "" || handler == nil {
		return
	}
	s.handlers[kind] = handler
}

// Submit records a new queued job and enqueues it. When the queue is full
// the record is marked failed and ErrQueueFull is returned with it.
func (s *Scheduler) Submit(ctx context.Context, req types.NewJob) (*types.Job, error) {
	if _, ok := s.handlers[req.Kind]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}

	job := &types.Job{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		ActionID:    req.ActionID,
		RequestedBy: req.RequestedBy,
		Payload:     req.Payload,
		Status:      types.JobQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.publish(job)

	if err := s.enqueue(job.ID, job.Kind); err != nil {
		now := time.Now().UTC()
		job.Status = types.JobFailed
		job.ErrorMessage = err.Error()
		job.FinishedAt = &now
		if saveErr := s.store.SaveJob(context.WithoutCancel(ctx), job); saveErr != nil {
			s.logger.Error("failed to record rejected job", "job_id", job.ID, "error", saveErr)
		}
		s.publish(job)
		return job, err
	}

	s.logger.Info("job queued", "event", "job_queued", "job_id", job.ID, "kind", job.Kind, "requested_by", job.RequestedBy)
	return job, nil
}

// Enqueue hands an existing queued job to the worker. It never blocks.
func (s *Scheduler) Enqueue(jobID string) error {
	return s.enqueue(jobID, "")
}

func (s *Scheduler) enqueue(jobID string, kind types.JobKind) error {
	select {
	case s.queue <- jobID:
		s.recorder.JobEnqueued(kind)
		s.recorder.QueueDepth(len(s.queue))
		return nil
	default:
		s.recorder.JobRejected(kind)
		s.logger.Warn("job queue full, rejecting job", "job_id", jobID, "capacity", cap(s.queue))
		return ErrQueueFull
	}
}

// Status returns the producer facing view of a job.
func (s *Scheduler) Status(ctx context.Context, jobID string) (types.StatusView, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return types.StatusView{}, err
	}
	return job.View(), nil
}

// QueueDepth is the number of jobs waiting for the worker.
func (s *Scheduler) QueueDepth() int {
	return len(s.queue)
}

// Subscribe returns a subscription receiving every job state change.
func (s *Scheduler) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 16
	}
	id := s.nextID.Add(1)
	sub := &Subscription{
		ch:   make(chan types.Job, buffer),
		done: make(chan struct{}),
	}
	sub.stop = func() { s.subs.Delete(id) }
	s.subs.Store(id, sub)
	return sub
}

func (s *Scheduler) publish(job *types.Job) {
	snapshot := *job
	s.subs.Range(func(id uint64, sub *Subscription) bool {
		select {
		case <-sub.done:
		case sub.ch <- snapshot:
		default:
			s.logger.Debug("subscriber behind, dropping job update", "subscriber", id, "job_id", job.ID)
		}
		return true
	})
}

// Run is the single worker loop. It returns when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.logger.Info("worker started", "event", "worker_start", "queue_capacity", cap(s.queue))
	s.reportOrphans(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("worker stopped", "pending", len(s.queue))
			return ctx.Err()
		case id := <-s.queue:
			s.recorder.QueueDepth(len(s.queue))
			s.process(ctx, id)
		}
	}
}

// reportOrphans logs jobs left running by a previous process. They are not
// requeued; the queue does not survive restarts.
func (s *Scheduler) reportOrphans(ctx context.Context) {
	orphans, err := s.store.ListJobs(ctx, types.JobFilter{Status: types.JobRunning, Limit: orphanScanLimit})
	if err != nil {
		s.logger.Error("failed to scan for orphaned jobs", "error", err)
		return
	}
	for _, job := range orphans {
		s.logger.Warn("job left running by previous process", "event", "job_orphaned", "job_id", job.ID, "kind", job.Kind)
	}
}

func (s *Scheduler) process(ctx context.Context, jobID string) {
	var job *types.Job
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic while processing job", "job_id", jobID, "panic", rec, "stack", string(debug.Stack()))
			if job != nil && !job.Status.IsTerminal() {
				s.finish(ctx, job, nil, fmt.Errorf("internal error: %v", rec), start)
			}
		}
	}()

	loaded, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		s.logger.Error("failed to load queued job", "job_id", jobID, "error", err)
		s.failUnloaded(ctx, jobID, err, start)
		return
	}
	job = loaded
	if job.Status != types.JobQueued {
		s.logger.Warn("skipping job that is not queued", "job_id", job.ID, "status", job.Status)
		return
	}

	log := s.logger.With("job_id", job.ID, "kind", job.Kind)
	log.Info("job claimed", "event", "job_claimed", "requested_by", job.RequestedBy)

	handler, ok := s.handlers[job.Kind]
	if !ok {
		s.finish(ctx, job, nil, fmt.Errorf("%w: %w %q", types.ErrConfiguration, ErrUnknownKind, job.Kind), start)
		return
	}
	run, err := handler(ctx, job)
	if err != nil {
		s.finish(ctx, job, nil, err, start)
		return
	}

	startedAt := time.Now().UTC()
	job.Status = types.JobRunning
	job.StartedAt = &startedAt
	if err := s.store.SaveJob(ctx, job); err != nil {
		s.finish(ctx, job, nil, fmt.Errorf("failed to mark job running: %w", err), start)
		return
	}
	s.recorder.JobStarted(job.Kind)
	s.publish(job)

	outcome, err := run(ctx)
	s.finish(ctx, job, outcome, err, start)
}

// failUnloaded marks a job failed after its record could not be read, so it
// does not stay queued with nothing left to dequeue it.
func (s *Scheduler) failUnloaded(ctx context.Context, jobID string, loadErr error, start time.Time) {
	job, err := s.store.GetJob(context.WithoutCancel(ctx), jobID)
	if err != nil {
		s.logger.Error("job left queued, record unreadable", "job_id", jobID, "error", err)
		return
	}
	if job.Status != types.JobQueued {
		return
	}
	s.finish(ctx, job, nil, fmt.Errorf("failed to load job: %w", loadErr), start)
}

// finish moves job to its terminal status and persists it before the
// worker takes the next job.
func (s *Scheduler) finish(ctx context.Context, job *types.Job, outcome *Outcome, runErr error, start time.Time) {
	status := types.KindOf(runErr).TerminalStatus()
	if !job.Status.CanTransitionTo(status) {
		s.logger.Error("refusing invalid job transition", "job_id", job.ID, "from", job.Status, "to", status)
		return
	}

	finishedAt := time.Now().UTC()
	job.Status = status
	job.FinishedAt = &finishedAt
	if outcome != nil {
		job.RawResponse = outcome.RawResponse
		job.ParsedResult = outcome.ParsedResult
		job.Result = outcome.Result
	}
	if runErr != nil {
		job.ErrorMessage = runErr.Error()
	}

	if err := s.store.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error("failed to persist finished job", "job_id", job.ID, "status", status, "error", err)
	}

	elapsed := time.Since(start)
	s.recorder.JobFinished(job.Kind, status, elapsed)
	s.publish(job)

	event := "job_" + string(status)
	if runErr != nil {
		s.logger.Warn("job finished", "event", event, "job_id", job.ID, "kind", job.Kind,
			"error_kind", types.KindOf(runErr).String(), "error", runErr, "elapsed", elapsed)
		return
	}
	s.logger.Info("job finished", "event", event, "job_id", job.ID, "kind", job.Kind, "elapsed", elapsed)
}
