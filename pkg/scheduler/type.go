package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/terminal"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

var (
	ErrQueueFull      = errors.New("job queue is full")
	ErrAlreadyRunning = errors.New("scheduler worker already running")
	ErrUnknownKind    = errors.New("unknown job kind")
)

// JobStore is the persistence the scheduler reads configuration from and
// records outcomes to.
type JobStore interface {
	CreateJob(ctx context.Context, job *types.Job) error
	GetJob(ctx context.Context, id string) (*types.Job, error)
	SaveJob(ctx context.Context, job *types.Job) error
	ListJobs(ctx context.Context, filter types.JobFilter) ([]*types.Job, error)
	GetAction(ctx context.Context, id int64) (*types.ActionDefinition, error)
	GetPoint(ctx context.Context, group, point int) (*types.Point, error)
	UpdatePointValues(ctx context.Context, group int, rows []types.ParsedPoint, at time.Time) (int, error)
}

// Device is the panel as seen by job handlers.
type Device interface {
	ExecuteSequence(ctx context.Context, input string, timeout time.Duration) (*terminal.Capture, error)
	ReadGroup(ctx context.Context, group int) (*terminal.GroupRead, error)
	SelectAndCommand(ctx context.Context, group, point int, commandType, commandValue string) (*terminal.CommandResult, error)
}

// Recorder receives job metrics.
type Recorder interface {
	JobEnqueued(kind types.JobKind)
	JobRejected(kind types.JobKind)
	JobStarted(kind types.JobKind)
	JobFinished(kind types.JobKind, status types.JobStatus, elapsed time.Duration)
	QueueDepth(depth int)
}

// Handler validates a claimed job without touching the device and returns
// the step that does. A Handler error fails the job while still queued.
type Handler func(ctx context.Context, job *types.Job) (Run, error)

// Run performs the device work of a job.
type Run func(ctx context.Context) (*Outcome, error)

// Outcome is copied onto the job record when it finishes.
type Outcome struct {
	RawResponse  string
	ParsedResult string
	Result       json.RawMessage
}

// Subscription delivers job updates until closed. Updates are dropped for a
// subscriber that falls behind.
type Subscription struct {
	ch   chan types.Job
	done chan struct{}
	once sync.Once
	stop func()
}

func (s *Subscription) C() <-chan types.Job {
	return s.ch
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.stop()
	})
}

type nopRecorder struct{}

func (nopRecorder) JobEnqueued(types.JobKind) {}
func (nopRecorder) JobRejected(types.JobKind) {}
func (nopRecorder) JobStarted(types.JobKind) {}
func (nopRecorder) JobFinished(types.JobKind, types.JobStatus, time.Duration) {}
func (nopRecorder) QueueDepth(int) {}
