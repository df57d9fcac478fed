package types

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobTimeout   JobStatus = "timeout"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobTimeout
}

// IsValid reports whether s is one of the known statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobQueued, JobRunning, JobSucceeded, JobFailed, JobTimeout:
		return true
	}
	return false
}

// CanTransitionTo enforces queued -> running -> terminal.
// A queued job may also fail directly (configuration errors never reach the device).
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobQueued:
		return next == JobRunning || next == JobFailed
	case JobRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

type JobKind string

const (
	// JobAction runs an ActionDefinition's input sequence and extracts its result.
	JobAction JobKind = "action"
	// JobReadGroup reads a group summary screen and refreshes cached point values.
	JobReadGroup JobKind = "read_group"
	// JobCommandPoint selects a point on a group summary and commands it.
	JobCommandPoint JobKind = "command_point"
)

// JobPayload holds the kind specific request parameters.
type JobPayload struct {
	GroupNumber  int    `json:"group_number,omitempty"`
	PointNumber  int    `json:"point_number,omitempty"`
	CommandType  string `json:"command_type,omitempty"`
	CommandValue string `json:"command_value,omitempty"`
}

// Job is one execution request and its outcome.
type Job struct {
	ID                string          `json:"id"`
	Kind              JobKind         `json:"kind"`
	ActionID          *int64          `json:"action_id,omitempty"`
	RequestedBy       string          `json:"requested_by"`
	Payload           JobPayload      `json:"payload"`
	Status            JobStatus       `json:"status"`
	RawRequestPayload string          `json:"raw_request_payload,omitempty"`
	RawResponse       string          `json:"raw_response,omitempty"`
	ParsedResult      string          `json:"parsed_result,omitempty"`
	Result            json.RawMessage `json:"result,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	FinishedAt        *time.Time      `json:"finished_at,omitempty"`
}

// NewJob is what a producer supplies when submitting work.
type NewJob struct {
	Kind        JobKind
	ActionID    *int64
	RequestedBy string
	Payload     JobPayload
}

// StatusView is the read side returned to producers polling a job.
type StatusView struct {
	ID           string     `json:"id"`
	Status       JobStatus  `json:"status"`
	ParsedResult string     `json:"parsed_result,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func (j *Job) View() StatusView {
	return StatusView{
		ID:           j.ID,
		Status:       j.Status,
		ParsedResult: j.ParsedResult,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		FinishedAt:   j.FinishedAt,
	}
}

func (j *Job) ToJsonBytes() []byte {
	data, err := json.Marshal(j)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// JobFromJsonBytes decodes a job event. Returns nil on malformed input.
func JobFromJsonBytes(data []byte) *Job {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil
	}
	return &job
}

// JobFilter narrows a job listing. Zero values match everything.
type JobFilter struct {
	Status JobStatus
	Kind   JobKind
	Limit  int
}
