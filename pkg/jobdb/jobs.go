package jobdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

const (
	jobColumns = "id, kind, action_id, requested_by, payload, status, raw_request_payload, " +
		"raw_response, parsed_result, result, error_message, created_at, started_at, finished_at"

	defaultJobListLimit = 100
)

func (s *Store) CreateJob(ctx context.Context, job *types.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO jobs ("+jobColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		job.ID,
		job.Kind,
		nullInt64(job.ActionID),
		job.RequestedBy,
		string(payload),
		job.Status,
		job.RawRequestPayload,
		job.RawResponse,
		job.ParsedResult,
		nullJSON(job.Result),
		job.ErrorMessage,
		toMillis(job.CreatedAt),
		nullMillis(job.StartedAt),
		nullMillis(job.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

// SaveJob writes the mutable fields of job. A job that already reached a
// terminal status is never overwritten.
func (s *Store) SaveJob(ctx context.Context, job *types.Job) error {
	if !job.Status.IsValid() {
		return fmt.Errorf("invalid job status %q", job.Status)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, raw_request_payload = ?, raw_response = ?, parsed_result = ?, "+
			"result = ?, error_message = ?, started_at = ?, finished_at = ? "+
			"WHERE id = ? AND status IN (?, ?)",
		job.Status,
		job.RawRequestPayload,
		job.RawResponse,
		job.ParsedResult,
		nullJSON(job.Result),
		job.ErrorMessage,
		nullMillis(job.StartedAt),
		nullMillis(job.FinishedAt),
		job.ID,
		types.JobQueued,
		types.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := s.GetJob(ctx, job.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrJobFinalized, job.ID)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	return notFound(scanJob(row))
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, filter types.JobFilter) ([]*types.Job, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}

	query := "SELECT " + jobColumns + " FROM jobs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*types.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row scanner) (*types.Job, error) {
	var (
		job        types.Job
		actionID   sql.NullInt64
		payload    string
		result     sql.NullString
		createdAt  int64
		startedAt  sql.NullInt64
		finishedAt sql.NullInt64
	)
	err := row.Scan(
		&job.ID,
		&job.Kind,
		&actionID,
		&job.RequestedBy,
		&payload,
		&job.Status,
		&job.RawRequestPayload,
		&job.RawResponse,
		&job.ParsedResult,
		&result,
		&job.ErrorMessage,
		&createdAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if actionID.Valid {
		id := actionID.Int64
		job.ActionID = &id
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
			return nil, fmt.Errorf("corrupt payload for job %s: %w", job.ID, err)
		}
	}
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	job.CreatedAt = fromMillis(createdAt)
	job.StartedAt = timePtr(startedAt)
	job.FinishedAt = timePtr(finishedAt)
	return &job, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullJSON(v json.RawMessage) sql.NullString {
	if len(v) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(v), Valid: true}
}
