package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/extractor"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

func (s *Scheduler) prepareAction(ctx context.Context, job *types.Job) (Run, error) {
	if job.ActionID == nil {
		return nil, fmt.Errorf("%w: job has no action", types.ErrConfiguration)
	}

	action, err := s.store.GetAction(ctx, *job.ActionID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("%w: action %d does not exist", types.ErrConfiguration, *job.ActionID)
	}
	if err != nil {
		return nil, err
	}
	if !action.IsEnabled {
		return nil, fmt.Errorf("%w: action %q is disabled", types.ErrConfiguration, action.Slug)
	}

	job.RawRequestPayload = action.InputSequence
	timeout := action.EffectiveTimeout(s.defaultTimeout)

	return func(ctx context.Context) (*Outcome, error) {
		capture, err := s.device.ExecuteSequence(ctx, action.InputSequence, timeout)
		outcome := &Outcome{}
		if capture != nil {
			outcome.RawResponse = capture.Screen
		}
		if err != nil {
			return outcome, err
		}

		parsed, err := extractor.Extract(capture.Screen, action.ResultRegex)
		if err != nil {
			return outcome, err
		}
		outcome.ParsedResult = parsed
		return outcome, nil
	}, nil
}

type readGroupResult struct {
	GroupNumber   int                 `json:"group_number"`
	Points        []types.ParsedPoint `json:"points"`
	UpdatedPoints int                 `json:"updated_points"`
}

func (s *Scheduler) prepareReadGroup(_ context.Context, job *types.Job) (Run, error) {
	group := job.Payload.GroupNumber
	if group < 1 {
		return nil, fmt.Errorf("%w: invalid group number %d", types.ErrConfiguration, group)
	}
	job.RawRequestPayload = fmt.Sprintf("read group %d", group)

	return func(ctx context.Context) (*Outcome, error) {
		read, err := s.device.ReadGroup(ctx, group)
		if err != nil {
			return nil, err
		}

		updated, err := s.store.UpdatePointValues(ctx, group, read.Points, time.Now().UTC())
		if err != nil {
			return &Outcome{RawResponse: read.RawScreen}, fmt.Errorf("failed to store point values: %w", err)
		}

		result, err := json.Marshal(readGroupResult{
			GroupNumber:   group,
			Points:        read.Points,
			UpdatedPoints: updated,
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{
			RawResponse:  read.RawScreen,
			ParsedResult: fmt.Sprintf("%d points", len(extractor.ParsedRows(read.Points))),
			Result:       result,
		}, nil
	}, nil
}

type commandResult struct {
	GroupNumber int    `json:"group_number"`
	PointNumber int    `json:"point_number"`
	CommandType string `json:"command_type"`
	OldValue    string `json:"old_value"`
	NewValue    string `json:"new_value"`
}

func (s *Scheduler) prepareCommandPoint(ctx context.Context, job *types.Job) (Run, error) {
	p := job.Payload
	switch {
	case p.GroupNumber < 1:
		return nil, fmt.Errorf("%w: invalid group number %d", types.ErrConfiguration, p.GroupNumber)
	case p.PointNumber < 1:
		return nil, fmt.Errorf("%w: invalid point number %d", types.ErrConfiguration, p.PointNumber)
	case p.CommandType == "" || p.CommandValue == "":
		return nil, fmt.Errorf("%w: command type and value are required", types.ErrConfiguration)
	}

	oldValue := ""
	point, err := s.store.GetPoint(ctx, p.GroupNumber, p.PointNumber)
	switch {
	case errors.Is(err, types.ErrNotFound):
	case err != nil:
		return nil, err
	case point == nil:
	case point.ReadOnly:
		return nil, fmt.Errorf("%w: point %d/%d is read-only", types.ErrConfiguration, p.GroupNumber, p.PointNumber)
	default:
		oldValue = point.LastValue
	}
	job.RawRequestPayload = fmt.Sprintf("command %d/%d %s=%s", p.GroupNumber, p.PointNumber, p.CommandType, p.CommandValue)

	return func(ctx context.Context) (*Outcome, error) {
		res, err := s.device.SelectAndCommand(ctx, p.GroupNumber, p.PointNumber, p.CommandType, p.CommandValue)
		if err != nil {
			return nil, err
		}

		s.logger.Info("command executed", "event", "command_executed", "job_id", job.ID,
			"requested_by", job.RequestedBy, "group", p.GroupNumber, "point", p.PointNumber,
			"old_value", oldValue, "new_value", p.CommandValue)

		result, err := json.Marshal(commandResult{
			GroupNumber: p.GroupNumber,
			PointNumber: p.PointNumber,
			CommandType: p.CommandType,
			OldValue:    oldValue,
			NewValue:    p.CommandValue,
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{
			RawResponse:  res.RawScreen,
			ParsedResult: p.CommandValue,
			Result:       result,
		}, nil
	}, nil
}
