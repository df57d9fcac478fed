package jobdb

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/types"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "bridge.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func catalog() []types.ActionDefinition {
	return []types.ActionDefinition{
		{Name: "Outdoor Air", Slug: "oat", InputSequence: "O\r", ResultRegex: `OAT: (\d+)`, TimeoutSeconds: 5, IsEnabled: true},
		{Name: "Alarm Count", Slug: "alarms", InputSequence: "A\r", ResultRegex: `(\d+) alarms`, IsEnabled: true},
	}
}

func TestSyncActions(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	store := openTestStore(t)

	n, err := store.SyncActions(ctx, catalog())
	r.NoError(err)
	r.Equal(2, n)

	oat, err := store.GetActionBySlug(ctx, "oat")
	r.NoError(err)
	r.Equal("Outdoor Air", oat.Name)
	r.Equal(5, oat.TimeoutSeconds)
	r.True(oat.IsEnabled)

	byID, err := store.GetAction(ctx, oat.ID)
	r.NoError(err)
	r.Equal(oat, byID)

	// dropping an action from the catalog disables it and keeps its id
	updated := catalog()[:1]
	updated[0].ResultRegex = `OAT:\s*(\d+)`
	_, err = store.SyncActions(ctx, updated)
	r.NoError(err)

	oatAgain, err := store.GetActionBySlug(ctx, "oat")
	r.NoError(err)
	r.Equal(oat.ID, oatAgain.ID)
	r.Equal(`OAT:\s*(\d+)`, oatAgain.ResultRegex)

	alarms, err := store.GetActionBySlug(ctx, "alarms")
	r.NoError(err)
	r.False(alarms.IsEnabled)

	all, err := store.ListActions(ctx)
	r.NoError(err)
	r.Len(all, 2)
	r.Equal("Alarm Count", all[0].Name)
}

func TestGetMissingRecords(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.GetAction(ctx, 99)
	r.ErrorIs(err, types.ErrNotFound)
	_, err = store.GetActionBySlug(ctx, "nope")
	r.ErrorIs(err, types.ErrNotFound)
	_, err = store.GetJob(ctx, "nope")
	r.ErrorIs(err, types.ErrNotFound)
	_, err = store.GetPoint(ctx, 1, 1)
	r.ErrorIs(err, types.ErrNotFound)
}

func TestJobLifecycle(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.SyncActions(ctx, catalog())
	r.NoError(err)
	oat, err := store.GetActionBySlug(ctx, "oat")
	r.NoError(err)

	created := time.Now().UTC().Truncate(time.Millisecond)
	job := &types.Job{
		ID:          "job-1",
		Kind:        types.JobAction,
		ActionID:    &oat.ID,
		RequestedBy: "operator",
		Payload:     types.JobPayload{GroupNumber: 3},
		Status:      types.JobQueued,
		CreatedAt:   created,
	}
	r.NoError(store.CreateJob(ctx, job))

	loaded, err := store.GetJob(ctx, "job-1")
	r.NoError(err)
	r.Equal(job, loaded)

	started := created.Add(time.Second)
	job.Status = types.JobRunning
	job.StartedAt = &started
	job.RawRequestPayload = "O\r"
	r.NoError(store.SaveJob(ctx, job))

	finished := started.Add(time.Second)
	job.Status = types.JobSucceeded
	job.FinishedAt = &finished
	job.RawResponse = "OAT: 54"
	job.ParsedResult = "54"
	job.Result = json.RawMessage(`{"value":"54"}`)
	r.NoError(store.SaveJob(ctx, job))

	loaded, err = store.GetJob(ctx, "job-1")
	r.NoError(err)
	r.Equal(types.JobSucceeded, loaded.Status)
	r.Equal("54", loaded.ParsedResult)
	r.Equal(started, *loaded.StartedAt)
	r.Equal(finished, *loaded.FinishedAt)
	r.JSONEq(`{"value":"54"}`, string(loaded.Result))

	job.Status = types.JobFailed
	r.ErrorIs(store.SaveJob(ctx, job), ErrJobFinalized)

	missing := &types.Job{ID: "ghost", Status: types.JobRunning}
	r.ErrorIs(store.SaveJob(ctx, missing), types.ErrNotFound)
}

func TestListJobs(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Millisecond)
	statuses := []types.JobStatus{types.JobQueued, types.JobRunning, types.JobFailed, types.JobRunning}
	for i, status := range statuses {
		r.NoError(store.CreateJob(ctx, &types.Job{
			ID:        string(rune('a' + i)),
			Kind:      types.JobReadGroup,
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := store.ListJobs(ctx, types.JobFilter{})
	r.NoError(err)
	r.Len(all, 4)
	r.Equal("d", all[0].ID)

	running, err := store.ListJobs(ctx, types.JobFilter{Status: types.JobRunning})
	r.NoError(err)
	r.Len(running, 2)
	r.Equal("d", running[0].ID)
	r.Equal("b", running[1].ID)

	limited, err := store.ListJobs(ctx, types.JobFilter{Limit: 1})
	r.NoError(err)
	r.Len(limited, 1)

	none, err := store.ListJobs(ctx, types.JobFilter{Kind: types.JobCommandPoint})
	r.NoError(err)
	r.Empty(none)
}

func TestPointValues(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	store := openTestStore(t)

	r.NoError(store.UpsertPoint(ctx, &types.Point{GroupNumber: 2, PointNumber: 1, Name: "Temp Supply"}))
	r.NoError(store.UpsertPoint(ctx, &types.Point{GroupNumber: 2, PointNumber: 2, Name: "Fan Status", ReadOnly: true}))

	one, two, nine := 1, 2, 9
	at := time.Now().UTC().Truncate(time.Millisecond)
	updated, err := store.UpdatePointValues(ctx, 2, []types.ParsedPoint{
		{RawLine: "For Group Number: 2"},
		{PointNumber: &one, Name: "Temp Supply", Value: "72.4"},
		{PointNumber: &two, Name: "Fan Status", Value: "ON"},
		{PointNumber: &nine, Name: "Unknown", Value: "X"},
	}, at)
	r.NoError(err)
	r.Equal(2, updated)

	p, err := store.GetPoint(ctx, 2, 1)
	r.NoError(err)
	r.Equal("72.4", p.LastValue)
	r.Equal(at, *p.LastUpdatedAt)

	// re-registering keeps the cached value
	r.NoError(store.UpsertPoint(ctx, &types.Point{GroupNumber: 2, PointNumber: 1, Name: "Supply Temp"}))
	points, err := store.ListPoints(ctx, 2)
	r.NoError(err)
	r.Len(points, 2)
	r.Equal("Supply Temp", points[0].Name)
	r.Equal("72.4", points[0].LastValue)
	r.True(points[1].ReadOnly)

	_, err = store.GetPoint(ctx, 2, 9)
	r.ErrorIs(err, types.ErrNotFound)
}
