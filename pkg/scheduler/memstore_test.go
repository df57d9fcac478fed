package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

type pointKey struct {
	group int
	point int
}

type memStore struct {
	mu      sync.Mutex
	jobs    map[string]types.Job
	actions map[int64]types.ActionDefinition
	points  map[pointKey]types.Point
	getErrs []error
}

var _ JobStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		jobs:    make(map[string]types.Job),
		actions: make(map[int64]types.ActionDefinition),
		points:  make(map[pointKey]types.Point),
	}
}

func (m *memStore) addAction(a types.ActionDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[a.ID] = a
}

func (m *memStore) addPoint(p types.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[pointKey{p.GroupNumber, p.PointNumber}] = p
}

func (m *memStore) point(group, point int) types.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.points[pointKey{group, point}]
}

func (m *memStore) job(id string) types.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

func (m *memStore) CreateJob(_ context.Context, job *types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("duplicate job %s", job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

// failNextGets makes the following GetJob calls return errs in order.
func (m *memStore) failNextGets(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErrs = append(m.getErrs, errs...)
}

func (m *memStore) GetJob(_ context.Context, id string) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.getErrs) > 0 {
		err := m.getErrs[0]
		m.getErrs = m.getErrs[1:]
		return nil, err
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &job, nil
}

func (m *memStore) SaveJob(_ context.Context, job *types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.jobs[job.ID]
	if !ok {
		return types.ErrNotFound
	}
	if current.Status.IsTerminal() {
		return fmt.Errorf("job %s already %s", job.ID, current.Status)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *memStore) ListJobs(_ context.Context, filter types.JobFilter) ([]*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Job
	for _, job := range m.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && job.Kind != filter.Kind {
			continue
		}
		j := job
		out = append(out, &j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) GetAction(_ context.Context, id int64) (*types.ActionDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) GetPoint(_ context.Context, group, point int) (*types.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[pointKey{group, point}]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) UpdatePointValues(_ context.Context, group int, rows []types.ParsedPoint, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated := 0
	for _, row := range rows {
		if !row.IsParsed() {
			continue
		}
		key := pointKey{group, *row.PointNumber}
		p, ok := m.points[key]
		if !ok {
			continue
		}
		p.LastValue = row.Value
		p.LastUpdatedAt = &at
		m.points[key] = p
		updated++
	}
	return updated, nil
}
