package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobtracker/internal/domain/entity"
	"jobtracker/internal/domain/repository"
	"jobtracker/internal/infrastructure/metrics"
)

const storeName = "memory"

var _ repository.JobRepository = (*JobRepo)(nil)

// JobRepo is an in-memory job store. Safe for concurrent access.
// Intended for unit testing and development.
type JobRepo struct {
	mu   sync.RWMutex
	jobs map[string]*entity.Job
	now  func() time.Time
}

func NewJobRepo() *JobRepo {
	return &JobRepo{
		jobs: make(map[string]*entity.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *JobRepo) Insert(_ context.Context, job *entity.Job) (*entity.Job, error) {
	metrics.IncStoreOp(storeName, "insert")

	cp := *job
	cp.ID = uuid.NewString()
	cp.CreatedAt = m.now()
	cp.UpdatedAt = cp.CreatedAt
	if err := cp.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *JobRepo) FindByID(_ context.Context, id string) (*entity.Job, error) {
	metrics.IncStoreOp(storeName, "get")

	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

// FindByOwner returns the owner's jobs, newest first.
func (m *JobRepo) FindByOwner(_ context.Context, owner string) ([]*entity.Job, error) {
	metrics.IncStoreOp(storeName, "list")

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*entity.Job, 0)
	for _, j := range m.jobs {
		if j.CreatedBy != owner {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	return result, nil
}

// UpdateByID applies the input under the write lock and validates the merged
// record before storing it.
func (m *JobRepo) UpdateByID(_ context.Context, id string, in entity.JobInput) (*entity.Job, error) {
	metrics.IncStoreOp(storeName, "update")

	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	cp.Apply(in)
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	cp.UpdatedAt = m.now()
	m.jobs[id] = &cp
	out := cp
	return &out, nil
}

func (m *JobRepo) DeleteByID(_ context.Context, id string) (bool, error) {
	metrics.IncStoreOp(storeName, "delete")

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return false, nil
	}
	delete(m.jobs, id)
	return true, nil
}

func (m *JobRepo) CountByOwnerGroupedByStatus(_ context.Context, owner string) (map[entity.JobStatus]int, error) {
	metrics.IncStoreOp(storeName, "count")

	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[entity.JobStatus]int)
	for _, j := range m.jobs {
		if j.CreatedBy == owner {
			counts[j.Status]++
		}
	}
	return counts, nil
}

// Ping always succeeds for the memory store.
func (m *JobRepo) Ping(_ context.Context) error { return nil }
