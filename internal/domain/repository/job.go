package repository

import (
	"context"

	"jobtracker/internal/domain/entity"
)

// JobRepository is the persistence boundary for job applications.
// Lookups report an absent record as (nil, nil) rather than an error.
type JobRepository interface {
	// Insert assigns ID and timestamps and persists the job.
	Insert(ctx context.Context, job *entity.Job) (*entity.Job, error)
	FindByID(ctx context.Context, id string) (*entity.Job, error)
	FindByOwner(ctx context.Context, owner string) ([]*entity.Job, error)
	// UpdateByID atomically applies the present fields and returns the
	// updated document, or nil if no record has that id. Invalid fields are
	// rejected with *entity.ValidationError before anything is written.
	UpdateByID(ctx context.Context, id string, in entity.JobInput) (*entity.Job, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	// CountByOwnerGroupedByStatus is sparse: statuses without records are absent.
	CountByOwnerGroupedByStatus(ctx context.Context, owner string) (map[entity.JobStatus]int, error)
	Ping(ctx context.Context) error
}
