package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"jobtracker/internal/domain/entity"
	"jobtracker/internal/domain/repository"
	"jobtracker/internal/infrastructure/metrics"
)

type JobUsecase interface {
	CreateJob(ctx context.Context, actor string, in entity.JobInput) (*entity.Job, error)
	ListJobs(ctx context.Context, actor string) (*JobList, error)
	GetJob(ctx context.Context, actor, jobID string) (*entity.Job, error)
	UpdateJob(ctx context.Context, actor, jobID string, in entity.JobInput) (*entity.Job, error)
	DeleteJob(ctx context.Context, actor, jobID string) error
	ShowStats(ctx context.Context, actor string) (*JobStats, error)
}

var _ JobUsecase = (*JobService)(nil)

// JobList is always a single page.
type JobList struct {
	Jobs       []*entity.Job `json:"jobs"`
	TotalJobs  int           `json:"totalJobs"`
	NumOfPages int           `json:"numOfPages"`
}

type JobStats struct {
	DefaultStats        entity.StatusCounts         `json:"defaultStats"`
	MonthlyApplications []entity.MonthlyApplication `json:"monthlyApplications"`
}

type JobService struct {
	jobsRepo repository.JobRepository
	logger   *slog.Logger
}

func NewJobService(jr repository.JobRepository, logger *slog.Logger) *JobService {
	return &JobService{
		jobsRepo: jr,
		logger:   logger,
	}
}

func (u *JobService) CreateJob(ctx context.Context, actor string, in entity.JobInput) (*entity.Job, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	job, err := u.jobsRepo.Insert(ctx, entity.NewJob(actor, in.Normalized()))
	if err != nil {
		return nil, u.storeError("create job", err)
	}
	metrics.IncJobsCreated()
	u.logger.Debug("job created", "job_id", job.ID)
	return job, nil
}

func (u *JobService) ListJobs(ctx context.Context, actor string) (*JobList, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	jobs, err := u.jobsRepo.FindByOwner(ctx, actor)
	if err != nil {
		return nil, u.storeError("list jobs", err)
	}
	if jobs == nil {
		jobs = []*entity.Job{}
	}
	return &JobList{
		Jobs:       jobs,
		TotalJobs:  len(jobs),
		NumOfPages: 1,
	}, nil
}

func (u *JobService) GetJob(ctx context.Context, actor, jobID string) (*entity.Job, error) {
	return u.ownedJob(ctx, actor, jobID, "get")
}

func (u *JobService) UpdateJob(ctx context.Context, actor, jobID string, in entity.JobInput) (*entity.Job, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in = in.Normalized()

	job, err := u.ownedJob(ctx, actor, jobID, "update")
	if err != nil {
		return nil, err
	}

	merged := *job
	merged.Apply(in)
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	updated, err := u.jobsRepo.UpdateByID(ctx, jobID, in)
	if err != nil {
		var vErr *entity.ValidationError
		if errors.As(err, &vErr) {
			return nil, err
		}
		return nil, u.storeError("update job", err)
	}
	if updated == nil {
		return nil, entity.NotFoundError(jobID)
	}
	metrics.IncJobsUpdated()
	return updated, nil
}

func (u *JobService) DeleteJob(ctx context.Context, actor, jobID string) error {
	if _, err := u.ownedJob(ctx, actor, jobID, "delete"); err != nil {
		return err
	}

	removed, err := u.jobsRepo.DeleteByID(ctx, jobID)
	if err != nil {
		return u.storeError("delete job", err)
	}
	if !removed {
		return entity.NotFoundError(jobID)
	}
	metrics.IncJobsDeleted()
	return nil
}

func (u *JobService) ShowStats(ctx context.Context, actor string) (*JobStats, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	counts, err := u.jobsRepo.CountByOwnerGroupedByStatus(ctx, actor)
	if err != nil {
		return nil, u.storeError("count jobs", err)
	}
	return &JobStats{
		DefaultStats:        ReindexStatusCounts(counts),
		MonthlyApplications: []entity.MonthlyApplication{},
	}, nil
}

// requireActor rejects calls without an acting identity. Records created
// without an owner could never pass the ownership check afterwards.
func requireActor(actor string) error {
	if actor == "" {
		return entity.ErrForbidden
	}
	return nil
}

// ownedJob loads a job and enforces that actor owns it.
func (u *JobService) ownedJob(ctx context.Context, actor, jobID, op string) (*entity.Job, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	job, err := u.jobsRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, u.storeError("find job", err)
	}
	if job == nil {
		return nil, entity.NotFoundError(jobID)
	}
	if err := entity.CheckPermission(actor, job.CreatedBy); err != nil {
		metrics.IncForbidden(op)
		u.logger.Warn("job access denied", "job_id", jobID, "op", op)
		return nil, err
	}
	return job, nil
}

func (u *JobService) storeError(op string, err error) error {
	metrics.IncError("job_service", op)
	u.logger.Error(op+" failed", "err", err)
	return fmt.Errorf("%s: %w: %w", op, entity.ErrStoreUnavailable, err)
}
