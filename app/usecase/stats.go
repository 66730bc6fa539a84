package usecase

import "jobtracker/internal/domain/entity"

// ReindexStatusCounts turns the sparse grouped count returned by the store into
// the fixed three-status report. Statuses outside the known set are dropped.
func ReindexStatusCounts(counts map[entity.JobStatus]int) entity.StatusCounts {
	return entity.StatusCounts{
		Pending:   counts[entity.JobStatusPending],
		Interview: counts[entity.JobStatusInterview],
		Declined:  counts[entity.JobStatusDeclined],
	}
}
