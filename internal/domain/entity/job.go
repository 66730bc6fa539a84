package entity

import (
	"strings"
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusInterview JobStatus = "interview"
	JobStatusDeclined  JobStatus = "declined"
)

// JobStatuses lists every known status in report order.
var JobStatuses = []JobStatus{JobStatusPending, JobStatusInterview, JobStatusDeclined}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusInterview, JobStatusDeclined:
		return true
	}
	return false
}

type Job struct {
	ID          string    `json:"id" bson:"id"`
	Company     string    `json:"company" bson:"company"`
	Position    string    `json:"position" bson:"position"`
	Status      JobStatus `json:"status" bson:"status"`
	JobType     string    `json:"jobType" bson:"jobType"`
	JobLocation string    `json:"jobLocation" bson:"jobLocation"`
	CreatedBy   string    `json:"createdBy" bson:"createdBy"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// NewJob builds an unsaved job owned by owner. The store assigns ID and timestamps.
func NewJob(owner string, in JobInput) *Job {
	job := &Job{
		Status:    JobStatusPending,
		CreatedBy: owner,
	}
	job.Apply(in)
	return job
}

// Apply copies every field present in the input onto the job.
// ID and CreatedBy are never touched.
func (j *Job) Apply(in JobInput) {
	if in.Company != nil {
		j.Company = strings.TrimSpace(*in.Company)
	}
	if in.Position != nil {
		j.Position = strings.TrimSpace(*in.Position)
	}
	if in.Status != nil {
		j.Status = *in.Status
	}
	if in.JobType != nil {
		j.JobType = *in.JobType
	}
	if in.JobLocation != nil {
		j.JobLocation = *in.JobLocation
	}
}

// Validate checks the persisted-record invariants.
func (j *Job) Validate() error {
	if j.Company == "" {
		return &ValidationError{Field: "company", Reason: "company is required"}
	}
	if j.Position == "" {
		return &ValidationError{Field: "position", Reason: "position is required"}
	}
	if !j.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "status must be one of pending, interview, declined"}
	}
	return nil
}

// JobInput is the create/update payload. A nil field is absent from the request.
type JobInput struct {
	Company     *string    `json:"company,omitempty"`
	Position    *string    `json:"position,omitempty"`
	Status      *JobStatus `json:"status,omitempty"`
	JobType     *string    `json:"jobType,omitempty"`
	JobLocation *string    `json:"jobLocation,omitempty"`
}

// Validate requires company and position and rejects unknown statuses.
func (in JobInput) Validate() error {
	if in.Company == nil || strings.TrimSpace(*in.Company) == "" ||
		in.Position == nil || strings.TrimSpace(*in.Position) == "" {
		return &ValidationError{Field: "company,position", Reason: "please provide all values"}
	}
	if in.Status != nil && !in.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "status must be one of pending, interview, declined"}
	}
	return nil
}

// ValidatePatch checks only the fields present in the input. Stores use it to
// re-validate a partial update before writing it.
func (in JobInput) ValidatePatch() error {
	if in.Company != nil && strings.TrimSpace(*in.Company) == "" {
		return &ValidationError{Field: "company", Reason: "company is required"}
	}
	if in.Position != nil && strings.TrimSpace(*in.Position) == "" {
		return &ValidationError{Field: "position", Reason: "position is required"}
	}
	if in.Status != nil && !in.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "status must be one of pending, interview, declined"}
	}
	return nil
}

// Normalized returns a copy with company and position trimmed, so stores
// persist exactly what Validate accepted.
func (in JobInput) Normalized() JobInput {
	out := in
	if in.Company != nil {
		c := strings.TrimSpace(*in.Company)
		out.Company = &c
	}
	if in.Position != nil {
		p := strings.TrimSpace(*in.Position)
		out.Position = &p
	}
	return out
}

type StatusCounts struct {
	Pending   int `json:"pending"`
	Interview int `json:"interview"`
	Declined  int `json:"declined"`
}

func (c StatusCounts) Total() int {
	return c.Pending + c.Interview + c.Declined
}

// MonthlyApplication is one bucket of the monthly breakdown. The breakdown is
// not computed yet and is always reported empty.
type MonthlyApplication struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
