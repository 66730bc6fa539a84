// Package postgres stores jobs in a PostgreSQL table shaped as:
//
//	CREATE TABLE jobs (
//	    id           TEXT PRIMARY KEY,
//	    company      TEXT NOT NULL,
//	    position     TEXT NOT NULL,
//	    status       TEXT NOT NULL DEFAULT 'pending',
//	    job_type     TEXT NOT NULL DEFAULT '',
//	    job_location TEXT NOT NULL DEFAULT '',
//	    created_by   TEXT NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    updated_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX jobs_created_by_idx ON jobs (created_by, status);
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"jobtracker/internal/domain/entity"
	"jobtracker/internal/domain/repository"
	"jobtracker/internal/infrastructure/metrics"
)

const storeName = "postgres"

const jobColumns = `id, company, position, status, job_type, job_location, created_by, created_at, updated_at`

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) repository.JobRepository {
	return &JobRepo{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*entity.Job, error) {
	var j entity.Job
	if err := row.Scan(&j.ID, &j.Company, &j.Position, &j.Status, &j.JobType, &j.JobLocation,
		&j.CreatedBy, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobRepo) Insert(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	metrics.IncStoreOp(storeName, "insert")

	doc := *job
	doc.ID = uuid.NewString()
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.Company, doc.Position, doc.Status, doc.JobType, doc.JobLocation,
		doc.CreatedBy, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		metrics.IncError("postgres_job_repo", "insert_error")
		return nil, err
	}
	return &doc, nil
}

func (r *JobRepo) FindByID(ctx context.Context, id string) (*entity.Job, error) {
	metrics.IncStoreOp(storeName, "get")

	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		metrics.IncError("postgres_job_repo", "get_error")
		return nil, err
	}
	return job, nil
}

func (r *JobRepo) FindByOwner(ctx context.Context, owner string) ([]*entity.Job, error) {
	metrics.IncStoreOp(storeName, "list")

	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE created_by = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		metrics.IncError("postgres_job_repo", "list_error")
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("close rows err: %s", err)
		}
	}()

	jobs := []*entity.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			metrics.IncError("postgres_job_repo", "list_scan_error")
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateByID relies on a single UPDATE ... RETURNING; absent input fields
// arrive as NULL and keep the stored value.
func (r *JobRepo) UpdateByID(ctx context.Context, id string, in entity.JobInput) (*entity.Job, error) {
	metrics.IncStoreOp(storeName, "update")

	if err := in.ValidatePatch(); err != nil {
		return nil, err
	}
	var status *string
	if in.Status != nil {
		s := string(*in.Status)
		status = &s
	}
	row := r.db.QueryRowContext(ctx, `UPDATE jobs SET
			company = COALESCE($1, company),
			position = COALESCE($2, position),
			status = COALESCE($3, status),
			job_type = COALESCE($4, job_type),
			job_location = COALESCE($5, job_location),
			updated_at = $6
		WHERE id = $7
		RETURNING `+jobColumns,
		in.Company, in.Position, status, in.JobType, in.JobLocation, time.Now().UTC(), id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		metrics.IncError("postgres_job_repo", "update_error")
		return nil, err
	}
	return job, nil
}

func (r *JobRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	metrics.IncStoreOp(storeName, "delete")

	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		metrics.IncError("postgres_job_repo", "delete_error")
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *JobRepo) CountByOwnerGroupedByStatus(ctx context.Context, owner string) (map[entity.JobStatus]int, error) {
	metrics.IncStoreOp(storeName, "count")

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs WHERE created_by = $1 GROUP BY status`, owner)
	if err != nil {
		metrics.IncError("postgres_job_repo", "count_error")
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("close rows err: %s", err)
		}
	}()

	counts := make(map[entity.JobStatus]int)
	for rows.Next() {
		var status entity.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *JobRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
