// Package queue is the persistent job queue that drives conversion
// delivery. Jobs hold a provider name and an opaque JSON payload; the
// scheduler re-drives pending jobs with exponential backoff until a
// provider's Process returns true or the retry allowance is spent.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job is one queued delivery.
type Job struct {
	ID            string
	Provider      string
	Payload       json.RawMessage
	Status        string
	Attempts      int
	MaxAttempts   int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// Schema is the DDL for the job table, applied by cmd/migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS report_jobs (
	id UUID PRIMARY KEY,
	provider TEXT NOT NULL,
	payload JSONB NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INT NOT NULL DEFAULT 0,
	max_attempts INT NOT NULL DEFAULT 5,
	last_error TEXT NOT NULL DEFAULT '',
	next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_report_jobs_due
	ON report_jobs (status, next_attempt_at);
`

// Store persists jobs in Postgres.
type Store struct {
	db          *sql.DB
	maxAttempts int
}

// NewStore creates a job store. maxAttempts bounds retries per job.
func NewStore(db *sql.DB, maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Store{db: db, maxAttempts: maxAttempts}
}

// Insert persists one job body verbatim and returns its id.
func (s *Store) Insert(ctx context.Context, provider string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO report_jobs (id, provider, payload, status, max_attempts)
		VALUES ($1, $2, $3, 'pending', $4)`,
		id, provider, data, s.maxAttempts)
	if err != nil {
		return "", fmt.Errorf("inserting job: %w", err)
	}
	return id, nil
}

// ClaimDue atomically claims up to limit due pending jobs for processing.
// SKIP LOCKED keeps concurrent workers from claiming the same job.
func (s *Store) ClaimDue(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE report_jobs SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM report_jobs
			WHERE status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, provider, payload, status, attempts, max_attempts, last_error, next_attempt_at, created_at`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("claiming jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Provider, &j.Payload, &j.Status, &j.Attempts,
			&j.MaxAttempts, &j.LastError, &j.NextAttemptAt, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkCompleted records a successful delivery.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE report_jobs SET status = 'completed', last_error = '', updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

// MarkFailed records a failed attempt: the job goes back to pending with
// exponential backoff, or to terminal failed once attempts are exhausted.
func (s *Store) MarkFailed(ctx context.Context, job Job, errMsg string) error {
	delay := backoffDelay(job.Attempts + 1)
	_, err := s.db.ExecContext(ctx, `
		UPDATE report_jobs SET
			attempts = attempts + 1,
			last_error = $2,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
			next_attempt_at = NOW() + ($3 * interval '1 second'),
			updated_at = NOW()
		WHERE id = $1`,
		job.ID, errMsg, int(delay.Seconds()))
	return err
}

// ResetFailed moves this provider's terminally failed jobs back to pending
// with attempts zeroed and the error cleared, restricted to status='failed'
// rows only. Returns the number of jobs reset.
func (s *Store) ResetFailed(ctx context.Context, provider string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE report_jobs
		SET status = 'pending', attempts = 0, last_error = '', next_attempt_at = NOW(), updated_at = NOW()
		WHERE provider = $1 AND status = 'failed'`,
		provider)
	if err != nil {
		return 0, fmt.Errorf("resetting failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseStuck requeues jobs stuck in processing longer than staleAge
// (worker crashed mid-job). Attempts are not bumped; the crash was ours,
// not the job's.
func (s *Store) ReleaseStuck(ctx context.Context, staleAge time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE report_jobs SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < NOW() - ($1 * interval '1 second')`,
		int(staleAge.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("releasing stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns job counts per status for the status endpoint.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM report_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// backoffDelay returns the wait before retry attempt n: 1m, 2m, 4m, ...
// capped at one hour.
func backoffDelay(attempt int) time.Duration {
	delay := time.Minute
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= time.Hour {
			return time.Hour
		}
	}
	return delay
}
