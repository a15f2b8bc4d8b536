package queue

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newStoreMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, 5), mock
}

func TestInsert(t *testing.T) {
	store, mock := newStoreMock(t)

	mock.ExpectExec(`INSERT INTO report_jobs`).
		WithArgs(sqlmock.AnyArg(), "google_ads", []byte(`{"gclid":"g1"}`), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.Insert(context.Background(), "google_ads", map[string]string{"gclid": "g1"})
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if id == "" {
		t.Error("Insert should return a job id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestClaimDue(t *testing.T) {
	store, mock := newStoreMock(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "provider", "payload", "status", "attempts",
		"max_attempts", "last_error", "next_attempt_at", "created_at",
	}).
		AddRow("job-1", "google_ads", []byte(`{"gclid":"g1"}`), StatusProcessing, 0, 5, "", now, now).
		AddRow("job-2", "google_ads", []byte(`{"gclid":"g2"}`), StatusProcessing, 2, 5, "boom", now, now)

	mock.ExpectQuery(`UPDATE report_jobs SET status = 'processing'`).
		WithArgs(25).
		WillReturnRows(rows)

	jobs, err := store.ClaimDue(context.Background(), 25)
	if err != nil {
		t.Fatalf("ClaimDue returned error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != "job-1" || jobs[1].Attempts != 2 {
		t.Errorf("jobs = %+v", jobs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMarkFailed_BacksOff(t *testing.T) {
	store, mock := newStoreMock(t)

	// third attempt: backoff 1m -> 2m -> 4m
	mock.ExpectExec(`UPDATE report_jobs SET`).
		WithArgs("job-1", "upload failed", 240).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := Job{ID: "job-1", Attempts: 2}
	if err := store.MarkFailed(context.Background(), job, "upload failed"); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestResetFailed_OnlyTouchesFailedRows(t *testing.T) {
	store, mock := newStoreMock(t)

	mock.ExpectExec(`UPDATE report_jobs\s+SET status = 'pending', attempts = 0, last_error = '', next_attempt_at = NOW\(\), updated_at = NOW\(\)\s+WHERE provider = \$1 AND status = 'failed'`).
		WithArgs("google_ads").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.ResetFailed(context.Background(), "google_ads")
	if err != nil {
		t.Fatalf("ResetFailed returned error: %v", err)
	}
	if n != 3 {
		t.Errorf("reset count = %d, want 3", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReleaseStuck(t *testing.T) {
	store, mock := newStoreMock(t)

	mock.ExpectExec(`UPDATE report_jobs SET status = 'pending'`).
		WithArgs(600).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := store.ReleaseStuck(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("ReleaseStuck returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("released = %d, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCountByStatus(t *testing.T) {
	store, mock := newStoreMock(t)

	mock.ExpectQuery(`SELECT status, COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 4).
			AddRow("failed", 2))

	counts, err := store.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus returned error: %v", err)
	}
	if counts["pending"] != 4 || counts["failed"] != 2 {
		t.Errorf("counts = %v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{6, 32 * time.Minute},
		{7, time.Hour},
		{20, time.Hour},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
