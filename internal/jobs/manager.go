package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arbiscout/arbiscout/internal/database"
	"github.com/arbiscout/arbiscout/internal/models"
	"github.com/arbiscout/arbiscout/internal/queue"
)

var ErrJobNotFound = errors.New("job not found")

// Scanner runs one scan end to end. The orchestrator satisfies this.
type Scanner interface {
	Scan(ctx context.Context, criteria models.SearchCriteria) (*models.ScanResult, error)
}

// Manager persists scan jobs and dispatches them to the scanner.
type Manager struct {
	db      *database.DB
	scanner Scanner
	wakeups *queue.InMemoryQueue
	logger  *slog.Logger
}

func NewManager(db *database.DB, scanner Scanner) *Manager {
	return &Manager{
		db:      db,
		scanner: scanner,
		wakeups: queue.NewInMemoryQueue(),
		logger:  slog.Default().With("component", "job_manager"),
	}
}

// Job represents one queued or finished scan job.
type Job struct {
	ID          string                `json:"id"`
	Criteria    models.SearchCriteria `json:"criteria"`
	Priority    int                   `json:"priority"`
	Status      string                `json:"status"`
	ResultID    string                `json:"result_id,omitempty"`
	Error       string                `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// Stats summarizes the job table.
type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	SuccessRate   float64 `json:"success_rate"`
}

// CreateJob enqueues a scan.
func (m *Manager) CreateJob(ctx context.Context, criteria models.SearchCriteria, priority int) (*Job, error) {
	if err := criteria.Validate(); err != nil {
		return nil, fmt.Errorf("invalid criteria: %w", err)
	}

	job := &Job{
		ID:        uuid.New().String(),
		Criteria:  criteria,
		Priority:  priority,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}

	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal criteria: %w", err)
	}

	query := `
		INSERT INTO scan_jobs (id, criteria, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = m.db.Exec(ctx, query, job.ID, criteriaJSON, job.Priority, job.Status, job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	// Wake the worker so the job starts without waiting out a poll tick.
	// The queue entry is only a signal; the row in scan_jobs is the source
	// of truth and survives restarts.
	if err := m.wakeups.Push(&queue.Job{
		ID:        job.ID,
		Criteria:  criteria,
		Priority:  priority,
		CreatedAt: job.CreatedAt,
	}); err != nil {
		m.logger.Warn("failed to enqueue wakeup", "id", job.ID, "error", err)
	}

	m.logger.Info("job created", "id", job.ID, "keyword", criteria.Keyword)
	return job, nil
}

// GetJob retrieves a job by ID.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	query := `
		SELECT id, criteria, priority, status, result_id, error,
		       created_at, started_at, completed_at
		FROM scan_jobs
		WHERE id = $1
	`

	job, err := scanJobRow(m.db.QueryRow(ctx, query, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs lists recent jobs, newest first.
func (m *Manager) ListJobs(ctx context.Context) ([]*Job, error) {
	query := `
		SELECT id, criteria, priority, status, result_id, error,
		       created_at, started_at, completed_at
		FROM scan_jobs
		ORDER BY created_at DESC
		LIMIT 100
	`

	rows, err := m.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetStats summarizes the job table.
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT
			COUNT(*) as total_jobs,
			COUNT(CASE WHEN status = 'pending' THEN 1 END) as pending_jobs,
			COUNT(CASE WHEN status = 'running' THEN 1 END) as running_jobs,
			COUNT(CASE WHEN status = 'completed' THEN 1 END) as completed_jobs,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) as failed_jobs
		FROM scan_jobs
	`

	err := m.db.QueryRow(ctx, query).Scan(
		&stats.TotalJobs, &stats.PendingJobs, &stats.RunningJobs,
		&stats.CompletedJobs, &stats.FailedJobs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	if stats.TotalJobs > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(stats.TotalJobs) * 100
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRow(row rowScanner) (*Job, error) {
	var (
		job          Job
		criteriaJSON []byte
		resultID     *string
		errMsg       *string
	)
	err := row.Scan(
		&job.ID, &criteriaJSON, &job.Priority, &job.Status, &resultID, &errMsg,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(criteriaJSON, &job.Criteria); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}
	if resultID != nil {
		job.ResultID = *resultID
	}
	if errMsg != nil {
		job.Error = *errMsg
	}
	return &job, nil
}

func (m *Manager) updateJobStatus(ctx context.Context, jobID, status, resultID string, jobErr error) error {
	now := time.Now().UTC()

	var (
		query string
		args  []any
	)
	switch status {
	case "running":
		query = `UPDATE scan_jobs SET status = $1, started_at = $2 WHERE id = $3`
		args = []any{status, now, jobID}
	case "completed":
		query = `UPDATE scan_jobs SET status = $1, completed_at = $2, result_id = $3 WHERE id = $4`
		args = []any{status, now, resultID, jobID}
	case "failed":
		msg := ""
		if jobErr != nil {
			msg = jobErr.Error()
		}
		query = `UPDATE scan_jobs SET status = $1, completed_at = $2, result_id = NULLIF($3, ''), error = $4 WHERE id = $5`
		args = []any{status, now, resultID, msg, jobID}
	default:
		query = `UPDATE scan_jobs SET status = $1 WHERE id = $2`
		args = []any{status, jobID}
	}

	_, err := m.db.Exec(ctx, query, args...)
	return err
}
