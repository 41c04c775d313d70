package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arbiscout/arbiscout/internal/models"
)

// StartWorker runs pending jobs one at a time. Scans drive a shared
// browser session, so there is deliberately no concurrency here. New jobs
// wake the worker through the in-memory queue; the periodic pass picks up
// jobs created by other instances or left over from a restart.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	defer m.wakeups.Close()

	for {
		// Block on a wakeup or the poll interval, whichever comes first.
		popCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		m.wakeups.Pop(popCtx)
		cancel()

		if ctx.Err() != nil {
			m.logger.Info("job worker stopping")
			return
		}
		m.processNextJob(ctx)
	}
}

// processNextJob claims the oldest pending job with the highest priority
// and runs it. SKIP LOCKED keeps multiple workers from claiming the same
// job.
func (m *Manager) processNextJob(ctx context.Context) {
	query := `
		SELECT id, criteria
		FROM scan_jobs
		WHERE status = 'pending'
		ORDER BY priority DESC, created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	var (
		jobID        string
		criteriaJSON []byte
	)
	if err := m.db.QueryRow(ctx, query).Scan(&jobID, &criteriaJSON); err != nil {
		// No pending jobs
		return
	}

	var criteria models.SearchCriteria
	if err := json.Unmarshal(criteriaJSON, &criteria); err != nil {
		m.logger.Error("job has malformed criteria", "id", jobID, "error", err)
		m.updateJobStatus(ctx, jobID, "failed", "", err)
		return
	}

	m.logger.Info("processing job", "id", jobID, "keyword", criteria.Keyword)

	if err := m.updateJobStatus(ctx, jobID, "running", "", nil); err != nil {
		m.logger.Error("failed to update job status", "error", err)
		return
	}

	result, err := m.scanner.Scan(ctx, criteria)
	resultID := ""
	if result != nil {
		resultID = result.ResultID
	}

	if err != nil {
		m.logger.Error("job failed", "id", jobID, "error", err)
		m.updateJobStatus(ctx, jobID, "failed", resultID, err)
		return
	}

	if err := m.updateJobStatus(ctx, jobID, "completed", resultID, nil); err != nil {
		m.logger.Error("failed to mark job as completed", "error", err)
	}

	m.logger.Info("job completed", "id", jobID, "result_id", resultID, "products", len(result.Products))
}
