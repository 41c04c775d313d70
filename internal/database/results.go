package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arbiscout/arbiscout/internal/models"
)

var ErrResultNotFound = errors.New("scan result not found")

// ScanResultStore persists scan results and emits an outbox event for
// each stored result in the same transaction, so downstream consumers on
// the Redis stream never see a result that was not durably written.
type ScanResultStore struct {
	db     *DB
	outbox *OutboxRepository
}

func NewScanResultStore(db *DB) *ScanResultStore {
	return &ScanResultStore{
		db:     db,
		outbox: NewOutboxRepository(db),
	}
}

// StoreScanResult writes the result and its lifecycle event atomically,
// returning the generated result ID.
func (s *ScanResultStore) StoreScanResult(ctx context.Context, result *models.ScanResult) (string, error) {
	id := uuid.New()
	result.ResultID = id.String()

	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal scan result: %w", err)
	}

	eventType := EventScanCompleted
	if result.Status != models.StatusCompleted {
		eventType = EventScanFailed
	}

	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO scan_results (
				id, keyword, category_id, status, error_message,
				product_count, duration_seconds, payload, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		_, err := tx.Exec(ctx, query,
			id, result.Criteria.Keyword, result.Criteria.CategoryID,
			string(result.Status), result.ErrorMessage,
			len(result.Products), result.Duration, payload, result.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert scan result: %w", err)
		}

		event := &OutboxEvent{
			AggregateType: "scan",
			AggregateID:   id.String(),
			EventType:     eventType,
			Payload:       payload,
			TargetStream:  DefaultScanStream,
		}
		return s.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// GetScanResult loads one result by ID.
func (s *ScanResultStore) GetScanResult(ctx context.Context, id string) (*models.ScanResult, error) {
	resultID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrResultNotFound, id)
	}

	var payload []byte
	err = s.db.QueryRow(ctx,
		"SELECT payload FROM scan_results WHERE id = $1", resultID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scan result: %w", err)
	}

	var result models.ScanResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan result: %w", err)
	}
	return &result, nil
}

// ListScanResults returns the most recent results, newest first.
func (s *ScanResultStore) ListScanResults(ctx context.Context, limit int) ([]*models.ScanResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx,
		"SELECT payload FROM scan_results ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan results: %w", err)
	}
	defer rows.Close()

	var results []*models.ScanResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var result models.ScanResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scan result: %w", err)
		}
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// PurgeOlderThan deletes results created before the cutoff and returns
// how many rows were removed.
func (s *ScanResultStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		"DELETE FROM scan_results WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge scan results: %w", err)
	}
	return tag.RowsAffected(), nil
}
