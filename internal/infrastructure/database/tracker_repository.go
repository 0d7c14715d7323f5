package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/errors"
)

// TrackerRepository implements compliance.TrackerRepository against
// Postgres. The obligation snapshot and last result are JSONB documents;
// the version column backs optimistic concurrency between batch
// recomputation and payment events.
type TrackerRepository struct {
	pool *Pool
}

// NewTrackerRepository creates a tracker repository
func NewTrackerRepository(pool *Pool) *TrackerRepository {
	return &TrackerRepository{pool: pool}
}

// GetByID retrieves a tracker by its ID
func (r *TrackerRepository) GetByID(ctx context.Context, id uuid.UUID) (*compliance.Tracker, error) {
	query := `SELECT id, client_id, obligation, last_result, version, created_at, updated_at
		FROM compliance_trackers WHERE id = $1`

	var (
		tracker        compliance.Tracker
		obligationJSON []byte
		resultJSON     []byte
	)
	err := r.pool.Pgx().QueryRow(ctx, query, id).Scan(
		&tracker.ID,
		&tracker.ClientID,
		&obligationJSON,
		&resultJSON,
		&tracker.Version,
		&tracker.CreatedAt,
		&tracker.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.ErrTrackerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying tracker %s: %w", id, err)
	}

	if err := json.Unmarshal(obligationJSON, &tracker.Obligation); err != nil {
		return nil, fmt.Errorf("unmarshaling obligation for tracker %s: %w", id, err)
	}
	if resultJSON != nil {
		var result compliance.Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("unmarshaling last result for tracker %s: %w", id, err)
		}
		tracker.LastResult = &result
	}
	return &tracker, nil
}

// ListIDs returns all tracker IDs in a stable order, for batch
// partitioning
func (r *TrackerRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Pgx().Query(ctx, `SELECT id FROM compliance_trackers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing tracker IDs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tracker IDs: %w", err)
	}
	return ids, nil
}

// Save persists a tracker, bumping its version. A stale version means a
// concurrent writer won; the caller reloads and retries.
func (r *TrackerRepository) Save(ctx context.Context, tracker *compliance.Tracker) error {
	obligationJSON, err := json.Marshal(tracker.Obligation)
	if err != nil {
		return fmt.Errorf("marshaling obligation: %w", err)
	}
	var resultJSON []byte
	if tracker.LastResult != nil {
		resultJSON, err = json.Marshal(tracker.LastResult)
		if err != nil {
			return fmt.Errorf("marshaling last result: %w", err)
		}
	}

	now := time.Now().UTC()

	tag, err := r.pool.Pgx().Exec(ctx, `
		UPDATE compliance_trackers
		SET obligation = $2, last_result = $3, version = $4, updated_at = $5
		WHERE id = $1 AND version = $6`,
		tracker.ID, obligationJSON, resultJSON, tracker.Version+1, now, tracker.Version)
	if err != nil {
		return fmt.Errorf("updating tracker %s: %w", tracker.ID, err)
	}
	if tag.RowsAffected() == 1 {
		tracker.Version++
		tracker.UpdatedAt = now
		return nil
	}

	var exists bool
	err = r.pool.Pgx().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM compliance_trackers WHERE id = $1)`,
		tracker.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking tracker %s: %w", tracker.ID, err)
	}
	if exists {
		return errors.ErrStaleTrackerVersion
	}

	_, err = r.pool.Pgx().Exec(ctx, `
		INSERT INTO compliance_trackers (id, client_id, obligation, last_result, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tracker.ID, tracker.ClientID, obligationJSON, resultJSON, tracker.Version, tracker.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("inserting tracker %s: %w", tracker.ID, err)
	}
	tracker.UpdatedAt = now
	return nil
}
