package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diagnosis/photo-challenges/internal/domain"
)

// TimelineRepo is append-only: there is no update or delete.
type TimelineRepo interface {
	Append(ctx context.Context, e *domain.TimelineEvent) error
	ListByChallenge(ctx context.Context, challengeID int64) ([]domain.TimelineEvent, error)
}

type TimelineRepoImpl struct{ s *Store }

func (r *TimelineRepoImpl) Append(ctx context.Context, e *domain.TimelineEvent) error {
	const q = `INSERT INTO timeline_events (challenge_id, event_type, description, metadata)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`

	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return fmt.Errorf("encode timeline metadata: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.s.conn(ctx).QueryRow(ctx, q, e.ChallengeID, e.EventType, e.Description, meta).Scan(&e.ID, &e.CreatedAt)
}

func (r *TimelineRepoImpl) ListByChallenge(ctx context.Context, challengeID int64) ([]domain.TimelineEvent, error) {
	const q = `SELECT id, challenge_id, event_type, description, metadata, created_at
FROM timeline_events WHERE challenge_id=$1 ORDER BY created_at ASC, id ASC`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.s.conn(ctx).Query(ctx, q, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var (
			e    domain.TimelineEvent
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.ChallengeID, &e.EventType, &e.Description, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Metadata)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ TimelineRepo = (*TimelineRepoImpl)(nil)
