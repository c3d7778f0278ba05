// Package timeline records the append-only audit trail of a challenge.
package timeline

import (
	"context"
	"fmt"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/pkg/logger"
)

type Store interface {
	Append(ctx context.Context, e *domain.TimelineEvent) error
	ListByChallenge(ctx context.Context, challengeID int64) ([]domain.TimelineEvent, error)
}

type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Append writes one event. Inside a transaction it commits or rolls back with it.
func (r *Recorder) Append(ctx context.Context, challengeID int64, eventType, description string, metadata map[string]any) error {
	e := &domain.TimelineEvent{
		ChallengeID: challengeID,
		EventType:   eventType,
		Description: description,
		Metadata:    metadata,
	}
	if err := r.store.Append(ctx, e); err != nil {
		return fmt.Errorf("append %s event: %w", eventType, err)
	}
	logger.DebugContext(ctx, "Timeline event appended", "challenge_id", challengeID, "event_type", eventType)
	return nil
}

// List returns the events of a challenge in creation order.
func (r *Recorder) List(ctx context.Context, challengeID int64) ([]domain.TimelineEvent, error) {
	return r.store.ListByChallenge(ctx, challengeID)
}
