package domain

import "time"

const (
	EventCreated          = "created"
	EventViewed           = "viewed"
	EventAccepted         = "accepted"
	EventRejected         = "rejected"
	EventExpired          = "expired"
	EventBookingCreated   = "booking_created"
	EventPaymentCompleted = "PAYMENT_COMPLETED"
)

// StatusEventType is the event tag recorded for an admin status write.
func StatusEventType(s ChallengeStatus) string {
	return "status_" + string(s)
}

// TimelineEvent is an immutable audit record tied to a challenge.
type TimelineEvent struct {
	ID          int64          `json:"id"`
	ChallengeID int64          `json:"challenge_id"`
	EventType   string         `json:"event_type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
