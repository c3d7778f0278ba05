package service

import (
	"context"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/internal/notify"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PaymentLog is the durable audit log of inbound notifications plus the
// per-resource completion claims.
type PaymentLog interface {
	LogNotification(ctx context.Context, n domain.Notification) (int64, error)
	SetOutcome(ctx context.Context, id int64, res domain.PaymentResult, errMsg string) error
	Get(ctx context.Context, id int64) (*domain.PaymentLogEntry, error)
	List(ctx context.Context, outcome *domain.PaymentOutcome, limit, offset int) ([]domain.PaymentLogEntry, error)
	ClaimCompletion(ctx context.Context, rt domain.ResourceType, resourceID, notificationID int64) (bool, error)
}

type BookingStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ConfirmPayment(ctx context.Context, id int64, at time.Time, note string) error
}

type GiftCardStore interface {
	GetByID(ctx context.Context, id int64) (*domain.GiftCardOrder, error)
	MarkPaid(ctx context.Context, id int64, at time.Time) error
}

type ChallengeStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Challenge, error)
	MarkPaid(ctx context.Context, id int64, at time.Time, note string) error
}

type Timeline interface {
	Append(ctx context.Context, challengeID int64, eventType, description string, metadata map[string]any) error
}

type Notifier interface {
	Send(ctx context.Context, msg notify.Message)
}

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}
