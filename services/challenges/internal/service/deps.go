package service

import (
	"context"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/internal/notify"
)

// Transactor runs fn atomically. Stores join the transaction through ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ChallengeStore interface {
	Create(ctx context.Context, c *domain.Challenge) (*domain.Challenge, error)
	GetByLink(ctx context.Context, link string) (*domain.Challenge, error)
	GetByID(ctx context.Context, id int64) (*domain.Challenge, error)
	List(ctx context.Context, f domain.ChallengeFilter) ([]domain.Challenge, error)
	MarkViewed(ctx context.Context, id int64, at time.Time) (bool, error)
	Expire(ctx context.Context, id int64) (bool, error)
	Accept(ctx context.Context, id int64, p domain.AcceptParams) (bool, error)
	Reject(ctx context.Context, id int64, at time.Time) (bool, error)
	AdminUpdate(ctx context.Context, id int64, p domain.AdminPatch) (bool, error)
}

type AccountStore interface {
	Create(ctx context.Context, email, hash, name string) (*domain.InviteeAccount, error)
	FindByEmail(ctx context.Context, email string) (*domain.InviteeAccount, error)
}

type BookingStore interface {
	GetByChallengeID(ctx context.Context, challengeID int64) (*domain.Booking, error)
	CreateForChallenge(ctx context.Context, b *domain.Booking) (*domain.Booking, bool, error)
}

type CatalogStore interface {
	GetPackage(ctx context.Context, id int64) (*domain.Package, error)
	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
}

type Timeline interface {
	Append(ctx context.Context, challengeID int64, eventType, description string, metadata map[string]any) error
	List(ctx context.Context, challengeID int64) ([]domain.TimelineEvent, error)
}

type Notifier interface {
	Send(ctx context.Context, msg notify.Message)
}

type TokenIssuer interface {
	IssueInviteeToken(accountID int64, email string) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}
