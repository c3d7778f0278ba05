package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/jackc/pgx/v5"
)

type GiftCardRepo interface {
	GetByID(ctx context.Context, id int64) (*domain.GiftCardOrder, error)
	MarkPaid(ctx context.Context, id int64, at time.Time) error
}

type GiftCardRepoImpl struct{ s *Store }

const giftCardCols = `id, purchaser_name, purchaser_email, recipient_name, recipient_email,
amount, payment_status, paid_at, access_token, expires_at, created_at`

func (r *GiftCardRepoImpl) GetByID(ctx context.Context, id int64) (*domain.GiftCardOrder, error) {
	const q = `SELECT ` + giftCardCols + ` FROM gift_card_orders WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var g domain.GiftCardOrder
	err := r.s.conn(ctx).QueryRow(ctx, q, id).Scan(
		&g.ID, &g.PurchaserName, &g.PurchaserEmail, &g.RecipientName, &g.RecipientEmail,
		&g.Amount, &g.PaymentStatus, &g.PaidAt, &g.AccessToken, &g.ExpiresAt, &g.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GiftCardRepoImpl) MarkPaid(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE gift_card_orders
SET payment_status='completed', paid_at=COALESCE(paid_at, $2)
WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.s.conn(ctx).Exec(ctx, q, id, at)
	return err
}

var _ GiftCardRepo = (*GiftCardRepoImpl)(nil)
