package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/jackc/pgx/v5"
)

type BookingRepo interface {
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	GetByChallengeID(ctx context.Context, challengeID int64) (*domain.Booking, error)
	CreateForChallenge(ctx context.Context, b *domain.Booking) (*domain.Booking, bool, error)
	ConfirmPayment(ctx context.Context, id int64, at time.Time, note string) error
}

type BookingRepoImpl struct{ s *Store }

const bookingCols = `id, service, package_name, price,
starts_at, ends_at,
client_name, client_email, client_phone,
challenge_id, status, notes, paid_at,
created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.Service, &b.PackageName, &b.Price,
		&b.StartsAt, &b.EndsAt,
		&b.ClientName, &b.ClientEmail, &b.ClientPhone,
		&b.ChallengeID, &b.Status, &b.Notes, &b.PaidAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepoImpl) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=$1`, id)
}

func (r *BookingRepoImpl) GetByChallengeID(ctx context.Context, challengeID int64) (*domain.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingCols+` FROM bookings WHERE challenge_id=$1`, challengeID)
}

func (r *BookingRepoImpl) getOne(ctx context.Context, q string, arg any) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	b, err := scanBooking(r.s.conn(ctx).QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// CreateForChallenge inserts b unless a booking for the same challenge exists.
// The returned flag is false when nothing was inserted.
func (r *BookingRepoImpl) CreateForChallenge(ctx context.Context, b *domain.Booking) (*domain.Booking, bool, error) {
	const q = `INSERT INTO bookings (
    service, package_name, price,
    starts_at, ends_at,
    client_name, client_email, client_phone,
    challenge_id, status, notes
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
  ON CONFLICT (challenge_id) WHERE challenge_id IS NOT NULL DO NOTHING
  RETURNING ` + bookingCols

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	created, err := scanBooking(r.s.conn(ctx).QueryRow(ctx, q,
		b.Service, b.PackageName, b.Price,
		b.StartsAt, b.EndsAt,
		b.ClientName, b.ClientEmail, b.ClientPhone,
		b.ChallengeID, b.Status, b.Notes,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *BookingRepoImpl) ConfirmPayment(ctx context.Context, id int64, at time.Time, note string) error {
	const q = `UPDATE bookings SET
    status = 'confirmed',
    paid_at = COALESCE(paid_at, $2),
    notes = CASE WHEN notes = '' THEN $3 ELSE notes || E'\n' || $3 END,
    updated_at = now()
WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.s.conn(ctx).Exec(ctx, q, id, at, note)
	return err
}

var _ BookingRepo = (*BookingRepoImpl)(nil)
