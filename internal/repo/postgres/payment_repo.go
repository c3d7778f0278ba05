package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/jackc/pgx/v5"
)

type PaymentRepo interface {
	LogNotification(ctx context.Context, n domain.Notification) (int64, error)
	SetOutcome(ctx context.Context, id int64, res domain.PaymentResult, errMsg string) error
	Get(ctx context.Context, id int64) (*domain.PaymentLogEntry, error)
	List(ctx context.Context, outcome *domain.PaymentOutcome, limit, offset int) ([]domain.PaymentLogEntry, error)
	ClaimCompletion(ctx context.Context, rt domain.ResourceType, resourceID, notificationID int64) (bool, error)
}

type PaymentRepoImpl struct{ s *Store }

const paymentCols = `id, source, order_id, ext_order_id, status, total_amount, currency, payload,
outcome, resource_type, resource_id, error, received_at, processed_at`

func scanPayment(row pgx.Row) (*domain.PaymentLogEntry, error) {
	var (
		e       domain.PaymentLogEntry
		payload []byte
	)
	err := row.Scan(
		&e.ID, &e.Notification.Source, &e.Notification.OrderID, &e.Notification.ExtOrderID,
		&e.Notification.Status, &e.Notification.TotalAmount, &e.Notification.Currency, &payload,
		&e.Outcome, &e.ResourceType, &e.ResourceID, &e.Error, &e.ReceivedAt, &e.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Notification.Payload = payload
	return &e, nil
}

// LogNotification durably records an inbound notification with outcome pending.
func (r *PaymentRepoImpl) LogNotification(ctx context.Context, n domain.Notification) (int64, error) {
	const q = `INSERT INTO payment_notifications
    (source, order_id, ext_order_id, status, total_amount, currency, payload, outcome)
VALUES ($1,$2,$3,$4,$5,$6,$7,'pending') RETURNING id`

	var payload []byte
	if len(n.Payload) > 0 {
		payload = n.Payload
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var id int64
	err := r.s.conn(ctx).QueryRow(ctx, q,
		n.Source, n.OrderID, n.ExtOrderID, n.Status, n.TotalAmount, n.Currency, payload,
	).Scan(&id)
	return id, err
}

func (r *PaymentRepoImpl) SetOutcome(ctx context.Context, id int64, res domain.PaymentResult, errMsg string) error {
	const q = `UPDATE payment_notifications
SET outcome=$2, resource_type=$3, resource_id=$4, error=$5, processed_at=$6
WHERE id=$1`

	var (
		rt  *string
		rid *int64
	)
	if res.ResourceType != "" {
		s := string(res.ResourceType)
		rt, rid = &s, &res.ResourceID
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.s.conn(ctx).Exec(ctx, q, id, res.Outcome, rt, rid, errMsg, time.Now().UTC())
	return err
}

func (r *PaymentRepoImpl) Get(ctx context.Context, id int64) (*domain.PaymentLogEntry, error) {
	const q = `SELECT ` + paymentCols + ` FROM payment_notifications WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	e, err := scanPayment(r.s.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *PaymentRepoImpl) List(ctx context.Context, outcome *domain.PaymentOutcome, limit, offset int) ([]domain.PaymentLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var o *string
	if outcome != nil {
		s := string(*outcome)
		o = &s
	}
	const q = `SELECT ` + paymentCols + ` FROM payment_notifications
WHERE ($1::text IS NULL OR outcome = $1)
ORDER BY received_at DESC, id DESC LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.s.conn(ctx).Query(ctx, q, o, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.PaymentLogEntry, 0, limit)
	for rows.Next() {
		e, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ClaimCompletion records that a resource's payment effect has been applied.
// It returns false when an earlier notification already claimed it.
func (r *PaymentRepoImpl) ClaimCompletion(ctx context.Context, rt domain.ResourceType, resourceID, notificationID int64) (bool, error) {
	const q = `INSERT INTO payment_completions (resource_type, resource_id, notification_id)
VALUES ($1,$2,$3) ON CONFLICT (resource_type, resource_id) DO NOTHING`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := r.s.conn(ctx).Exec(ctx, q, rt, resourceID, notificationID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

var _ PaymentRepo = (*PaymentRepoImpl)(nil)
