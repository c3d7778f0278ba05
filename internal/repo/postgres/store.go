package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	queryTimeout  = 3 * time.Second
	maxTxAttempts = 3
)

type txKey struct{}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store hands out repositories sharing one pool. Repositories run inside the
// transaction carried by ctx when there is one.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) Challenges() *ChallengeRepoImpl { return &ChallengeRepoImpl{s: s} }
func (s *Store) Accounts() *AccountRepoImpl     { return &AccountRepoImpl{s: s} }
func (s *Store) Bookings() *BookingRepoImpl     { return &BookingRepoImpl{s: s} }
func (s *Store) GiftCards() *GiftCardRepoImpl   { return &GiftCardRepoImpl{s: s} }
func (s *Store) Catalog() *CatalogRepoImpl      { return &CatalogRepoImpl{s: s} }
func (s *Store) Timeline() *TimelineRepoImpl    { return &TimelineRepoImpl{s: s} }
func (s *Store) Payments() *PaymentRepoImpl     { return &PaymentRepoImpl{s: s} }

// WithinTx runs fn in a serializable transaction, retrying serialization
// failures. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			return fn(context.WithValue(ctx, txKey{}, tx))
		})
		if !isRetryable(err) {
			return err
		}
		logger.WarnContext(ctx, "Transaction conflict, retrying", "attempt", attempt, "error", err)
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, err)
}

func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func decodeList(raw []byte, field string, id int64) []string {
	items, state := domain.DecodeStringList(raw)
	if state == domain.ListCorrupt {
		logger.Warn("Corrupt list column, using empty list", "field", field, "id", id)
	}
	return items
}
