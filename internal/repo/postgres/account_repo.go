package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/jackc/pgx/v5"
)

type AccountRepo interface {
	Create(ctx context.Context, email, hash, name string) (*domain.InviteeAccount, error)
	FindByEmail(ctx context.Context, email string) (*domain.InviteeAccount, error)
}

type AccountRepoImpl struct{ s *Store }

const accountCols = `id, email, password_hash, name, created_at`

// Create fails with ErrConflict when the email is taken.
func (r *AccountRepoImpl) Create(ctx context.Context, email, hash, name string) (*domain.InviteeAccount, error) {
	const q = `
INSERT INTO invitee_accounts (email, password_hash, name)
VALUES ($1,$2,$3)
RETURNING ` + accountCols
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var a domain.InviteeAccount
	if err := r.s.conn(ctx).QueryRow(ctx, q, email, hash, name).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: account exists, log in instead", domain.ErrConflict)
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepoImpl) FindByEmail(ctx context.Context, email string) (*domain.InviteeAccount, error) {
	const q = `SELECT ` + accountCols + ` FROM invitee_accounts WHERE email=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var a domain.InviteeAccount
	err := r.s.conn(ctx).QueryRow(ctx, q, email).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

var _ AccountRepo = (*AccountRepoImpl)(nil)
