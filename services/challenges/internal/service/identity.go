package service

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/photo-challenges/internal/domain"
)

// Credentials is a validated AuthRequest. Register credentials carry the
// password hash so no hashing happens inside a transaction.
type Credentials struct {
	Mode         domain.AuthMode
	Name         string
	Email        string
	PasswordHash string
	password     string
}

// Identity resolves the invitee account at acceptance time.
type Identity struct {
	accounts AccountStore
	params   *argon2id.Params
}

func NewIdentity(accounts AccountStore, params *argon2id.Params) *Identity {
	if params == nil {
		params = argon2id.DefaultParams
	}
	return &Identity{accounts: accounts, params: params}
}

func (i *Identity) Prepare(req domain.AuthRequest) (*Credentials, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c := &Credentials{Mode: req.Mode, Name: req.Name, Email: req.Email, password: req.Password}
	if req.Mode == domain.AuthRegister {
		hash, err := argon2id.CreateHash(req.Password, i.params)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		c.PasswordHash = hash
	}
	return c, nil
}

// Resolve creates the account (register) or looks it up (login). Login checks
// the password only when one was supplied.
func (i *Identity) Resolve(ctx context.Context, c *Credentials) (*domain.InviteeAccount, error) {
	existing, err := i.accounts.FindByEmail(ctx, c.Email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}

	switch c.Mode {
	case domain.AuthRegister:
		if existing != nil {
			return nil, fmt.Errorf("%w: account exists, log in instead", domain.ErrConflict)
		}
		return i.accounts.Create(ctx, c.Email, c.PasswordHash, c.Name)
	case domain.AuthLogin:
		if existing == nil {
			return nil, fmt.Errorf("%w: no account for this email", domain.ErrNotFound)
		}
		if c.password != "" {
			match, err := argon2id.ComparePasswordAndHash(c.password, existing.PasswordHash)
			if err != nil || !match {
				return nil, fmt.Errorf("%w: invalid email or password", domain.ErrUnauthorized)
			}
		}
		return existing, nil
	default:
		return nil, fmt.Errorf("%w: unknown auth mode", domain.ErrValidation)
	}
}
