package postgres

import (
	"context"
	"errors"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/jackc/pgx/v5"
)

type CatalogRepo interface {
	GetPackage(ctx context.Context, id int64) (*domain.Package, error)
	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
}

type CatalogRepoImpl struct{ s *Store }

func (r *CatalogRepoImpl) GetPackage(ctx context.Context, id int64) (*domain.Package, error) {
	const q = `SELECT id, name, base_price, challenge_price, discount_percentage, included_items, active, created_at
FROM packages WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var (
		p     domain.Package
		items []byte
	)
	err := r.s.conn(ctx).QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Name, &p.BasePrice, &p.ChallengePrice, &p.DiscountPercentage, &items, &p.Active, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.IncludedItems = decodeList(items, "packages.included_items", p.ID)
	return &p, nil
}

func (r *CatalogRepoImpl) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	const q = `SELECT id, name, address, description FROM locations WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var l domain.Location
	err := r.s.conn(ctx).QueryRow(ctx, q, id).Scan(&l.ID, &l.Name, &l.Address, &l.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

var _ CatalogRepo = (*CatalogRepoImpl)(nil)
