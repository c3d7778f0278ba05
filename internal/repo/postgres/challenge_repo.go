package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/jackc/pgx/v5"
)

type ChallengeRepo interface {
	Create(ctx context.Context, c *domain.Challenge) (*domain.Challenge, error)
	GetByLink(ctx context.Context, link string) (*domain.Challenge, error)
	GetByID(ctx context.Context, id int64) (*domain.Challenge, error)
	List(ctx context.Context, f domain.ChallengeFilter) ([]domain.Challenge, error)
	MarkViewed(ctx context.Context, id int64, at time.Time) (bool, error)
	Expire(ctx context.Context, id int64) (bool, error)
	Accept(ctx context.Context, id int64, p domain.AcceptParams) (bool, error)
	Reject(ctx context.Context, id int64, at time.Time) (bool, error)
	AdminUpdate(ctx context.Context, id int64, p domain.AdminPatch) (bool, error)
	MarkPaid(ctx context.Context, id int64, at time.Time, note string) error
}

type ChallengeRepoImpl struct{ s *Store }

const challengeCols = `c.id, c.unique_link,
c.inviter_name, c.inviter_contact, c.inviter_contact_type,
c.invitee_name, c.invitee_contact, c.invitee_contact_type,
c.package_id, c.location_id, c.custom_location,
c.discount_amount, c.discount_percentage, c.preferred_dates,
c.session_date, c.acceptance_deadline, c.status,
c.viewed_at, c.accepted_at, c.rejected_at, c.admin_notes,
c.invitee_user_id, c.created_at, c.updated_at,
p.id, p.name, p.base_price, p.challenge_price, p.discount_percentage, p.included_items, p.active, p.created_at,
l.id, l.name, l.address, l.description`

const challengeFrom = ` FROM challenges c
JOIN packages p ON p.id = c.package_id
LEFT JOIN locations l ON l.id = c.location_id`

func scanChallenge(row pgx.Row) (*domain.Challenge, error) {
	var (
		c        domain.Challenge
		p        domain.Package
		dates    []byte
		items    []byte
		deadline *time.Time
		locID    *int64
		locName  *string
		locAddr  *string
		locDesc  *string
	)
	err := row.Scan(
		&c.ID, &c.UniqueLink,
		&c.InviterName, &c.InviterContact, &c.InviterContactType,
		&c.InviteeName, &c.InviteeContact, &c.InviteeContactType,
		&c.PackageID, &c.LocationID, &c.CustomLocation,
		&c.DiscountAmount, &c.DiscountPercentage, &dates,
		&c.SessionDate, &deadline, &c.Status,
		&c.ViewedAt, &c.AcceptedAt, &c.RejectedAt, &c.AdminNotes,
		&c.InviteeUserID, &c.CreatedAt, &c.UpdatedAt,
		&p.ID, &p.Name, &p.BasePrice, &p.ChallengePrice, &p.DiscountPercentage, &items, &p.Active, &p.CreatedAt,
		&locID, &locName, &locAddr, &locDesc,
	)
	if err != nil {
		return nil, err
	}
	if deadline != nil {
		c.AcceptanceDeadline = *deadline
	}
	c.PreferredDates = decodeList(dates, "challenges.preferred_dates", c.ID)
	p.IncludedItems = decodeList(items, "packages.included_items", p.ID)
	c.Package = &p
	if locID != nil {
		c.Location = &domain.Location{ID: *locID, Name: deref(locName), Address: deref(locAddr), Description: deref(locDesc)}
	}
	return &c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *ChallengeRepoImpl) Create(ctx context.Context, c *domain.Challenge) (*domain.Challenge, error) {
	const q = `INSERT INTO challenges (
    unique_link,
    inviter_name, inviter_contact, inviter_contact_type,
    invitee_name, invitee_contact, invitee_contact_type,
    package_id, location_id, custom_location,
    discount_amount, discount_percentage, preferred_dates,
    acceptance_deadline, status
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,'sent')
  RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var id int64
	err := r.s.conn(ctx).QueryRow(ctx, q,
		c.UniqueLink,
		c.InviterName, c.InviterContact, c.InviterContactType,
		c.InviteeName, c.InviteeContact, c.InviteeContactType,
		c.PackageID, c.LocationID, c.CustomLocation,
		c.DiscountAmount, c.DiscountPercentage, domain.EncodeStringList(c.PreferredDates),
		c.AcceptanceDeadline,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: unique link already used", domain.ErrConflict)
		}
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *ChallengeRepoImpl) GetByLink(ctx context.Context, link string) (*domain.Challenge, error) {
	return r.getOne(ctx, `SELECT `+challengeCols+challengeFrom+` WHERE c.unique_link=$1`, link)
}

func (r *ChallengeRepoImpl) GetByID(ctx context.Context, id int64) (*domain.Challenge, error) {
	return r.getOne(ctx, `SELECT `+challengeCols+challengeFrom+` WHERE c.id=$1`, id)
}

func (r *ChallengeRepoImpl) getOne(ctx context.Context, q string, arg any) (*domain.Challenge, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	c, err := scanChallenge(r.s.conn(ctx).QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *ChallengeRepoImpl) List(ctx context.Context, f domain.ChallengeFilter) ([]domain.Challenge, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}
	const q = `SELECT ` + challengeCols + challengeFrom + `
WHERE ($1::text IS NULL OR c.status = $1)
ORDER BY c.created_at DESC, c.id DESC LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.s.conn(ctx).Query(ctx, q, status, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cs := make([]domain.Challenge, 0, f.Limit)
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		cs = append(cs, *c)
	}
	return cs, rows.Err()
}

// MarkViewed fires at most once: it requires viewed_at to be unset.
func (r *ChallengeRepoImpl) MarkViewed(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.exec(ctx, `UPDATE challenges SET status='viewed', viewed_at=$2, updated_at=now()
WHERE id=$1 AND viewed_at IS NULL AND status='sent'`, id, at)
}

func (r *ChallengeRepoImpl) Expire(ctx context.Context, id int64) (bool, error) {
	return r.exec(ctx, `UPDATE challenges SET status='expired', updated_at=now()
WHERE id=$1 AND status IN ('sent','viewed')`, id)
}

func (r *ChallengeRepoImpl) Accept(ctx context.Context, id int64, p domain.AcceptParams) (bool, error) {
	return r.exec(ctx, `UPDATE challenges
SET status='accepted', accepted_at=$2, invitee_user_id=$3, session_date=$4, updated_at=now()
WHERE id=$1 AND status IN ('sent','viewed')`, id, p.AcceptedAt, p.InviteeUserID, p.SessionDate)
}

func (r *ChallengeRepoImpl) Reject(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.exec(ctx, `UPDATE challenges SET status='rejected', rejected_at=$2, updated_at=now()
WHERE id=$1 AND status IN ('sent','viewed')`, id, at)
}

func (r *ChallengeRepoImpl) AdminUpdate(ctx context.Context, id int64, p domain.AdminPatch) (bool, error) {
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	return r.exec(ctx, `UPDATE challenges SET
    status = COALESCE($2, status),
    session_date = COALESCE($3, session_date),
    admin_notes = COALESCE($4, admin_notes),
    updated_at = now()
WHERE id=$1`, id, status, p.SessionDate, p.AdminNotes)
}

// MarkPaid records a completed challenge payment. Only open challenges move
// to accepted; later states keep their status.
func (r *ChallengeRepoImpl) MarkPaid(ctx context.Context, id int64, at time.Time, note string) error {
	_, err := r.exec(ctx, `UPDATE challenges SET
    status = CASE WHEN status IN ('sent','viewed') THEN 'accepted' ELSE status END,
    accepted_at = COALESCE(accepted_at, $2),
    admin_notes = CASE WHEN admin_notes = '' THEN $3 ELSE admin_notes || E'\n' || $3 END,
    updated_at = now()
WHERE id=$1`, id, at, strings.TrimSpace(note))
	return err
}

func (r *ChallengeRepoImpl) exec(ctx context.Context, q string, args ...any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := r.s.conn(ctx).Exec(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

var _ ChallengeRepo = (*ChallengeRepoImpl)(nil)
