package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
)

type ChallengeRepo struct{ s *Store }

func (r *ChallengeRepo) Create(ctx context.Context, c *domain.Challenge) (*domain.Challenge, error) {
	defer r.s.lock(ctx)()
	for _, existing := range r.s.st.challenges {
		if existing.UniqueLink == c.UniqueLink {
			return nil, fmt.Errorf("%w: unique link already used", domain.ErrConflict)
		}
	}
	stored := *c
	stored.ID = r.s.nextID()
	stored.Status = domain.ChallengeSent
	stored.Package, stored.Location = nil, nil
	stored.PreferredDates = append([]string{}, c.PreferredDates...)
	stored.CreatedAt, stored.UpdatedAt = r.s.now(), r.s.now()
	r.s.st.challenges[stored.ID] = stored
	return r.expand(stored), nil
}

func (r *ChallengeRepo) expand(c domain.Challenge) *domain.Challenge {
	if p, ok := r.s.st.packages[c.PackageID]; ok {
		c.Package = &p
	}
	if c.LocationID != nil {
		if l, ok := r.s.st.locations[*c.LocationID]; ok {
			c.Location = &l
		}
	}
	if c.PreferredDates == nil {
		c.PreferredDates = []string{}
	}
	return &c
}

func (r *ChallengeRepo) GetByLink(ctx context.Context, link string) (*domain.Challenge, error) {
	defer r.s.lock(ctx)()
	for _, c := range r.s.st.challenges {
		if c.UniqueLink == link {
			return r.expand(c), nil
		}
	}
	return nil, nil
}

func (r *ChallengeRepo) GetByID(ctx context.Context, id int64) (*domain.Challenge, error) {
	defer r.s.lock(ctx)()
	c, ok := r.s.st.challenges[id]
	if !ok {
		return nil, nil
	}
	return r.expand(c), nil
}

func (r *ChallengeRepo) List(ctx context.Context, f domain.ChallengeFilter) ([]domain.Challenge, error) {
	defer r.s.lock(ctx)()
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	all := make([]domain.Challenge, 0, len(r.s.st.challenges))
	for _, c := range r.s.st.challenges {
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		all = append(all, *r.expand(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if f.Offset >= len(all) {
		return []domain.Challenge{}, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

// update applies fn to the stored challenge when cond holds.
func (r *ChallengeRepo) update(ctx context.Context, id int64, cond func(domain.Challenge) bool, fn func(*domain.Challenge)) bool {
	defer r.s.lock(ctx)()
	c, ok := r.s.st.challenges[id]
	if !ok || (cond != nil && !cond(c)) {
		return false
	}
	fn(&c)
	c.UpdatedAt = r.s.now()
	r.s.st.challenges[id] = c
	return true
}

func isOpen(c domain.Challenge) bool { return c.Status.IsOpen() }

func (r *ChallengeRepo) MarkViewed(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.update(ctx, id, func(c domain.Challenge) bool {
		return c.ViewedAt == nil && c.Status == domain.ChallengeSent
	}, func(c *domain.Challenge) {
		c.Status = domain.ChallengeViewed
		c.ViewedAt = ptr(at)
	}), nil
}

func (r *ChallengeRepo) Expire(ctx context.Context, id int64) (bool, error) {
	return r.update(ctx, id, isOpen, func(c *domain.Challenge) {
		c.Status = domain.ChallengeExpired
	}), nil
}

func (r *ChallengeRepo) Accept(ctx context.Context, id int64, p domain.AcceptParams) (bool, error) {
	return r.update(ctx, id, isOpen, func(c *domain.Challenge) {
		c.Status = domain.ChallengeAccepted
		c.AcceptedAt = ptr(p.AcceptedAt)
		c.InviteeUserID = ptr(p.InviteeUserID)
		c.SessionDate = ptr(p.SessionDate)
	}), nil
}

func (r *ChallengeRepo) Reject(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.update(ctx, id, isOpen, func(c *domain.Challenge) {
		c.Status = domain.ChallengeRejected
		c.RejectedAt = ptr(at)
	}), nil
}

func (r *ChallengeRepo) AdminUpdate(ctx context.Context, id int64, p domain.AdminPatch) (bool, error) {
	return r.update(ctx, id, nil, func(c *domain.Challenge) {
		if p.Status != nil {
			c.Status = *p.Status
		}
		if p.SessionDate != nil {
			c.SessionDate = ptr(*p.SessionDate)
		}
		if p.AdminNotes != nil {
			c.AdminNotes = *p.AdminNotes
		}
	}), nil
}

func (r *ChallengeRepo) MarkPaid(ctx context.Context, id int64, at time.Time, note string) error {
	r.update(ctx, id, nil, func(c *domain.Challenge) {
		if c.Status.IsOpen() {
			c.Status = domain.ChallengeAccepted
		}
		if c.AcceptedAt == nil {
			c.AcceptedAt = ptr(at)
		}
		c.AdminNotes = appendNote(c.AdminNotes, note)
	})
	return nil
}

func appendNote(existing, note string) string {
	note = strings.TrimSpace(note)
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

type AccountRepo struct{ s *Store }

func (r *AccountRepo) Create(ctx context.Context, email, hash, name string) (*domain.InviteeAccount, error) {
	defer r.s.lock(ctx)()
	for _, a := range r.s.st.accounts {
		if a.Email == email {
			return nil, fmt.Errorf("%w: account exists, log in instead", domain.ErrConflict)
		}
	}
	a := domain.InviteeAccount{ID: r.s.nextID(), Email: email, PasswordHash: hash, Name: name, CreatedAt: r.s.now()}
	r.s.st.accounts[a.ID] = a
	return &a, nil
}

func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*domain.InviteeAccount, error) {
	defer r.s.lock(ctx)()
	for _, a := range r.s.st.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, nil
}

type BookingRepo struct{ s *Store }

func (r *BookingRepo) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	defer r.s.lock(ctx)()
	b, ok := r.s.st.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *BookingRepo) GetByChallengeID(ctx context.Context, challengeID int64) (*domain.Booking, error) {
	defer r.s.lock(ctx)()
	return r.byChallenge(challengeID), nil
}

func (r *BookingRepo) byChallenge(challengeID int64) *domain.Booking {
	for _, b := range r.s.st.bookings {
		if b.ChallengeID != nil && *b.ChallengeID == challengeID {
			return &b
		}
	}
	return nil
}

func (r *BookingRepo) CreateForChallenge(ctx context.Context, b *domain.Booking) (*domain.Booking, bool, error) {
	defer r.s.lock(ctx)()
	if b.ChallengeID != nil && r.byChallenge(*b.ChallengeID) != nil {
		return nil, false, nil
	}
	stored := *b
	stored.ID = r.s.nextID()
	stored.CreatedAt, stored.UpdatedAt = r.s.now(), r.s.now()
	r.s.st.bookings[stored.ID] = stored
	return &stored, true, nil
}

func (r *BookingRepo) ConfirmPayment(ctx context.Context, id int64, at time.Time, note string) error {
	defer r.s.lock(ctx)()
	b, ok := r.s.st.bookings[id]
	if !ok {
		return nil
	}
	b.Status = domain.BookingConfirmed
	if b.PaidAt == nil {
		b.PaidAt = ptr(at)
	}
	b.Notes = appendNote(b.Notes, note)
	b.UpdatedAt = r.s.now()
	r.s.st.bookings[id] = b
	return nil
}

type GiftCardRepo struct{ s *Store }

func (r *GiftCardRepo) GetByID(ctx context.Context, id int64) (*domain.GiftCardOrder, error) {
	defer r.s.lock(ctx)()
	g, ok := r.s.st.giftCards[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (r *GiftCardRepo) MarkPaid(ctx context.Context, id int64, at time.Time) error {
	defer r.s.lock(ctx)()
	g, ok := r.s.st.giftCards[id]
	if !ok {
		return nil
	}
	g.PaymentStatus = domain.PaymentCompleted
	if g.PaidAt == nil {
		g.PaidAt = ptr(at)
	}
	r.s.st.giftCards[id] = g
	return nil
}

type CatalogRepo struct{ s *Store }

func (r *CatalogRepo) GetPackage(ctx context.Context, id int64) (*domain.Package, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.st.packages[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *CatalogRepo) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	defer r.s.lock(ctx)()
	l, ok := r.s.st.locations[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

type TimelineRepo struct{ s *Store }

func (r *TimelineRepo) Append(ctx context.Context, e *domain.TimelineEvent) error {
	defer r.s.lock(ctx)()
	e.ID = r.s.nextID()
	e.CreatedAt = r.s.now()
	r.s.st.timeline = append(r.s.st.timeline, *e)
	return nil
}

func (r *TimelineRepo) ListByChallenge(ctx context.Context, challengeID int64) ([]domain.TimelineEvent, error) {
	defer r.s.lock(ctx)()
	out := make([]domain.TimelineEvent, 0)
	for _, e := range r.s.st.timeline {
		if e.ChallengeID == challengeID {
			out = append(out, e)
		}
	}
	return out, nil
}

type PaymentRepo struct{ s *Store }

func (r *PaymentRepo) LogNotification(ctx context.Context, n domain.Notification) (int64, error) {
	defer r.s.lock(ctx)()
	e := domain.PaymentLogEntry{ID: r.s.nextID(), Notification: n, Outcome: domain.OutcomePending, ReceivedAt: r.s.now()}
	r.s.st.payments[e.ID] = e
	return e.ID, nil
}

func (r *PaymentRepo) SetOutcome(ctx context.Context, id int64, res domain.PaymentResult, errMsg string) error {
	defer r.s.lock(ctx)()
	e, ok := r.s.st.payments[id]
	if !ok {
		return nil
	}
	e.Outcome = res.Outcome
	e.ResourceType, e.ResourceID = nil, nil
	if res.ResourceType != "" {
		e.ResourceType, e.ResourceID = ptr(res.ResourceType), ptr(res.ResourceID)
	}
	e.Error = errMsg
	e.ProcessedAt = ptr(r.s.now())
	r.s.st.payments[id] = e
	return nil
}

func (r *PaymentRepo) Get(ctx context.Context, id int64) (*domain.PaymentLogEntry, error) {
	defer r.s.lock(ctx)()
	e, ok := r.s.st.payments[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *PaymentRepo) List(ctx context.Context, outcome *domain.PaymentOutcome, limit, offset int) ([]domain.PaymentLogEntry, error) {
	defer r.s.lock(ctx)()
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	all := make([]domain.PaymentLogEntry, 0)
	for _, e := range r.s.st.payments {
		if outcome != nil && e.Outcome != *outcome {
			continue
		}
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return []domain.PaymentLogEntry{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *PaymentRepo) ClaimCompletion(ctx context.Context, rt domain.ResourceType, resourceID, notificationID int64) (bool, error) {
	defer r.s.lock(ctx)()
	key := completionKey{rt: rt, id: resourceID}
	if _, ok := r.s.st.completions[key]; ok {
		return false, nil
	}
	r.s.st.completions[key] = notificationID
	return true, nil
}
