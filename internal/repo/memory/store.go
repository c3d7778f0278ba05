// Package memory is an in-process Store with the same operations as the
// postgres repositories. Transactions are serialised and roll back on error.
//
// It backs service and handler tests only; no binary wires it.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
)

type txKey struct{}

type completionKey struct {
	rt domain.ResourceType
	id int64
}

type state struct {
	seq         int64
	packages    map[int64]domain.Package
	locations   map[int64]domain.Location
	accounts    map[int64]domain.InviteeAccount
	challenges  map[int64]domain.Challenge
	timeline    []domain.TimelineEvent
	bookings    map[int64]domain.Booking
	giftCards   map[int64]domain.GiftCardOrder
	payments    map[int64]domain.PaymentLogEntry
	completions map[completionKey]int64
}

func (s *state) clone() state {
	return state{
		seq:         s.seq,
		packages:    maps.Clone(s.packages),
		locations:   maps.Clone(s.locations),
		accounts:    maps.Clone(s.accounts),
		challenges:  maps.Clone(s.challenges),
		timeline:    slices.Clone(s.timeline),
		bookings:    maps.Clone(s.bookings),
		giftCards:   maps.Clone(s.giftCards),
		payments:    maps.Clone(s.payments),
		completions: maps.Clone(s.completions),
	}
}

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   state
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		now: func() time.Time { return time.Now().UTC() },
		st: state{
			packages:    map[int64]domain.Package{},
			locations:   map[int64]domain.Location{},
			accounts:    map[int64]domain.InviteeAccount{},
			challenges:  map[int64]domain.Challenge{},
			bookings:    map[int64]domain.Booking{},
			giftCards:   map[int64]domain.GiftCardOrder{},
			payments:    map[int64]domain.PaymentLogEntry{},
			completions: map[completionKey]int64{},
		},
	}
}

func (s *Store) Challenges() *ChallengeRepo { return &ChallengeRepo{s: s} }
func (s *Store) Accounts() *AccountRepo     { return &AccountRepo{s: s} }
func (s *Store) Bookings() *BookingRepo     { return &BookingRepo{s: s} }
func (s *Store) GiftCards() *GiftCardRepo   { return &GiftCardRepo{s: s} }
func (s *Store) Catalog() *CatalogRepo      { return &CatalogRepo{s: s} }
func (s *Store) Timeline() *TimelineRepo    { return &TimelineRepo{s: s} }
func (s *Store) Payments() *PaymentRepo     { return &PaymentRepo{s: s} }

// WithinTx runs fn with exclusive access to the store and restores the
// previous state if fn fails. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// lock guards one operation. Outside a transaction it also waits for any
// running transaction, so a rollback never discards unrelated writes.
func (s *Store) lock(ctx context.Context) (unlock func()) {
	if ctx.Value(txKey{}) != nil {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

func (s *Store) nextID() int64 {
	s.st.seq++
	return s.st.seq
}

// AddPackage seeds a package and returns its id.
func (s *Store) AddPackage(p domain.Package) int64 {
	defer s.lock(context.Background())()
	p.ID = s.nextID()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.st.packages[p.ID] = p
	return p.ID
}

func (s *Store) AddLocation(l domain.Location) int64 {
	defer s.lock(context.Background())()
	l.ID = s.nextID()
	s.st.locations[l.ID] = l
	return l.ID
}

func (s *Store) AddGiftCard(g domain.GiftCardOrder) int64 {
	defer s.lock(context.Background())()
	g.ID = s.nextID()
	if g.PaymentStatus == "" {
		g.PaymentStatus = domain.PaymentPending
	}
	g.CreatedAt = s.now()
	s.st.giftCards[g.ID] = g
	return g.ID
}

func (s *Store) AddBooking(b domain.Booking) int64 {
	defer s.lock(context.Background())()
	b.ID = s.nextID()
	b.CreatedAt, b.UpdatedAt = s.now(), s.now()
	s.st.bookings[b.ID] = b
	return b.ID
}

// BookingsForChallenge returns every booking referencing the challenge.
func (s *Store) BookingsForChallenge(challengeID int64) []domain.Booking {
	defer s.lock(context.Background())()
	var out []domain.Booking
	for _, b := range s.st.bookings {
		if b.ChallengeID != nil && *b.ChallengeID == challengeID {
			out = append(out, b)
		}
	}
	return out
}

// SetChallengeDeadline rewrites a deadline, for exercising lazy expiry.
func (s *Store) SetChallengeDeadline(id int64, deadline time.Time) {
	defer s.lock(context.Background())()
	if c, ok := s.st.challenges[id]; ok {
		c.AcceptanceDeadline = deadline
		s.st.challenges[id] = c
	}
}

func ptr[T any](v T) *T { return &v }
