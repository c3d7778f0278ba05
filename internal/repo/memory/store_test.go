package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChallenge(t *testing.T, s *Store) *domain.Challenge {
	t.Helper()
	pkgID := s.AddPackage(domain.Package{Name: "Portrait", BasePrice: decimal.NewFromInt(400), ChallengePrice: decimal.NewFromInt(300), Active: true})
	c, err := s.Challenges().Create(context.Background(), &domain.Challenge{
		UniqueLink:         "link-1",
		InviterName:        "Ann",
		InviterContact:     "ann@example.com",
		InviterContactType: domain.ContactEmail,
		InviteeName:        "Bob",
		InviteeContact:     "bob@example.com",
		InviteeContactType: domain.ContactEmail,
		PackageID:          pkgID,
		AcceptanceDeadline: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return c
}

func TestWithinTxRollsBack(t *testing.T) {
	s := NewStore()
	c := seedChallenge(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.Challenges().Reject(ctx, c.ID, time.Now())
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Challenges().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeSent, got.Status)
	assert.Nil(t, got.RejectedAt)
}

func TestChallengeConditionalUpdates(t *testing.T) {
	s := NewStore()
	c := seedChallenge(t, s)
	ctx := context.Background()
	repo := s.Challenges()

	ok, _ := repo.MarkViewed(ctx, c.ID, time.Now())
	assert.True(t, ok)
	ok, _ = repo.MarkViewed(ctx, c.ID, time.Now())
	assert.False(t, ok)

	ok, _ = repo.Reject(ctx, c.ID, time.Now())
	assert.True(t, ok)
	ok, _ = repo.Expire(ctx, c.ID)
	assert.False(t, ok)
	ok, _ = repo.Accept(ctx, c.ID, domain.AcceptParams{AcceptedAt: time.Now(), InviteeUserID: 1, SessionDate: time.Now()})
	assert.False(t, ok)

	got, _ := repo.GetByID(ctx, c.ID)
	assert.Equal(t, domain.ChallengeRejected, got.Status)
	require.NotNil(t, got.Package)
	assert.Equal(t, "Portrait", got.Package.Name)
}

func TestCreateForChallengeDedupsConcurrently(t *testing.T) {
	s := NewStore()
	c := seedChallenge(t, s)

	var wg sync.WaitGroup
	created := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Bookings().CreateForChallenge(context.Background(), &domain.Booking{ChallengeID: &c.ID, Status: domain.BookingPending})
			assert.NoError(t, err)
			created <- ok
		}()
	}
	wg.Wait()
	close(created)

	n := 0
	for ok := range created {
		if ok {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Len(t, s.BookingsForChallenge(c.ID), 1)
}

func TestClaimCompletionOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Payments()

	first, err := repo.ClaimCompletion(ctx, domain.ResourceChallenge, 42, 1)
	require.NoError(t, err)
	second, err := repo.ClaimCompletion(ctx, domain.ResourceChallenge, 42, 2)
	require.NoError(t, err)
	other, err := repo.ClaimCompletion(ctx, domain.ResourceBooking, 42, 2)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, other)
}

func TestAccountEmailUnique(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.Accounts().Create(ctx, "eve@example.com", "h", "Eve")
	require.NoError(t, err)
	_, err = s.Accounts().Create(ctx, "eve@example.com", "h", "Eve")
	assert.ErrorIs(t, err, domain.ErrConflict)
}
