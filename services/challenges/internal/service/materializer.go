package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
)

// Materializer turns a scheduled challenge into exactly one booking.
type Materializer struct {
	bookings      BookingStore
	timeline      Timeline
	sessionLength time.Duration
}

func NewMaterializer(bookings BookingStore, timeline Timeline, sessionLength time.Duration) *Materializer {
	if sessionLength <= 0 {
		sessionLength = 2 * time.Hour
	}
	return &Materializer{bookings: bookings, timeline: timeline, sessionLength: sessionLength}
}

// Materialize must run in the same transaction as the status write. It
// returns the booking and whether this call created it.
func (m *Materializer) Materialize(ctx context.Context, c *domain.Challenge) (*domain.Booking, bool, error) {
	if c.SessionDate == nil {
		return nil, false, fmt.Errorf("%w: session_date is required to schedule", domain.ErrValidation)
	}
	if c.Package == nil {
		return nil, false, fmt.Errorf("challenge %d has no package loaded", c.ID)
	}

	existing, err := m.bookings.GetByChallengeID(ctx, c.ID)
	if err != nil {
		return nil, false, fmt.Errorf("find booking: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	contact := c.BookingContact()
	challengeID := c.ID
	b, created, err := m.bookings.CreateForChallenge(ctx, &domain.Booking{
		Service:     domain.ServicePhotoChallenge,
		PackageName: c.Package.Name,
		Price:       c.Package.ChallengePrice,
		StartsAt:    *c.SessionDate,
		EndsAt:      c.SessionDate.Add(m.sessionLength),
		ClientName:  contact.Name,
		ClientEmail: contact.Email,
		ClientPhone: contact.Phone,
		ChallengeID: &challengeID,
		Status:      domain.BookingConfirmed,
		Notes:       fmt.Sprintf("Created from photo challenge #%d", c.ID),
	})
	if err != nil {
		return nil, false, fmt.Errorf("create booking: %w", err)
	}
	if !created {
		// lost a race with a concurrent save
		existing, err := m.bookings.GetByChallengeID(ctx, c.ID)
		return existing, false, err
	}

	if err := m.timeline.Append(ctx, c.ID, domain.EventBookingCreated,
		fmt.Sprintf("Booking #%d created for %s", b.ID, b.StartsAt.Format("2006-01-02 15:04")),
		map[string]any{"booking_id": b.ID, "price": b.Price.String()},
	); err != nil {
		return nil, false, err
	}
	return b, true, nil
}
