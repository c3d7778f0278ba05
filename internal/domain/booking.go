package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCanceled  BookingStatus = "canceled"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingPending, BookingConfirmed, BookingCompleted, BookingCanceled:
		return BookingStatus(s), true
	default:
		return "", false
	}
}

// ServicePhotoChallenge is the service label of bookings derived from challenges.
const ServicePhotoChallenge = "photo_challenge"

type Booking struct {
	ID          int64           `json:"id"`
	Service     string          `json:"service"`
	PackageName string          `json:"package_name"`
	Price       decimal.Decimal `json:"price"`
	StartsAt    time.Time       `json:"starts_at"`
	EndsAt      time.Time       `json:"ends_at"`
	ClientName  string          `json:"client_name"`
	ClientEmail string          `json:"client_email"`
	ClientPhone string          `json:"client_phone"`
	ChallengeID *int64          `json:"challenge_id,omitempty"`
	Status      BookingStatus   `json:"status"`
	Notes       string          `json:"notes"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Date is the calendar day of the session in the booking's own location.
func (b *Booking) Date() string {
	return b.StartsAt.Format("2006-01-02")
}

// IsPaid reports whether a payment has already been applied to the booking.
func (b *Booking) IsPaid() bool {
	return b.PaidAt != nil
}
