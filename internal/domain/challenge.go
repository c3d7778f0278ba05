package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ChallengeStatus string

const (
	ChallengeSent      ChallengeStatus = "sent"
	ChallengeViewed    ChallengeStatus = "viewed"
	ChallengeAccepted  ChallengeStatus = "accepted"
	ChallengeRejected  ChallengeStatus = "rejected"
	ChallengeScheduled ChallengeStatus = "scheduled"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeExpired   ChallengeStatus = "expired"
)

func ParseChallengeStatus(s string) (ChallengeStatus, bool) {
	switch ChallengeStatus(s) {
	case ChallengeSent, ChallengeViewed, ChallengeAccepted, ChallengeRejected,
		ChallengeScheduled, ChallengeCompleted, ChallengeExpired:
		return ChallengeStatus(s), true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transition may leave the status.
func (s ChallengeStatus) IsTerminal() bool {
	return s == ChallengeRejected || s == ChallengeCompleted || s == ChallengeExpired
}

// IsOpen reports whether the invitee can still decide. Only open challenges
// can be accepted, rejected or expired.
func (s ChallengeStatus) IsOpen() bool {
	return s == ChallengeSent || s == ChallengeViewed
}

type ContactType string

const (
	ContactEmail ContactType = "email"
	ContactPhone ContactType = "phone"
)

func ParseContactType(s string) (ContactType, bool) {
	switch ContactType(s) {
	case ContactEmail, ContactPhone:
		return ContactType(s), true
	default:
		return "", false
	}
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

// Challenge is a shareable, time-boxed invitation to a discounted photo session.
type Challenge struct {
	ID                 int64           `json:"id"`
	UniqueLink         string          `json:"unique_link"`
	InviterName        string          `json:"inviter_name"`
	InviterContact     string          `json:"inviter_contact"`
	InviterContactType ContactType     `json:"inviter_contact_type"`
	InviteeName        string          `json:"invitee_name"`
	InviteeContact     string          `json:"invitee_contact"`
	InviteeContactType ContactType     `json:"invitee_contact_type"`
	PackageID          int64           `json:"package_id"`
	Package            *Package        `json:"package,omitempty"`
	LocationID         *int64          `json:"location_id,omitempty"`
	Location           *Location       `json:"location,omitempty"`
	CustomLocation     string          `json:"custom_location,omitempty"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	PreferredDates     []string        `json:"preferred_dates"`
	SessionDate        *time.Time      `json:"session_date,omitempty"`
	AcceptanceDeadline time.Time       `json:"acceptance_deadline"`
	Status             ChallengeStatus `json:"status"`
	ViewedAt           *time.Time      `json:"viewed_at,omitempty"`
	AcceptedAt         *time.Time      `json:"accepted_at,omitempty"`
	RejectedAt         *time.Time      `json:"rejected_at,omitempty"`
	AdminNotes         string          `json:"admin_notes,omitempty"`
	InviteeUserID      *int64          `json:"invitee_user_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// DeadlinePassed reports whether the acceptance deadline lies before now.
// A zero deadline never passes.
func (c *Challenge) DeadlinePassed(now time.Time) bool {
	return !c.AcceptanceDeadline.IsZero() && now.After(c.AcceptanceDeadline)
}

// OffersDate reports whether t matches one of the inviter's preferred dates.
// Entries that cannot be parsed are ignored.
func (c *Challenge) OffersDate(t time.Time) bool {
	for _, raw := range c.PreferredDates {
		if d, err := ParseSessionDate(raw); err == nil && d.Equal(t) {
			return true
		}
	}
	return false
}

// BookingContact picks the party a booking is made out to, preferring the
// email-typed contact. The invitee wins when both have an email.
func (c *Challenge) BookingContact() Contact {
	switch {
	case c.InviteeContactType == ContactEmail:
		return Contact{Name: c.InviteeName, Email: c.InviteeContact}
	case c.InviterContactType == ContactEmail:
		return Contact{Name: c.InviterName, Email: c.InviterContact}
	default:
		return Contact{Name: c.InviteeName, Phone: c.InviteeContact}
	}
}

// InviterEmail returns the inviter's email address, or "" for phone contacts.
func (c *Challenge) InviterEmail() string {
	if c.InviterContactType == ContactEmail {
		return c.InviterContact
	}
	return ""
}

// InviteeEmail returns the invitee's email address, or "" for phone contacts.
func (c *Challenge) InviteeEmail() string {
	if c.InviteeContactType == ContactEmail {
		return c.InviteeContact
	}
	return ""
}

// LocationLabel is the human readable place of the session.
func (c *Challenge) LocationLabel() string {
	if c.Location != nil {
		return c.Location.Name
	}
	return c.CustomLocation
}

var sessionDateLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
}

// ParseSessionDate accepts the date-time formats offered by the inviter form.
// Values without a zone are read as UTC.
func ParseSessionDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range sessionDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrValidation, s)
}

type AcceptParams struct {
	AcceptedAt    time.Time
	InviteeUserID int64
	SessionDate   time.Time
}

// AdminPatch carries the optional fields of an admin update.
type AdminPatch struct {
	Status      *ChallengeStatus
	SessionDate *time.Time
	AdminNotes  *string
}

func (p AdminPatch) IsEmpty() bool {
	return p.Status == nil && p.SessionDate == nil && p.AdminNotes == nil
}

type ChallengeFilter struct {
	Status *ChallengeStatus
	Limit  int
	Offset int
}
