package domain

import (
	"fmt"
	"strings"
	"time"
)

// CreateChallengeReq is the inviter-facing creation payload.
type CreateChallengeReq struct {
	InviterName        string      `json:"inviter_name"`
	InviterContact     string      `json:"inviter_contact"`
	InviterContactType ContactType `json:"inviter_contact_type"`
	InviteeName        string      `json:"invitee_name"`
	InviteeContact     string      `json:"invitee_contact"`
	InviteeContactType ContactType `json:"invitee_contact_type"`
	PackageID          int64       `json:"package_id"`
	LocationID         *int64      `json:"location_id,omitempty"`
	CustomLocation     string      `json:"custom_location,omitempty"`
	PreferredDates     []string    `json:"preferred_dates"`
	AcceptanceDeadline *time.Time  `json:"acceptance_deadline,omitempty"`
}

func (r *CreateChallengeReq) Normalize() {
	r.InviterName = strings.TrimSpace(r.InviterName)
	r.InviteeName = strings.TrimSpace(r.InviteeName)
	r.InviterContact = normalizeContact(r.InviterContact, r.InviterContactType)
	r.InviteeContact = normalizeContact(r.InviteeContact, r.InviteeContactType)
	r.CustomLocation = strings.TrimSpace(r.CustomLocation)
}

func normalizeContact(v string, t ContactType) string {
	switch t {
	case ContactEmail:
		return NormalizeEmail(v)
	case ContactPhone:
		return NormalizePhone(v)
	}
	return strings.TrimSpace(v)
}

func (r *CreateChallengeReq) Validate(now time.Time) error {
	if r.InviterName == "" || r.InviteeName == "" {
		return fmt.Errorf("%w: inviter_name and invitee_name are required", ErrValidation)
	}
	if err := validateContact("inviter", r.InviterContact, r.InviterContactType); err != nil {
		return err
	}
	if err := validateContact("invitee", r.InviteeContact, r.InviteeContactType); err != nil {
		return err
	}
	if r.PackageID <= 0 {
		return fmt.Errorf("%w: package_id is required", ErrValidation)
	}
	for _, d := range r.PreferredDates {
		if _, err := ParseSessionDate(d); err != nil {
			return fmt.Errorf("%w: preferred_dates contains %q", ErrValidation, d)
		}
	}
	if r.AcceptanceDeadline != nil && !r.AcceptanceDeadline.After(now) {
		return fmt.Errorf("%w: acceptance_deadline must be in the future", ErrValidation)
	}
	return nil
}

func validateContact(party, value string, t ContactType) error {
	if _, ok := ParseContactType(string(t)); !ok {
		return fmt.Errorf("%w: %s_contact_type must be email or phone", ErrValidation, party)
	}
	if value == "" {
		return fmt.Errorf("%w: %s_contact is required", ErrValidation, party)
	}
	if t == ContactEmail && !emailRegex.MatchString(value) {
		return fmt.Errorf("%w: %s_contact is not a valid email", ErrValidation, party)
	}
	if t == ContactPhone && !IsValidPhone(value) {
		return fmt.Errorf("%w: %s_contact is not a valid phone number", ErrValidation, party)
	}
	return nil
}

type DecisionAction string

const (
	ActionAccept DecisionAction = "accept"
	ActionReject DecisionAction = "reject"
)

// DecisionReq is the invitee's accept or reject payload.
type DecisionReq struct {
	Action       DecisionAction `json:"action"`
	SelectedDate string         `json:"selected_date,omitempty"`
	AuthRequest
}

func (r *DecisionReq) Validate() error {
	switch r.Action {
	case ActionReject:
		return nil
	case ActionAccept:
		if strings.TrimSpace(r.SelectedDate) == "" {
			return fmt.Errorf("%w: selected_date is required", ErrValidation)
		}
		return nil
	default:
		return fmt.Errorf("%w: action must be accept or reject", ErrValidation)
	}
}

// AdminUpdateReq is the wire form of AdminPatch.
type AdminUpdateReq struct {
	Status      *string `json:"status,omitempty"`
	SessionDate *string `json:"session_date,omitempty"`
	AdminNotes  *string `json:"admin_notes,omitempty"`
}

func (r *AdminUpdateReq) Patch() (AdminPatch, error) {
	var p AdminPatch
	if r.Status != nil {
		s, ok := ParseChallengeStatus(strings.TrimSpace(*r.Status))
		if !ok {
			return p, fmt.Errorf("%w: unknown status %q", ErrValidation, *r.Status)
		}
		p.Status = &s
	}
	if r.SessionDate != nil {
		t, err := ParseSessionDate(*r.SessionDate)
		if err != nil {
			return p, err
		}
		p.SessionDate = &t
	}
	p.AdminNotes = r.AdminNotes
	return p, nil
}
