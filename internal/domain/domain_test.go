package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtOrderID(t *testing.T) {
	tests := []struct {
		in        string
		prefix    string
		hasPrefix bool
		id        int64
		valid     bool
	}{
		{"CHALLENGE_42", "CHALLENGE", true, 42, true},
		{"CHALLENGE_42_1700000000", "CHALLENGE", true, 42, true},
		{"GIFTCARD-7", "GIFTCARD", true, 7, true},
		{"999999", "", false, 999999, true},
		{"  15 ", "", false, 15, true},
		{"abc", "", false, 0, false},
		{"CHALLENGE_abc", "CHALLENGE", true, 0, false},
		{"", "", false, 0, false},
		{"BOOKING_0", "BOOKING", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref := ParseExtOrderID(tt.in)
			assert.Equal(t, tt.prefix, ref.Prefix)
			assert.Equal(t, tt.hasPrefix, ref.HasPrefix)
			assert.Equal(t, tt.id, ref.ID)
			assert.Equal(t, tt.valid, ref.Valid)
		})
	}

	assert.True(t, ParseExtOrderID("challenge_3").PrefixIs(PrefixChallenge))
	assert.False(t, ParseExtOrderID("3").PrefixIs(PrefixChallenge))
}

func TestDecodeStringList(t *testing.T) {
	items, state := DecodeStringList([]byte(`["2025-01-10T10:00","2025-01-12T14:00"]`))
	assert.Equal(t, ListOK, state)
	assert.Equal(t, []string{"2025-01-10T10:00", "2025-01-12T14:00"}, items)

	items, state = DecodeStringList(nil)
	assert.Equal(t, ListAbsent, state)
	assert.Empty(t, items)
	assert.NotNil(t, items)

	items, state = DecodeStringList([]byte("null"))
	assert.Equal(t, ListAbsent, state)
	assert.Empty(t, items)

	items, state = DecodeStringList([]byte(`"[\"a\",\"b\"]"`))
	assert.Equal(t, ListOK, state)
	assert.Equal(t, []string{"a", "b"}, items)

	items, state = DecodeStringList([]byte(`{not json`))
	assert.Equal(t, ListCorrupt, state)
	assert.Empty(t, items)
	assert.NotNil(t, items)

	assert.JSONEq(t, `[]`, string(EncodeStringList(nil)))
}

func TestPackageChallengeDiscount(t *testing.T) {
	p := Package{
		BasePrice:      decimal.RequireFromString("400"),
		ChallengePrice: decimal.RequireFromString("300"),
	}
	amount, pct := p.ChallengeDiscount()
	assert.True(t, amount.Equal(decimal.RequireFromString("100")), amount.String())
	assert.True(t, pct.Equal(decimal.RequireFromString("25")), pct.String())

	p.DiscountPercentage = decimal.RequireFromString("30")
	_, pct = p.ChallengeDiscount()
	assert.True(t, pct.Equal(decimal.RequireFromString("30")))

	p.ChallengePrice = decimal.RequireFromString("500")
	amount, _ = p.ChallengeDiscount()
	assert.True(t, amount.IsZero())
}

func TestParseSessionDate(t *testing.T) {
	want := time.Date(2025, 1, 12, 14, 0, 0, 0, time.UTC)
	for _, in := range []string{"2025-01-12T14:00", "2025-01-12T14:00:00", "2025-01-12T14:00:00Z", "2025-01-12T15:00:00+01:00"} {
		got, err := ParseSessionDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	_, err := ParseSessionDate("next tuesday")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestChallengeStatusPredicates(t *testing.T) {
	for _, s := range []ChallengeStatus{ChallengeRejected, ChallengeCompleted, ChallengeExpired} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.IsOpen(), s)
	}
	for _, s := range []ChallengeStatus{ChallengeSent, ChallengeViewed} {
		assert.True(t, s.IsOpen(), s)
		assert.False(t, s.IsTerminal(), s)
	}
	assert.False(t, ChallengeAccepted.IsOpen())
	assert.False(t, ChallengeScheduled.IsTerminal())

	_, ok := ParseChallengeStatus("archived")
	assert.False(t, ok)
}

func TestChallengeBookingContact(t *testing.T) {
	c := Challenge{
		InviterName: "Ann", InviterContact: "ann@example.com", InviterContactType: ContactEmail,
		InviteeName: "Bob", InviteeContact: "+48123456789", InviteeContactType: ContactPhone,
	}
	assert.Equal(t, Contact{Name: "Ann", Email: "ann@example.com"}, c.BookingContact())

	c.InviteeContact, c.InviteeContactType = "bob@example.com", ContactEmail
	assert.Equal(t, Contact{Name: "Bob", Email: "bob@example.com"}, c.BookingContact())

	c.InviterContactType, c.InviteeContactType = ContactPhone, ContactPhone
	c.InviteeContact = "+48123456789"
	assert.Equal(t, Contact{Name: "Bob", Phone: "+48123456789"}, c.BookingContact())
}

func TestChallengeDeadlineAndOffers(t *testing.T) {
	now := time.Now()
	c := Challenge{AcceptanceDeadline: now.Add(-time.Minute), PreferredDates: []string{"2025-01-10T10:00", "garbage"}}
	assert.True(t, c.DeadlinePassed(now))
	assert.False(t, (&Challenge{}).DeadlinePassed(now))

	assert.True(t, c.OffersDate(time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)))
	assert.False(t, c.OffersDate(time.Date(2025, 1, 11, 10, 0, 0, 0, time.UTC)))
}

func TestAuthRequestValidate(t *testing.T) {
	r := AuthRequest{Name: " Eve ", Email: " EVE@Example.com ", Password: "longenough"}
	r.Normalize()
	require.NoError(t, r.Validate())
	assert.Equal(t, AuthRegister, r.Mode)
	assert.Equal(t, "eve@example.com", r.Email)

	short := AuthRequest{Mode: AuthRegister, Name: "Eve", Email: "eve@example.com", Password: "short"}
	assert.ErrorIs(t, short.Validate(), ErrValidation)

	login := AuthRequest{Mode: AuthLogin, Email: "eve@example.com"}
	assert.NoError(t, login.Validate())

	bad := AuthRequest{Mode: "sso", Email: "eve@example.com"}
	assert.ErrorIs(t, bad.Validate(), ErrValidation)
}

func TestCreateChallengeReqValidate(t *testing.T) {
	now := time.Now()
	r := CreateChallengeReq{
		InviterName: " Ann ", InviterContact: "ANN@example.com ", InviterContactType: ContactEmail,
		InviteeName: "Bob", InviteeContact: " +48 123 456 789", InviteeContactType: ContactPhone,
		PackageID: 1, PreferredDates: []string{"2025-01-10T10:00"},
	}
	r.Normalize()
	require.NoError(t, r.Validate(now))
	assert.Equal(t, "ann@example.com", r.InviterContact)
	assert.Equal(t, "Ann", r.InviterName)
	assert.Equal(t, "+48123456789", r.InviteeContact)

	bad := r
	bad.PreferredDates = []string{"soon"}
	assert.ErrorIs(t, bad.Validate(now), ErrValidation)

	bad = r
	bad.InviteeContact = "12-34"
	assert.ErrorIs(t, bad.Validate(now), ErrValidation)

	bad = r
	bad.InviteeContactType = "fax"
	assert.ErrorIs(t, bad.Validate(now), ErrValidation)

	past := now.Add(-time.Hour)
	bad = r
	bad.AcceptanceDeadline = &past
	assert.ErrorIs(t, bad.Validate(now), ErrValidation)
}

func TestDecisionAndAdminRequests(t *testing.T) {
	assert.ErrorIs(t, (&DecisionReq{Action: ActionAccept}).Validate(), ErrValidation)
	assert.NoError(t, (&DecisionReq{Action: ActionReject}).Validate())
	assert.ErrorIs(t, (&DecisionReq{Action: "maybe"}).Validate(), ErrValidation)

	status, date := "scheduled", "2025-01-12T14:00"
	p, err := (&AdminUpdateReq{Status: &status, SessionDate: &date}).Patch()
	require.NoError(t, err)
	assert.Equal(t, ChallengeScheduled, *p.Status)
	assert.Equal(t, 14, p.SessionDate.Hour())
	assert.Nil(t, p.AdminNotes)

	unknown := "archived"
	_, err = (&AdminUpdateReq{Status: &unknown}).Patch()
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+48123456789", NormalizePhone(" +48 (123) 456-789 "))
	assert.Equal(t, "0123456", NormalizePhone("01-23-456"))
	assert.Equal(t, "", NormalizePhone("   "))
	assert.True(t, IsValidPhone("+1 555 0100 200"))
	assert.False(t, IsValidPhone("+123"))
}
