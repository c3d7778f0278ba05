package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/internal/notify"
	"github.com/diagnosis/photo-challenges/internal/repo/memory"
	"github.com/diagnosis/photo-challenges/internal/timeline"
	"github.com/diagnosis/photo-challenges/pkg/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *fakeNotifier) Send(_ context.Context, msg notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *fakeNotifier) sent() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.msgs...)
}

type fakeEvents struct {
	mu       sync.Mutex
	subjects []string
}

func (e *fakeEvents) Publish(_ context.Context, subject string, _ interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subjects = append(e.subjects, subject)
	return nil
}

// flakyTimeline fails appends while failing is set.
type flakyTimeline struct {
	*timeline.Recorder
	failing atomic.Bool
}

func (f *flakyTimeline) Append(ctx context.Context, challengeID int64, eventType, description string, metadata map[string]any) error {
	if f.failing.Load() {
		return errors.New("timeline unavailable")
	}
	return f.Recorder.Append(ctx, challengeID, eventType, description, metadata)
}

type brokenLog struct {
	PaymentLog
}

func (brokenLog) LogNotification(context.Context, domain.Notification) (int64, error) {
	return 0, errors.New("connection refused")
}

type fixture struct {
	store    *memory.Store
	timeline *flakyTimeline
	notifier *fakeNotifier
	events   *fakeEvents
}

func newFixture() *fixture {
	store := memory.NewStore()
	return &fixture{
		store:    store,
		timeline: &flakyTimeline{Recorder: timeline.NewRecorder(store.Timeline())},
		notifier: &fakeNotifier{},
		events:   &fakeEvents{},
	}
}

func (f *fixture) dispatcher(strict bool) Dispatcher {
	return NewDispatcher(f.deps(strict))
}

func (f *fixture) deps(strict bool) Deps {
	return Deps{
		Tx:            f.store,
		Payments:      f.store.Payments(),
		Bookings:      f.store.Bookings(),
		GiftCards:     f.store.GiftCards(),
		Challenges:    f.store.Challenges(),
		Timeline:      f.timeline,
		Notifier:      f.notifier,
		Events:        f.events,
		StrictPrefix:  strict,
		PublicBaseURL: "https://studio.example.com",
	}
}

func (f *fixture) challenge(t *testing.T) *domain.Challenge {
	t.Helper()
	pkgID := f.store.AddPackage(domain.Package{Name: "Portrait", BasePrice: decimal.NewFromInt(400), ChallengePrice: decimal.NewFromInt(300), Active: true})
	c, err := f.store.Challenges().Create(context.Background(), &domain.Challenge{
		UniqueLink:         fmt.Sprintf("link-%d", pkgID),
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

func (f *fixture) booking() int64 {
	return f.store.AddBooking(domain.Booking{
		Service:     "portrait",
		PackageName: "Portrait",
		Price:       decimal.NewFromInt(300),
		StartsAt:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		EndsAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		ClientName:  "Cara",
		ClientEmail: "cara@example.com",
		Status:      domain.BookingPending,
	})
}

func (f *fixture) paymentEvents(t *testing.T, challengeID int64) int {
	t.Helper()
	evs, err := f.store.Timeline().ListByChallenge(context.Background(), challengeID)
	require.NoError(t, err)
	n := 0
	for _, e := range evs {
		if e.EventType == domain.EventPaymentCompleted {
			n++
		}
	}
	return n
}

func completed(ext string) domain.Notification {
	return domain.Notification{Source: domain.SourcePayU, OrderID: "PAYU-ORD-1", ExtOrderID: ext, Status: "COMPLETED"}
}

func TestChallengePaymentScenario(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(false)
	ctx := context.Background()
	c := f.challenge(t)

	n := completed("CHALLENGE_" + strconv.FormatInt(c.ID, 10))
	res, err := d.Handle(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeHandled, res.Outcome)
	assert.Equal(t, domain.ResourceChallenge, res.ResourceType)
	assert.Equal(t, c.ID, res.ResourceID)

	got, err := f.store.Challenges().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeAccepted, got.Status)
	assert.NotNil(t, got.AcceptedAt)
	assert.Contains(t, got.AdminNotes, "PAYU-ORD-1")
	assert.Equal(t, 1, f.paymentEvents(t, c.ID))

	// redelivery leaves state untouched
	res, err = d.Handle(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)

	again, err := f.store.Challenges().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, got.AdminNotes, again.AdminNotes)
	assert.Equal(t, got.AcceptedAt, again.AcceptedAt)
	assert.Equal(t, 1, f.paymentEvents(t, c.ID))

	logged, err := d.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, logged, 2)
}

func TestUnmatchedNotificationIsLoggedOnly(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(false)
	ctx := context.Background()
	c := f.challenge(t)
	bookingID := f.booking()

	res, err := d.Handle(ctx, completed("999999"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnhandled, res.Outcome)

	got, err := f.store.Challenges().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeSent, got.Status)
	b, err := f.store.Bookings().GetByID(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Empty(t, f.notifier.sent())

	unhandled := domain.OutcomeUnhandled
	logged, err := d.List(ctx, &unhandled, 10, 0)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, "999999", logged[0].Notification.ExtOrderID)
	assert.Empty(t, logged[0].Error)
	assert.Contains(t, f.events.subjects, events.PaymentUnhandled)

	res, err = d.Handle(ctx, completed("not-a-number"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnhandled, res.Outcome)
	assert.Equal(t, int64(2), d.Stats()["payments_unhandled_total"])
	assert.Zero(t, d.Stats()["payments_failed_total"])
}

func TestBookingPaymentSendsOneEmail(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(false)
	ctx := context.Background()
	id := f.booking()
	n := completed(strconv.FormatInt(id, 10))

	res, err := d.Handle(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeHandled, res.Outcome)
	assert.Equal(t, domain.ResourceBooking, res.ResourceType)

	b, err := f.store.Bookings().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	require.NotNil(t, b.PaidAt)
	assert.Contains(t, b.Notes, "PAYU-ORD-1")
	notes := b.Notes

	res, err = d.Handle(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)

	b, err = f.store.Bookings().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notes, b.Notes)

	sent := f.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.TemplateBookingPaid, sent[0].Template)
	assert.Equal(t, "cara@example.com", sent[0].Recipient)

	_, body := notify.Render(sent[0].Template, sent[0].Data)
	assert.Equal(t, "We received 300.00 for booking #"+strconv.FormatInt(id, 10)+", your Portrait session on 2025-03-01 10:00.", body)
}

func TestGiftCardPayment(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(false)
	ctx := context.Background()
	id := f.store.AddGiftCard(domain.GiftCardOrder{
		PurchaserName:  "Dan",
		PurchaserEmail: "dan@example.com",
		RecipientName:  "Eve",
		RecipientEmail: "eve@example.com",
		Amount:         decimal.NewFromInt(250),
		AccessToken:    "tok-123",
		ExpiresAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	n := completed("GIFTCARD-" + strconv.FormatInt(id, 10))

	res, err := d.Handle(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeHandled, res.Outcome)
	assert.Equal(t, domain.ResourceGiftCard, res.ResourceType)

	g, err := f.store.GiftCards().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, g.PaymentStatus)
	assert.NotNil(t, g.PaidAt)

	_, err = d.Handle(ctx, n)
	require.NoError(t, err)

	sent := f.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.TemplateGiftCardAccess, sent[0].Template)
	assert.Equal(t, "eve@example.com", sent[0].Recipient)
	assert.Equal(t, "https://studio.example.com/gift-card/tok-123", sent[0].Data["link"])

	_, body := notify.Render(sent[0].Template, sent[0].Data)
	assert.Contains(t, body, "https://studio.example.com/gift-card/tok-123")
	assert.Contains(t, body, "access code tok-123")
	assert.Contains(t, body, "250.00")
	assert.Contains(t, body, "2026-01-01")
}

func TestNonCompletedStatusIsIgnored(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(false)
	ctx := context.Background()
	id := f.booking()

	n := completed(strconv.FormatInt(id, 10))
	n.Status = "PENDING"
	res, err := d.Handle(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, res.Outcome)

	b, err := f.store.Bookings().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)
}

func TestStrictPrefixSkipsProbing(t *testing.T) {
	ctx := context.Background()

	f := newFixture()
	id := f.booking()
	ext := "CHALLENGE_" + strconv.FormatInt(id, 10)

	res, err := f.dispatcher(true).Handle(ctx, completed(ext))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnhandled, res.Outcome)

	res, err = f.dispatcher(false).Handle(ctx, completed(ext))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeHandled, res.Outcome)
	assert.Equal(t, domain.ResourceBooking, res.ResourceType)
}

func TestLogFailureAbortsBeforeMutation(t *testing.T) {
	f := newFixture()
	deps := f.deps(false)
	deps.Payments = brokenLog{PaymentLog: f.store.Payments()}
	d := NewDispatcher(deps)
	ctx := context.Background()
	id := f.booking()

	_, err := d.Handle(ctx, completed(strconv.FormatInt(id, 10)))
	require.Error(t, err)

	b, err := f.store.Bookings().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)
}

func TestFailedApplyRollsBackAndReplays(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(false)
	ctx := context.Background()
	c := f.challenge(t)

	f.timeline.failing.Store(true)
	_, err := d.Handle(ctx, completed("CHALLENGE_"+strconv.FormatInt(c.ID, 10)))
	require.Error(t, err)

	got, err := f.store.Challenges().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeSent, got.Status)
	assert.Empty(t, got.AdminNotes)

	failed := domain.OutcomeFailed
	logged, err := d.List(ctx, &failed, 10, 0)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.NotEmpty(t, logged[0].Error)

	f.timeline.failing.Store(false)
	res, err := d.Replay(ctx, logged[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeHandled, res.Outcome)
	assert.Equal(t, 1, f.paymentEvents(t, c.ID))

	res, err = d.Replay(ctx, logged[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeHandled, res.Outcome)
	assert.Equal(t, 1, f.paymentEvents(t, c.ID))

	entry, err := d.Get(ctx, logged[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeHandled, entry.Outcome)
	assert.Empty(t, entry.Error)

	_, err = d.Replay(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentRedeliveryAppliesOnce(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(false)
	id := f.booking()
	n := completed(strconv.FormatInt(id, 10))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Handle(context.Background(), n)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.notifier.sent(), 1)
	stats := d.Stats()
	assert.Equal(t, int64(1), stats["payments_handled_total"])
	assert.Equal(t, int64(9), stats["payments_duplicate_total"])
}
