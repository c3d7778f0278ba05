package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/internal/notify"
	"github.com/diagnosis/photo-challenges/internal/repo/memory"
	"github.com/diagnosis/photo-challenges/internal/timeline"
	"github.com/diagnosis/photo-challenges/pkg/auth"
	mw "github.com/diagnosis/photo-challenges/pkg/middleware"
	"github.com/diagnosis/photo-challenges/services/payments/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	jwtSecret     = "test-secret"
	secondKey     = "payu-second-key"
	webhookSecret = "whsec_test"
)

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, notify.Message) {}

type nopEvents struct{}

func (nopEvents) Publish(context.Context, string, interface{}) error { return nil }

func newRouter(d service.Dispatcher) http.Handler {
	r := chi.NewRouter()
	New(d, Options{SecondKey: secondKey, StripeWebhookSecret: webhookSecret}).
		Routes(r, mw.RequireRole(jwtSecret, auth.RoleAdmin))
	return r
}

func newDispatcher(store *memory.Store) service.Dispatcher {
	return service.NewDispatcher(service.Deps{
		Tx:         store,
		Payments:   store.Payments(),
		Bookings:   store.Bookings(),
		GiftCards:  store.GiftCards(),
		Challenges: store.Challenges(),
		Timeline:   timeline.NewRecorder(store.Timeline()),
		Notifier:   nopNotifier{},
		Events:     nopEvents{},
	})
}

func payuBody(ext, status string) string {
	return fmt.Sprintf(`{"order":{"orderId":"ORD-9","extOrderId":%q,"status":%q,"totalAmount":"30000","currencyCode":"PLN"}}`, ext, status)
}

func payuSignature(body string) string {
	sum := md5.Sum([]byte(body + secondKey))
	return "sender=checkout;signature=" + hex.EncodeToString(sum[:]) + ";algorithm=MD5;content=DOCUMENT"
}

func postPayU(t *testing.T, h http.Handler, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payment/notify", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedChallenge(t *testing.T, store *memory.Store) *domain.Challenge {
	t.Helper()
	pkgID := store.AddPackage(domain.Package{Name: "Portrait", BasePrice: decimal.NewFromInt(400), ChallengePrice: decimal.NewFromInt(300), Active: true})
	c, err := store.Challenges().Create(context.Background(), &domain.Challenge{
		UniqueLink:         "link-pay",
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

func TestPayUNotifyHandlesChallenge(t *testing.T) {
	store := memory.NewStore()
	h := newRouter(newDispatcher(store))
	c := seedChallenge(t, store)

	body := payuBody("CHALLENGE_"+strconv.FormatInt(c.ID, 10), "COMPLETED")
	rec := postPayU(t, h, body, payuSignature(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	got, err := store.Challenges().GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeAccepted, got.Status)
	assert.Contains(t, got.AdminNotes, "ORD-9")
}

func TestPayUNotifyUnmatchedStillSucceeds(t *testing.T) {
	store := memory.NewStore()
	h := newRouter(newDispatcher(store))

	body := payuBody("999999", "COMPLETED")
	rec := postPayU(t, h, body, payuSignature(body))
	assert.Equal(t, http.StatusOK, rec.Code)

	entries, err := store.Payments().List(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.OutcomeUnhandled, entries[0].Outcome)
	assert.JSONEq(t, body, string(entries[0].Notification.Payload))
}

func TestPayUNotifyRejectsBadSignature(t *testing.T) {
	store := memory.NewStore()
	h := newRouter(newDispatcher(store))

	body := payuBody("1", "COMPLETED")
	for _, sig := range []string{"", "sender=checkout;signature=deadbeef;algorithm=MD5", payuSignature(body + " ")} {
		rec := postPayU(t, h, body, sig)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	entries, err := store.Payments().List(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPayUNotifyInvalidJSON(t *testing.T) {
	h := newRouter(newDispatcher(memory.NewStore()))
	body := "{not json"
	rec := postPayU(t, h, body, payuSignature(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingDispatcher struct {
	service.Dispatcher
}

func (failingDispatcher) Handle(context.Context, domain.Notification) (*domain.PaymentResult, error) {
	return nil, errors.New("store unavailable")
}

func TestPayUNotifyStoreFailure(t *testing.T) {
	h := newRouter(failingDispatcher{})
	body := payuBody("1", "COMPLETED")
	rec := postPayU(t, h, body, payuSignature(body))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func stripeHeader(payload string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeCheckoutCompleted(t *testing.T) {
	store := memory.NewStore()
	h := newRouter(newDispatcher(store))
	bookingID := store.AddBooking(domain.Booking{
		PackageName: "Portrait", Price: decimal.NewFromInt(300), ClientName: "Cara",
		ClientEmail: "cara@example.com", Status: domain.BookingPending,
	})

	payload := fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "client_reference_id": "BOOKING_%d",
    "payment_status": "paid",
    "amount_total": 30000,
    "currency": "pln"
  }}
}`, bookingID)

	req := httptest.NewRequest(http.MethodPost, "/payment/stripe/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeHeader(payload, time.Now()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	b, err := store.Bookings().GetByID(context.Background(), bookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, b.Status)

	entries, err := store.Payments().List(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SourceStripe, entries[0].Notification.Source)
	assert.Equal(t, "cs_test_1", entries[0].Notification.OrderID)
	assert.Equal(t, "300.00", entries[0].Notification.TotalAmount)
	assert.Equal(t, "PLN", entries[0].Notification.Currency)
}

func TestStripeRejectsBadSignature(t *testing.T) {
	h := newRouter(newDispatcher(memory.NewStore()))
	req := httptest.NewRequest(http.MethodPost, "/payment/stripe/webhook", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminPaymentRoutes(t *testing.T) {
	store := memory.NewStore()
	h := newRouter(newDispatcher(store))
	admin, err := auth.NewAccessToken(1, "admin@example.com", auth.RoleAdmin, "", "test", jwtSecret, time.Hour)
	require.NoError(t, err)

	body := payuBody("999999", "COMPLETED")
	require.Equal(t, http.StatusOK, postPayU(t, h, body, payuSignature(body)).Code)

	do := func(method, path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/admin/payments", "").Code)

	rec := do(http.MethodGet, "/admin/payments?outcome=unhandled", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []domain.PaymentLogEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 1)
	id := strconv.FormatInt(entries[0].ID, 10)

	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/admin/payments?outcome=lost", admin).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/admin/payments/"+id, admin).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/admin/payments/424242", admin).Code)

	rec = do(http.MethodPost, "/admin/payments/"+id+"/replay", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"unhandled"`)
}
