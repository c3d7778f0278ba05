package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/internal/notify"
	"github.com/diagnosis/photo-challenges/pkg/events"
	"github.com/diagnosis/photo-challenges/pkg/logger"
)

// Dispatcher reconciles gateway notifications with bookings, gift cards and
// challenges. Every notification is logged before anything is mutated.
type Dispatcher interface {
	Handle(ctx context.Context, n domain.Notification) (*domain.PaymentResult, error)
	Replay(ctx context.Context, id int64) (*domain.PaymentResult, error)
	Get(ctx context.Context, id int64) (*domain.PaymentLogEntry, error)
	List(ctx context.Context, outcome *domain.PaymentOutcome, limit, offset int) ([]domain.PaymentLogEntry, error)
	Stats() map[string]int64
}

type Deps struct {
	Tx         Transactor
	Payments   PaymentLog
	Bookings   BookingStore
	GiftCards  GiftCardStore
	Challenges ChallengeStore
	Timeline   Timeline
	Notifier   Notifier
	Events     Publisher
	// StrictPrefix routes typed extOrderId prefixes straight to their
	// resource instead of probing bookings and gift cards first.
	StrictPrefix  bool
	PublicBaseURL string
	Now           func() time.Time
}

type counters struct {
	handled   atomic.Int64
	duplicate atomic.Int64
	unhandled atomic.Int64
	ignored   atomic.Int64
	failed    atomic.Int64
}

type dispatcher struct {
	Deps
	stats counters
}

func NewDispatcher(d Deps) Dispatcher {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &dispatcher{Deps: d}
}

func (d *dispatcher) Handle(ctx context.Context, n domain.Notification) (*domain.PaymentResult, error) {
	id, err := d.Payments.LogNotification(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("log notification: %w", err)
	}
	return d.process(ctx, id, n)
}

// Replay re-runs a logged notification. Handled entries are returned as
// recorded; completion claims keep every other replay from applying twice.
func (d *dispatcher) Replay(ctx context.Context, id int64) (*domain.PaymentResult, error) {
	entry, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Outcome == domain.OutcomeHandled {
		res := domain.PaymentResult{Outcome: entry.Outcome}
		if entry.ResourceType != nil && entry.ResourceID != nil {
			res.ResourceType, res.ResourceID = *entry.ResourceType, *entry.ResourceID
		}
		return &res, nil
	}
	logger.InfoContext(ctx, "Replaying payment notification", "notification_id", id, "previous_outcome", entry.Outcome)
	return d.process(ctx, id, entry.Notification)
}

func (d *dispatcher) Get(ctx context.Context, id int64) (*domain.PaymentLogEntry, error) {
	entry, err := d.Payments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load notification: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: payment notification %d", domain.ErrNotFound, id)
	}
	return entry, nil
}

func (d *dispatcher) List(ctx context.Context, outcome *domain.PaymentOutcome, limit, offset int) ([]domain.PaymentLogEntry, error) {
	return d.Payments.List(ctx, outcome, limit, offset)
}

func (d *dispatcher) process(ctx context.Context, id int64, n domain.Notification) (*domain.PaymentResult, error) {
	if !n.IsCompleted() {
		res := domain.PaymentResult{Outcome: domain.OutcomeIgnored}
		d.record(ctx, id, n, res, "")
		return &res, nil
	}

	ref := domain.ParseExtOrderID(n.ExtOrderID)
	var (
		res   domain.PaymentResult
		after []func()
	)
	err := d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		after = nil
		var err error
		res, err = d.resolve(ctx, id, n, ref, &after)
		return err
	})
	if errors.Is(err, domain.ErrUnrecognizedNotification) {
		res = domain.PaymentResult{Outcome: domain.OutcomeUnhandled}
		d.record(ctx, id, n, res, "")
		return &res, nil
	}
	if err != nil {
		d.record(ctx, id, n, domain.PaymentResult{Outcome: domain.OutcomeFailed}, err.Error())
		return nil, fmt.Errorf("apply notification %d: %w", id, err)
	}

	d.record(ctx, id, n, res, "")
	for _, fn := range after {
		fn()
	}
	return &res, nil
}

// candidates lists the resource types to probe, in order.
func (d *dispatcher) candidates(ref domain.ExtOrderRef) []domain.ResourceType {
	if !ref.Valid {
		return nil
	}
	if d.StrictPrefix {
		switch {
		case ref.PrefixIs(domain.PrefixBooking):
			return []domain.ResourceType{domain.ResourceBooking}
		case ref.PrefixIs(domain.PrefixGiftCard):
			return []domain.ResourceType{domain.ResourceGiftCard}
		case ref.PrefixIs(domain.PrefixChallenge):
			return []domain.ResourceType{domain.ResourceChallenge}
		}
	}
	out := []domain.ResourceType{domain.ResourceBooking, domain.ResourceGiftCard}
	if ref.PrefixIs(domain.PrefixChallenge) {
		out = append(out, domain.ResourceChallenge)
	}
	return out
}

func (d *dispatcher) resolve(ctx context.Context, notificationID int64, n domain.Notification, ref domain.ExtOrderRef, after *[]func()) (domain.PaymentResult, error) {
	for _, rt := range d.candidates(ref) {
		var (
			res   domain.PaymentResult
			found bool
			err   error
		)
		switch rt {
		case domain.ResourceBooking:
			res, found, err = d.completeBooking(ctx, notificationID, n, ref.ID, after)
		case domain.ResourceGiftCard:
			res, found, err = d.completeGiftCard(ctx, notificationID, ref.ID, after)
		case domain.ResourceChallenge:
			res, found, err = d.completeChallenge(ctx, notificationID, n, ref.ID, after)
		}
		if err != nil {
			return domain.PaymentResult{}, err
		}
		if found {
			return res, nil
		}
	}
	return domain.PaymentResult{}, fmt.Errorf("%w: extOrderId %q", domain.ErrUnrecognizedNotification, n.ExtOrderID)
}

// claim records the completion of a resource. A false return means the
// completion was already applied by an earlier delivery.
func (d *dispatcher) claim(ctx context.Context, rt domain.ResourceType, resourceID, notificationID int64) (bool, error) {
	ok, err := d.Payments.ClaimCompletion(ctx, rt, resourceID, notificationID)
	if err != nil {
		return false, fmt.Errorf("claim %s %d: %w", rt, resourceID, err)
	}
	return ok, nil
}

func (d *dispatcher) completeBooking(ctx context.Context, notificationID int64, n domain.Notification, id int64, after *[]func()) (domain.PaymentResult, bool, error) {
	b, err := d.Bookings.GetByID(ctx, id)
	if err != nil {
		return domain.PaymentResult{}, false, fmt.Errorf("load booking: %w", err)
	}
	if b == nil {
		return domain.PaymentResult{}, false, nil
	}
	res := domain.PaymentResult{Outcome: domain.OutcomeDuplicate, ResourceType: domain.ResourceBooking, ResourceID: b.ID}

	claimed, err := d.claim(ctx, domain.ResourceBooking, b.ID, notificationID)
	if err != nil || !claimed || b.IsPaid() {
		return res, true, err
	}
	note := fmt.Sprintf("Payment completed via %s order %s", n.Source, n.OrderID)
	if err := d.Bookings.ConfirmPayment(ctx, b.ID, d.Now(), note); err != nil {
		return domain.PaymentResult{}, false, fmt.Errorf("confirm booking: %w", err)
	}

	*after = append(*after, func() {
		d.Notifier.Send(ctx, notify.Message{
			Template:  notify.TemplateBookingPaid,
			Recipient: b.ClientEmail,
			Name:      b.ClientName,
			Data: map[string]any{
				"booking_id":   b.ID,
				"package_name": b.PackageName,
				"session_date": b.StartsAt.Format("2006-01-02 15:04"),
				"amount":       b.Price.StringFixed(2),
			},
		})
	})
	res.Outcome = domain.OutcomeHandled
	return res, true, nil
}

func (d *dispatcher) completeGiftCard(ctx context.Context, notificationID, id int64, after *[]func()) (domain.PaymentResult, bool, error) {
	g, err := d.GiftCards.GetByID(ctx, id)
	if err != nil {
		return domain.PaymentResult{}, false, fmt.Errorf("load gift card order: %w", err)
	}
	if g == nil {
		return domain.PaymentResult{}, false, nil
	}
	res := domain.PaymentResult{Outcome: domain.OutcomeDuplicate, ResourceType: domain.ResourceGiftCard, ResourceID: g.ID}

	claimed, err := d.claim(ctx, domain.ResourceGiftCard, g.ID, notificationID)
	if err != nil || !claimed || g.PaymentStatus == domain.PaymentCompleted {
		return res, true, err
	}
	if err := d.GiftCards.MarkPaid(ctx, g.ID, d.Now()); err != nil {
		return domain.PaymentResult{}, false, fmt.Errorf("mark gift card paid: %w", err)
	}

	name, email := g.AccessEmail()
	*after = append(*after, func() {
		d.Notifier.Send(ctx, notify.Message{
			Template:  notify.TemplateGiftCardAccess,
			Recipient: email,
			Name:      name,
			Data: map[string]any{
				"amount":       g.Amount.StringFixed(2),
				"access_token": g.AccessToken,
				"link":         strings.TrimRight(d.PublicBaseURL, "/") + "/gift-card/" + g.AccessToken,
				"expires_at":   g.ExpiresAt.Format("2006-01-02"),
			},
		})
	})
	res.Outcome = domain.OutcomeHandled
	return res, true, nil
}

func (d *dispatcher) completeChallenge(ctx context.Context, notificationID int64, n domain.Notification, id int64, after *[]func()) (domain.PaymentResult, bool, error) {
	c, err := d.Challenges.GetByID(ctx, id)
	if err != nil {
		return domain.PaymentResult{}, false, fmt.Errorf("load challenge: %w", err)
	}
	if c == nil {
		return domain.PaymentResult{}, false, nil
	}
	res := domain.PaymentResult{Outcome: domain.OutcomeDuplicate, ResourceType: domain.ResourceChallenge, ResourceID: c.ID}

	claimed, err := d.claim(ctx, domain.ResourceChallenge, c.ID, notificationID)
	if err != nil || !claimed {
		return res, true, err
	}
	note := fmt.Sprintf("Payment completed, gateway order %s", n.OrderID)
	if err := d.Challenges.MarkPaid(ctx, c.ID, d.Now(), note); err != nil {
		return domain.PaymentResult{}, false, fmt.Errorf("mark challenge paid: %w", err)
	}
	if err := d.Timeline.Append(ctx, c.ID, domain.EventPaymentCompleted,
		fmt.Sprintf("Payment completed for gateway order %s", n.OrderID),
		map[string]any{
			"order_id":        n.OrderID,
			"ext_order_id":    n.ExtOrderID,
			"source":          n.Source,
			"notification_id": notificationID,
		},
	); err != nil {
		return domain.PaymentResult{}, false, err
	}
	res.Outcome = domain.OutcomeHandled
	return res, true, nil
}

// record stores the outcome on the audit row, counts it and publishes it.
// The domain effect has already committed, so failures here are only logged.
func (d *dispatcher) record(ctx context.Context, id int64, n domain.Notification, res domain.PaymentResult, errMsg string) {
	if err := d.Payments.SetOutcome(ctx, id, res, errMsg); err != nil {
		logger.ErrorContext(ctx, "Failed to record payment outcome", "error", err, "notification_id", id)
	}

	switch res.Outcome {
	case domain.OutcomeHandled:
		d.stats.handled.Add(1)
	case domain.OutcomeDuplicate:
		d.stats.duplicate.Add(1)
	case domain.OutcomeUnhandled:
		d.stats.unhandled.Add(1)
	case domain.OutcomeIgnored:
		d.stats.ignored.Add(1)
	case domain.OutcomeFailed:
		d.stats.failed.Add(1)
	}

	attrs := []any{
		"notification_id", id,
		"source", n.Source,
		"order_id", n.OrderID,
		"ext_order_id", n.ExtOrderID,
		"outcome", res.Outcome,
	}
	if res.ResourceType != "" {
		attrs = append(attrs, "resource_type", res.ResourceType, "resource_id", res.ResourceID)
	}
	switch res.Outcome {
	case domain.OutcomeFailed:
		logger.ErrorContext(ctx, "Payment notification failed", append(attrs, "error", errMsg)...)
	case domain.OutcomeUnhandled:
		logger.WarnContext(ctx, "Payment notification matched no resource", attrs...)
	default:
		logger.InfoContext(ctx, "Payment notification processed", attrs...)
	}

	subject := ""
	switch res.Outcome {
	case domain.OutcomeHandled:
		subject = events.PaymentCompleted
	case domain.OutcomeUnhandled:
		subject = events.PaymentUnhandled
	default:
		return
	}
	if err := d.Events.Publish(ctx, subject, events.PaymentCompletedEvent{
		NotificationID: id,
		Source:         n.Source,
		OrderID:        n.OrderID,
		ExtOrderID:     n.ExtOrderID,
		ResourceType:   string(res.ResourceType),
		ResourceID:     res.ResourceID,
		Outcome:        string(res.Outcome),
		ProcessedAt:    d.Now(),
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to publish payment event", "error", err, "notification_id", id)
	}
}

func (d *dispatcher) Stats() map[string]int64 {
	return map[string]int64{
		"payments_handled_total":   d.stats.handled.Load(),
		"payments_duplicate_total": d.stats.duplicate.Load(),
		"payments_unhandled_total": d.stats.unhandled.Load(),
		"payments_ignored_total":   d.stats.ignored.Load(),
		"payments_failed_total":    d.stats.failed.Load(),
	}
}
