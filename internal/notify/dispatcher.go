// Package notify delivers best-effort notifications. The Dispatcher queues
// them on the event bus without blocking callers; the Worker sends them.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/pkg/events"
	"github.com/diagnosis/photo-challenges/pkg/logger"
)

const (
	TemplateChallengeInvitation = "challenge_invitation"
	TemplateChallengeAccepted   = "challenge_accepted"
	TemplateChallengeScheduled  = "challenge_scheduled"
	TemplateGiftCardAccess      = "gift_card_access"
	TemplateBookingPaid         = "booking_paid"
)

type Message struct {
	Template  string
	Recipient string
	Name      string
	Subject   string
	Data      map[string]any
}

const publishTimeout = 5 * time.Second

type Dispatcher struct {
	pub     events.Publisher
	wg      sync.WaitGroup
	sent    atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

func NewDispatcher(pub events.Publisher) *Dispatcher {
	return &Dispatcher{pub: pub}
}

// Send queues msg in the background. Failures are logged and counted and
// never reach the caller. Recipients without an email address are skipped.
func (d *Dispatcher) Send(ctx context.Context, msg Message) {
	if !domain.IsValidEmail(msg.Recipient) {
		d.skipped.Add(1)
		logger.InfoContext(ctx, "Skipping notification without email recipient", "template", msg.Template)
		return
	}

	d.wg.Add(1)
	go func(ctx context.Context) {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		event := events.NotificationEvent{
			Type:      "email",
			Recipient: msg.Recipient,
			Name:      msg.Name,
			Subject:   msg.Subject,
			Template:  msg.Template,
			Data:      msg.Data,
		}
		if err := d.pub.Publish(ctx, events.NotifySend, event); err != nil {
			d.failed.Add(1)
			logger.ErrorContext(ctx, "Failed to queue notification", "error", err, "template", msg.Template)
			return
		}
		d.sent.Add(1)
	}(context.WithoutCancel(ctx))
}

// Wait blocks until queued sends finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) Stats() map[string]int64 {
	return map[string]int64{
		"notifications_queued_total":  d.sent.Load(),
		"notifications_failed_total":  d.failed.Load(),
		"notifications_skipped_total": d.skipped.Load(),
	}
}
