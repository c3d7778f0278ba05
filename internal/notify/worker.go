package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/diagnosis/photo-challenges/pkg/events"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/diagnosis/photo-challenges/pkg/mailer"
)

const workerQueue = "notify-workers"

// Worker consumes queued notifications and delivers them by email.
type Worker struct {
	sub       events.Subscriber
	mail      mailer.Service
	delivered atomic.Int64
	failed    atomic.Int64
}

func NewWorker(sub events.Subscriber, mail mailer.Service) *Worker {
	return &Worker{sub: sub, mail: mail}
}

func (w *Worker) Start() error {
	return w.sub.QueueSubscribe(events.NotifySend, workerQueue, w.handle)
}

func (w *Worker) handle(msg *events.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var ev events.NotificationEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		w.failed.Add(1)
		logger.Error("Invalid notification payload", "error", err, "message_id", msg.ID)
		return
	}
	if err := w.Deliver(ctx, ev); err != nil {
		w.failed.Add(1)
		logger.Error("Notification delivery failed", "error", err, "template", ev.Template, "message_id", msg.ID)
		return
	}
	w.delivered.Add(1)
}

func (w *Worker) Deliver(ctx context.Context, ev events.NotificationEvent) error {
	subject, text := Render(ev.Template, ev.Data)
	if ev.Subject != "" {
		subject = ev.Subject
	}
	id, err := w.mail.Send(ctx, ev.Recipient, ev.Name, subject, text, "")
	if err != nil {
		return fmt.Errorf("send %s: %w", ev.Template, err)
	}
	logger.InfoContext(ctx, "Notification delivered", "template", ev.Template, "provider_id", id)
	return nil
}

func (w *Worker) Stats() map[string]int64 {
	return map[string]int64{
		"notifications_delivered_total":       w.delivered.Load(),
		"notifications_delivery_failed_total": w.failed.Load(),
	}
}

// Render produces a plain-text subject and body for a template.
func Render(template string, data map[string]any) (subject, text string) {
	get := func(k string) string {
		if v, ok := data[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}
	switch template {
	case TemplateChallengeInvitation:
		return "You have been challenged to a photo session",
			fmt.Sprintf("%s invited you to a %s session. Respond before %s: %s",
				get("inviter_name"), get("package_name"), get("deadline"), get("link"))
	case TemplateChallengeAccepted:
		return "Your photo challenge was accepted",
			fmt.Sprintf("%s accepted your challenge for %s.", get("invitee_name"), get("session_date"))
	case TemplateChallengeScheduled:
		return "Your photo session is booked",
			fmt.Sprintf("Your %s session is booked for %s at %s.", get("package_name"), get("session_date"), get("location"))
	case TemplateGiftCardAccess:
		return "Your gift card is ready",
			fmt.Sprintf("Your %s gift card is paid. Open it at %s (access code %s). Valid until %s.",
				get("amount"), get("link"), get("access_token"), get("expires_at"))
	case TemplateBookingPaid:
		return "Payment received",
			fmt.Sprintf("We received %s for booking #%s, your %s session on %s.",
				get("amount"), get("booking_id"), get("package_name"), get("session_date"))
	default:
		return "Notification", get("message")
	}
}
