package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/internal/http/response"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const checkoutSessionCompleted = "checkout.session.completed"

// StripeWebhook normalises checkout sessions into the same notification the
// PayU endpoint produces. The session's client_reference_id carries the
// merchant reference.
func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(w, "unreadable body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), h.stripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.WarnContext(r.Context(), "Rejected Stripe webhook", "error", err)
		response.WriteError(w, http.StatusUnauthorized, "invalid signature", response.CodeInvalidSig)
		return
	}

	n := domain.Notification{
		Source:  domain.SourceStripe,
		OrderID: event.ID,
		Status:  strings.ToUpper(string(event.Type)),
		Payload: body,
	}
	if event.Type == checkoutSessionCompleted {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			response.BadRequest(w, "invalid checkout session")
			return
		}
		n.OrderID = sess.ID
		n.ExtOrderID = sess.ClientReferenceID
		n.Status = string(sess.PaymentStatus)
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			n.Status = domain.NotificationCompleted
		}
		n.TotalAmount = decimal.New(sess.AmountTotal, -2).StringFixed(2)
		n.Currency = strings.ToUpper(string(sess.Currency))
	}

	h.acknowledge(w, r, n)
}
