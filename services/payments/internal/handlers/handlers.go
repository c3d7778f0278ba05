package handlers

import (
	"net/http"
	"strconv"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/internal/http/response"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/diagnosis/photo-challenges/services/payments/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	dispatcher          service.Dispatcher
	secondKey           string
	stripeWebhookSecret string
}

type Options struct {
	// SecondKey verifies the OpenPayu-Signature header. Empty disables the check.
	SecondKey           string
	StripeWebhookSecret string
}

func New(dispatcher service.Dispatcher, opts Options) *Handlers {
	return &Handlers{
		dispatcher:          dispatcher,
		secondKey:           opts.SecondKey,
		stripeWebhookSecret: opts.StripeWebhookSecret,
	}
}

type Middleware = func(http.Handler) http.Handler

func (h *Handlers) Routes(r chi.Router, requireAdmin Middleware) {
	r.Post("/payment/notify", h.PayUNotify)
	r.Post("/payment/stripe/webhook", h.StripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/admin/payments", h.ListPayments)
		r.Get("/admin/payments/{id}", h.GetPayment)
		r.Post("/admin/payments/{id}/replay", h.ReplayPayment)
	})
}

// acknowledge answers the gateway once the notification is durably logged,
// whether or not it matched a resource.
func (h *Handlers) acknowledge(w http.ResponseWriter, r *http.Request, n domain.Notification) {
	if _, err := h.dispatcher.Handle(r.Context(), n); err != nil {
		logger.ErrorContext(r.Context(), "Payment notification not processed", "error", err, "source", n.Source, "ext_order_id", n.ExtOrderID)
		response.InternalError(w, "failed to process notification")
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	var outcome *domain.PaymentOutcome
	if v := r.URL.Query().Get("outcome"); v != "" {
		o, ok := domain.ParsePaymentOutcome(v)
		if !ok {
			response.BadRequest(w, "invalid outcome parameter")
			return
		}
		outcome = &o
	}
	entries, err := h.dispatcher.List(r.Context(), outcome, limit, offset)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.dispatcher.Get(r.Context(), id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handlers) ReplayPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.dispatcher.Replay(r.Context(), id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"outcome":       res.Outcome,
		"resource_type": res.ResourceType,
		"resource_id":   res.ResourceID,
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "invalid notification id")
		return 0, false
	}
	return id, true
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
