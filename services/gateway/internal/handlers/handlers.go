package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/diagnosis/photo-challenges/internal/http/response"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/diagnosis/photo-challenges/services/gateway/internal/proxy"
	"github.com/go-chi/chi/v5"
)

const apiPrefix = "/v1"

type Handlers struct {
	challengesProxy *proxy.ServiceProxy
	paymentsProxy   *proxy.ServiceProxy
}

func New(challengesProxy, paymentsProxy *proxy.ServiceProxy) *Handlers {
	return &Handlers{
		challengesProxy: challengesProxy,
		paymentsProxy:   paymentsProxy,
	}
}

// Routes mounts the public API under /v1. Authorization is left to the
// upstream services, which verify bearer tokens themselves.
func (h *Handlers) Routes(r chi.Router) {
	challenges := h.forward(h.challengesProxy)
	payments := h.forward(h.paymentsProxy)

	r.Route(apiPrefix, func(r chi.Router) {
		r.Post("/challenges", challenges)
		r.Get("/challenge/{uniqueLink}", challenges)
		r.Put("/challenge/{uniqueLink}", challenges)

		r.Post("/payment/notify", payments)
		r.Post("/payment/stripe/webhook", payments)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/challenges", challenges)
			r.Get("/challenge/{id}", challenges)
			r.Put("/challenge/{id}", challenges)
			r.Get("/challenge/{id}/timeline", challenges)

			r.Get("/payments", payments)
			r.Get("/payments/{id}", payments)
			r.Post("/payments/{id}/replay", payments)
		})
	})
}

// forward strips the API prefix and keeps the query string intact.
func (h *Handlers) forward(p *proxy.ServiceProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, apiPrefix)
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}
		h.proxyRequest(w, r, p, path)
	}
}

func (h *Handlers) proxyRequest(w http.ResponseWriter, r *http.Request, serviceProxy *proxy.ServiceProxy, path string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.BadRequest(w, "failed to read request body")
		return
	}
	defer r.Body.Close()

	headers := make(http.Header)
	for key, values := range r.Header {
		if shouldCopyHeader(key) {
			headers[key] = values
		}
	}

	resp, err := serviceProxy.ProxyRequest(r.Context(), r.Method, path, body, headers)
	if err != nil {
		logger.ErrorContext(r.Context(), "Service proxy error", "service", serviceProxy.Name(), "error", err, "path", path)
		response.WriteError(w, http.StatusServiceUnavailable, "service unavailable", "SERVICE_UNAVAILABLE")
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if !shouldCopyHeader(key) {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.ErrorContext(r.Context(), "Failed to copy response body", "error", err)
	}
}

var hopHeaders = map[string]bool{
	"host":                true,
	"connection":          true,
	"upgrade":             true,
	"proxy-connection":    true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"content-length":      true,
	// cors is applied by the gateway itself
	"access-control-allow-origin":      true,
	"access-control-allow-credentials": true,
}

func shouldCopyHeader(key string) bool {
	return !hopHeaders[strings.ToLower(key)]
}
