package handlers

import (
	"net/http"

	"github.com/diagnosis/photo-challenges/internal/http/response"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	mw "github.com/diagnosis/photo-challenges/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// NewRouter builds the gateway router with its global middleware stack.
func NewRouter(h *Handlers, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("gateway"))
	r.Use(mw.Logging)
	r.Use(recoverPanic)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(mw.Health)
	r.Use(mw.Metrics(nil))

	h.Routes(r)
	return r
}

func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.ErrorContext(r.Context(), "Panic recovered", "error", err)
				response.InternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
