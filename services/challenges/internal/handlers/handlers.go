package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/internal/http/response"
	"github.com/diagnosis/photo-challenges/services/challenges/internal/service"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	challenges service.ChallengeService
}

func New(challenges service.ChallengeService) *Handlers {
	return &Handlers{challenges: challenges}
}

type Middleware = func(http.Handler) http.Handler

// Routes mounts the public and admin endpoints. requireAdmin guards the
// admin routes and limitDecide the invitee decision endpoint.
func (h *Handlers) Routes(r chi.Router, requireAdmin, limitDecide Middleware) {
	r.Post("/challenges", h.CreateChallenge)
	r.Get("/challenge/{uniqueLink}", h.ViewChallenge)
	r.With(limitDecide).Put("/challenge/{uniqueLink}", h.DecideChallenge)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/admin/challenges", h.ListChallenges)
		r.Get("/admin/challenge/{id}", h.GetChallenge)
		r.Put("/admin/challenge/{id}", h.UpdateChallenge)
		r.Get("/admin/challenge/{id}/timeline", h.ChallengeTimeline)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "invalid JSON format")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "invalid challenge id")
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

func (h *Handlers) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateChallengeReq
	if !decode(w, r, &req) {
		return
	}
	c, err := h.challenges.Create(r.Context(), req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handlers) ViewChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.challenges.View(r.Context(), chi.URLParam(r, "uniqueLink"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, c)
}

type decisionResponse struct {
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

func (h *Handlers) DecideChallenge(w http.ResponseWriter, r *http.Request) {
	var req domain.DecisionReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.challenges.Decide(r.Context(), chi.URLParam(r, "uniqueLink"), req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, decisionResponse{Message: res.Message, Token: res.Token})
}

func (h *Handlers) ListChallenges(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	f := domain.ChallengeFilter{Limit: limit, Offset: offset}
	if v := r.URL.Query().Get("status"); v != "" {
		st, ok := domain.ParseChallengeStatus(v)
		if !ok {
			response.BadRequest(w, "invalid status parameter")
			return
		}
		f.Status = &st
	}
	list, err := h.challenges.List(r.Context(), f)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.challenges.Get(r.Context(), id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, c)
}

func (h *Handlers) UpdateChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.AdminUpdateReq
	if !decode(w, r, &req) {
		return
	}
	patch, err := req.Patch()
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	res, err := h.challenges.AdminUpdate(r.Context(), id, patch)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

func (h *Handlers) ChallengeTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	evs, err := h.challenges.Timeline(r.Context(), id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, evs)
}
