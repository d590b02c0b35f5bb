package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"confession-service/internal/authctx"
	"confession-service/internal/httputil"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	repo   Repository
	logger *slog.Logger
}

func NewHandler(repo Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/me", h.GetProfile)
	router.Patch("/me/accepting-messages", h.SetAcceptingMessages)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := authctx.GetUserID(r.Context())
	if !ok {
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	u, err := h.repo.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.RespondWithError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to fetch profile", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, u)
}

type setAcceptingRequest struct {
	AcceptingMessages bool `json:"acceptingMessages"`
}

func (h *Handler) SetAcceptingMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := authctx.GetUserID(r.Context())
	if !ok {
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req setAcceptingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.repo.SetAcceptingMessages(r.Context(), userID, req.AcceptingMessages); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.RespondWithError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to update accepting flag", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.InfoContext(r.Context(), "accepting-messages updated", "user_id", userID, "accepting", req.AcceptingMessages)

	httputil.RespondWithJSON(w, http.StatusOK, map[string]bool{"acceptingMessages": req.AcceptingMessages})
}
