package redemption

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"confession-service/internal/auth"
	"confession-service/internal/httputil"
	"confession-service/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	vault    *Vault
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewHandler(vault *Vault, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		vault:    vault,
		validate: validator.New(),
		logger:   logger,
		metrics:  metrics,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Post("/codes/redeem", h.Redeem)
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "a valid 8-character code is required")
		return
	}

	h.logger.InfoContext(r.Context(), "redeeming code", "user_id", userID)

	credit, err := h.vault.Redeem(r.Context(), req.Code, userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordCodeRedeemed(r.Context())

	httputil.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"added":   credit,
	})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, "this redemption code does not exist")
	case errors.Is(err, ErrCodeAlreadyUsed):
		httputil.RespondWithError(w, http.StatusConflict, "this redemption code has already been used")
	default:
		h.logger.ErrorContext(r.Context(), "redeem failed", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
