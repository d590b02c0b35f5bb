package message

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"confession-service/internal/auth"
	"confession-service/internal/httputil"
	"confession-service/internal/metrics"
	"confession-service/internal/quota"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewHandler(service *Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
		metrics:  metrics,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Post("/messages", h.SendMessage)
	router.Get("/messages/{id}", h.GetMessage)
	router.Post("/responses", h.Respond)
}

// RegisterPublicRoutes exposes the reply-link endpoints without auth: the
// recipient of an anonymous message has no account.
func (h *Handler) RegisterPublicRoutes(router chi.Router) {
	router.Get("/messages/{id}", h.GetMessage)
	router.Post("/responses", h.Respond)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		h.logger.WarnContext(r.Context(), "user not found in context")
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "recipient, subject, content and template are required")
		return
	}

	h.logger.InfoContext(r.Context(), "sending message", "user_id", userID)

	msg, err := h.service.Send(r.Context(), userID, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordMessageSent(r.Context())

	httputil.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"messageId": msg.ID,
	})
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := h.service.GetMessage(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, msg)
}

func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "messageId and content are required")
		return
	}

	h.logger.InfoContext(r.Context(), "recording reply", "message_id", req.MessageID)

	resp, err := h.service.Respond(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordResponseRecorded(r.Context())

	httputil.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"success":    true,
		"responseId": resp.ID,
	})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrContentRejected):
		h.metrics.RecordMessageBlocked(r.Context())
		httputil.RespondWithError(w, http.StatusBadRequest, ErrContentRejected.Error())
	case errors.Is(err, quota.ErrQuotaExhausted):
		h.metrics.RecordQuotaExhausted(r.Context())
		httputil.RespondWithError(w, http.StatusForbidden, quota.ErrQuotaExhausted.Error())
	case errors.Is(err, ErrRecipientNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, ErrRecipientNotFound.Error())
	case errors.Is(err, ErrRecipientNotAccepting):
		httputil.RespondWithError(w, http.StatusForbidden, ErrRecipientNotAccepting.Error())
	case errors.Is(err, ErrMessageNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, ErrMessageNotFound.Error())
	case errors.Is(err, ErrAlreadyAnswered):
		httputil.RespondWithError(w, http.StatusConflict, ErrAlreadyAnswered.Error())
	default:
		h.logger.ErrorContext(r.Context(), "internal error", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
