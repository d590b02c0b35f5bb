package payment

import (
	"errors"
	"log/slog"
	"net/http"

	"confession-service/internal/httputil"
	"confession-service/internal/metrics"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	bridge  *Bridge
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHandler(bridge *Bridge, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		bridge:  bridge,
		logger:  logger,
		metrics: metrics,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Post("/payments/orders", h.CreateOrder)
	router.Post("/payments/orders/{id}/capture", h.CaptureOrder)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "creating payment order")

	orderID, err := h.bridge.CreateOrder(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusCreated, map[string]string{"id": orderID})
}

func (h *Handler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		httputil.RespondWithError(w, http.StatusBadRequest, "order id is required")
		return
	}

	h.logger.InfoContext(r.Context(), "capturing payment order", "order_id", orderID)

	code, err := h.bridge.CaptureAndMint(r.Context(), orderID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordPaymentCaptured(r.Context())
	h.metrics.RecordCodeIssued(r.Context())

	httputil.RespondWithJSON(w, http.StatusCreated, map[string]string{"code": code.Code})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPaymentIncomplete):
		httputil.RespondWithError(w, http.StatusPaymentRequired, ErrPaymentIncomplete.Error())
	case errors.Is(err, ErrPaymentNotVerified):
		httputil.RespondWithError(w, http.StatusPaymentRequired, ErrPaymentNotVerified.Error())
	case errors.Is(err, ErrProviderError):
		httputil.RespondWithError(w, http.StatusBadGateway, ErrProviderError.Error())
	default:
		h.logger.ErrorContext(r.Context(), "payment failed", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
