package order

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Handler exposes order price endpoints.
type Handler struct {
	Calc *Calculator
}

// GetPrices returns the order prices, recalculating them when stale.
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	h.fetch(w, r, false)
}

// RefreshPrices forces a recalculation of the order prices.
func (h *Handler) RefreshPrices(w http.ResponseWriter, r *http.Request) {
	h.fetch(w, r, true)
}

// InvalidatePrices flags the order for recalculation.
func (h *Handler) InvalidatePrices(w http.ResponseWriter, r *http.Request) {
	if h.Calc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order calculator not configured", nil)
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	marked, err := h.Calc.InvalidatePrices(r.Context(), id)
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	common.Data(w, http.StatusAccepted, map[string]any{"id": id.String(), "shouldRefreshPrices": marked})
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request, force bool) {
	if h.Calc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order calculator not configured", nil)
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	o, _, err := h.Calc.FetchPrices(r.Context(), id, force)
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	view := pricing.NewView(&o.Document)
	common.Data(w, http.StatusOK, map[string]any{
		"prices":              view,
		"status":              o.Status,
		"voucherCode":         o.VoucherCode,
		"shouldRefreshPrices": o.ShouldRefreshPrices,
	})
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return uuid.Nil, false
	}
	return id, true
}

// appError maps calculator errors onto HTTP responses.
func appError(err error) *common.AppError {
	switch {
	case errors.Is(err, pricing.ErrNotFound):
		return common.NewAppError("NOT_FOUND", "order not found", http.StatusNotFound, err)
	case errors.Is(err, pricing.ErrConcurrencyConflict):
		return common.NewAppError("CONFLICT", "order is being recalculated, retry later", http.StatusConflict, err)
	case errors.Is(err, pricing.ErrInvariantViolation):
		return common.NewAppError("INVARIANT_VIOLATION", err.Error(), http.StatusUnprocessableEntity, err)
	default:
		return common.NewAppError("INTERNAL", "internal server error", http.StatusInternalServerError, err)
	}
}
