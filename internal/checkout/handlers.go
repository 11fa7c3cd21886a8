package checkout

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Handler exposes checkout price endpoints.
type Handler struct {
	Calc *Calculator
}

// GetPrices returns the checkout prices, recalculating them once expired.
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	h.fetch(w, r, false)
}

// RefreshPrices forces a recalculation of the checkout prices.
func (h *Handler) RefreshPrices(w http.ResponseWriter, r *http.Request) {
	h.fetch(w, r, true)
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request, force bool) {
	if h.Calc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout calculator not configured", nil)
		return
	}
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid checkout token", nil)
		return
	}
	co, _, err := h.Calc.FetchPrices(r.Context(), token, force)
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	data := map[string]any{
		"prices":             pricing.NewView(&co.Document),
		"voucherCode":        co.VoucherCode,
		"discountName":       co.DiscountName,
		"totalWithGiftCards": pricing.NewTaxedView(WithGiftCards(co.Total, co.GiftCardBalance)),
		"priceExpiration":    co.PriceExpiration,
	}
	if co.DiscountAmount.Currency != "" {
		data["discount"] = co.DiscountAmount.Format()
	}
	common.Data(w, http.StatusOK, data)
}

// appError maps calculator errors onto HTTP responses.
func appError(err error) *common.AppError {
	switch {
	case errors.Is(err, pricing.ErrNotFound):
		return common.NewAppError("NOT_FOUND", "checkout not found", http.StatusNotFound, err)
	case errors.Is(err, pricing.ErrConcurrencyConflict):
		return common.NewAppError("CONFLICT", "checkout is being recalculated, retry later", http.StatusConflict, err)
	case errors.Is(err, pricing.ErrInvariantViolation):
		return common.NewAppError("INVARIANT_VIOLATION", err.Error(), http.StatusUnprocessableEntity, err)
	default:
		return common.NewAppError("INTERNAL", "internal server error", http.StatusInternalServerError, err)
	}
}
