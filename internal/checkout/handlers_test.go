package checkout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/checkouts/{token}/prices", h.GetPrices)
	r.Post("/checkouts/{token}/prices/refresh", h.RefreshPrices)
	return r
}

func TestHandlerGetPrices(t *testing.T) {
	store := newMemStore()
	co := newCheckout(newLine(5, "20.00"))
	co.VoucherCode = "SUMMER"
	co.GiftCardBalance = usd("23.00")
	store.put(co)
	calc, _ := newCalculator(t, store, flatRates("23"))
	router := newRouter(&Handler{Calc: calc})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/checkouts/"+co.ID.String()+"/prices", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Prices struct {
				Total struct {
					Gross string `json:"gross"`
				} `json:"total"`
			} `json:"prices"`
			VoucherCode        string `json:"voucherCode"`
			Discount           string `json:"discount"`
			TotalWithGiftCards struct {
				Gross string `json:"gross"`
			} `json:"totalWithGiftCards"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "123.00", body.Data.Prices.Total.Gross)
	assert.Equal(t, "SUMMER", body.Data.VoucherCode)
	assert.Equal(t, "10.00", body.Data.Discount)
	assert.Equal(t, "100.00", body.Data.TotalWithGiftCards.Gross)
}

func TestHandlerErrors(t *testing.T) {
	store := newMemStore()
	co := newCheckout(newLine(1, "10.00"))
	store.put(co)
	calc, mr := newCalculator(t, store, flatRates("23"))
	router := newRouter(&Handler{Calc: calc})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/checkouts/nope/prices", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/checkouts/"+uuid.NewString()+"/prices", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, mr.Set(calc.Locker.Key("checkout", co.ID.String()), "busy"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkouts/"+co.ID.String()+"/prices/refresh", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONFLICT")
}
