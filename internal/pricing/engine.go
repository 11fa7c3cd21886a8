// Package pricing recalculates the monetary fields of orders and checkouts:
// order-level discount distribution, tax strategy selection, aggregation and
// quantization.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/tax"
)

// ErrNoTaxApp is reported when the tax app strategy is selected but no app
// is registered for the channel.
var ErrNoTaxApp = errors.New("pricing: no tax app configured")

// Outcome summarises how taxes were resolved for one recalculation.
type Outcome struct {
	Strategy tax.Strategy
	// TaxCalculated is set when tax data was applied to the document.
	TaxCalculated bool
	// TaxStripped is set when tax was removed because it is not chargeable.
	TaxStripped bool
	// FlatRateFallback is set when flat rates replaced a failed tax app.
	FlatRateFallback bool
	// TaxError holds the recovered provider failure, if any.
	TaxError error
}

// Engine recalculates document prices.
type Engine struct {
	// TaxApps maps tax app identifiers to providers.
	TaxApps map[string]TaxApp
	// DefaultTaxApp serves channels whose app identifier is not registered.
	DefaultTaxApp TaxApp
	// FallbackToFlatRates applies flat rates when the tax app fails.
	FallbackToFlatRates bool
	// TaxTimeout bounds the whole delegated tax phase.
	TaxTimeout time.Duration
	Logger     *zerolog.Logger
}

// Calculate applies order-level discounts, computes taxes with the selected
// strategy and quantizes every monetary field of doc in place. Tax provider
// failures are recovered and reported through Outcome; only invariant
// violations are returned as errors.
func (e *Engine) Calculate(ctx context.Context, doc *Document, settings tax.Settings) (Outcome, error) {
	ctx, span := otel.Tracer("pricing.Engine").Start(ctx, "Engine.Calculate")
	defer span.End()

	start := time.Now()
	out := Outcome{Strategy: settings.Strategy}
	if err := doc.Validate(); err != nil {
		span.RecordError(err)
		if doc != nil {
			obs.ObserveRecalculation(string(doc.Kind), "invalid", time.Since(start))
		}
		return out, err
	}
	doc.PricesEnteredWithTax = settings.PricesEnteredWithTax
	doc.ChargeTaxes = settings.ChargeTaxes
	span.SetAttributes(
		attribute.String("pricing.document", string(doc.Kind)),
		attribute.String("pricing.id", doc.ID.String()),
		attribute.String("pricing.strategy", string(settings.Strategy)),
	)

	discounted := applyDiscounts(doc)
	basePrices(doc, discounted)

	chargeable := settings.ShouldChargeTax(doc.TaxExempt)
	if settings.PricesEnteredWithTax || chargeable {
		e.calculateTaxes(ctx, doc, settings, discounted, &out)
	}
	if settings.PricesEnteredWithTax && !chargeable {
		stripTax(doc)
		out.TaxStripped = true
	}
	finalize(doc)

	result := "ok"
	if out.TaxError != nil {
		result = "degraded"
		span.RecordError(out.TaxError)
	}
	span.SetAttributes(attribute.String("pricing.result", result))
	obs.ObserveRecalculation(string(doc.Kind), result, time.Since(start))
	return out, nil
}

func (e *Engine) calculateTaxes(ctx context.Context, doc *Document, settings tax.Settings, discounted []money.Money, out *Outcome) {
	if settings.Strategy != tax.StrategyTaxApp {
		applyFlatRates(doc, settings.Rates, settings.PricesEnteredWithTax)
		out.TaxCalculated = true
		return
	}

	applied, err := e.applyTaxApp(ctx, doc, settings)
	if err == nil {
		out.TaxCalculated = applied
		return
	}
	out.TaxError = err
	obs.ObserveTaxProviderFailure(string(settings.Strategy))
	e.logger(ctx).Warn().
		Err(err).
		Str("document", string(doc.Kind)).
		Str("id", doc.ID.String()).
		Str("tax_app", settings.TaxAppID).
		Bool("flat_rate_fallback", e.FallbackToFlatRates).
		Msg("tax_provider_failed")
	if e.FallbackToFlatRates {
		basePrices(doc, discounted)
		applyFlatRates(doc, settings.Rates, settings.PricesEnteredWithTax)
		out.TaxCalculated = true
		out.FlatRateFallback = true
	}
}

// applyTaxApp runs the line-wise pass, when supported, followed by the
// authoritative tax data. It reports whether tax data was applied.
func (e *Engine) applyTaxApp(ctx context.Context, doc *Document, settings tax.Settings) (bool, error) {
	app := e.appFor(settings.TaxAppID)
	if app == nil {
		return false, tax.NewError("resolve_app", ErrNoTaxApp)
	}
	if e.TaxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.TaxTimeout)
		defer cancel()
	}

	if lp, ok := app.(LinePricer); ok {
		applyLinePricer(ctx, lp, doc, e.logger(ctx))
	}

	data, err := app.TaxesFor(ctx, doc).Unpack()
	if err != nil {
		if !errors.Is(err, tax.ErrProvider) {
			err = tax.NewError("taxes_for", err)
		}
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := applyTaxData(doc, data, settings.PricesEnteredWithTax); err != nil {
		return false, tax.NewError("apply_tax_data", err)
	}
	return true, nil
}

func (e *Engine) appFor(id string) TaxApp {
	if app, ok := e.TaxApps[id]; ok && app != nil {
		return app
	}
	return e.DefaultTaxApp
}

func (e *Engine) logger(ctx context.Context) *zerolog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zerolog.Ctx(ctx)
}
