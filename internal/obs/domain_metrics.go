package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingRecalculationsTotal counts price recalculations by document and outcome.
	PricingRecalculationsTotal *prometheus.CounterVec
	// PricingRecalculationDuration records recalculation latency in milliseconds.
	PricingRecalculationDuration *prometheus.HistogramVec
	// TaxProviderFailuresTotal counts recovered tax provider failures.
	TaxProviderFailuresTotal *prometheus.CounterVec
	// PriceRefreshTasksTotal counts background refresh task outcomes.
	PriceRefreshTasksTotal *prometheus.CounterVec
	// TaxAppRequestDuration records tax app round trips per app and result.
	TaxAppRequestDuration *prometheus.HistogramVec
	// TaxAppCacheLookupsTotal counts tax data cache hits and misses per app.
	TaxAppCacheLookupsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingRecalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_recalculations_total",
			Help:      "Count of price recalculations by document type and result.",
		}, []string{"document", "result"})
		PricingRecalculationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_recalculation_duration_ms",
			Help:      "Latency of price recalculations in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"document"})
		TaxProviderFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_tax_provider_failures_total",
			Help:      "Count of tax provider failures recovered by the pricing pipeline.",
		}, []string{"strategy"})
		PriceRefreshTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_refresh_tasks_total",
			Help:      "Count of background price refresh tasks by result.",
		}, []string{"result"})
		TaxAppRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_tax_app_request_duration_ms",
			Help:      "Latency of tax app calls in milliseconds by app and result.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"app", "result"})
		TaxAppCacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_tax_app_cache_lookups_total",
			Help:      "Tax data cache lookups by app and result.",
		}, []string{"app", "result"})

		TaxAppRequestDuration = register(reg, TaxAppRequestDuration)
		TaxAppCacheLookupsTotal = register(reg, TaxAppCacheLookupsTotal)
		mustRegisterCollector(reg, PricingRecalculationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingRecalculationsTotal = v
			}
		})
		mustRegisterCollector(reg, PricingRecalculationDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				PricingRecalculationDuration = v
			}
		})
		mustRegisterCollector(reg, TaxProviderFailuresTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TaxProviderFailuresTotal = v
			}
		})
		mustRegisterCollector(reg, PriceRefreshTasksTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PriceRefreshTasksTotal = v
			}
		})
	})
}

// ObserveRecalculation records the outcome and latency of one recalculation.
// It is a no-op until MustRegisterDomainMetrics has been called.
func ObserveRecalculation(document, result string, elapsed time.Duration) {
	if PricingRecalculationsTotal != nil {
		PricingRecalculationsTotal.WithLabelValues(document, result).Inc()
	}
	if PricingRecalculationDuration != nil {
		PricingRecalculationDuration.WithLabelValues(document).Observe(float64(elapsed.Microseconds()) / 1000)
	}
}

// ObserveTaxProviderFailure counts a recovered tax provider failure.
func ObserveTaxProviderFailure(strategy string) {
	if TaxProviderFailuresTotal != nil {
		TaxProviderFailuresTotal.WithLabelValues(strategy).Inc()
	}
}

// ObserveRefreshTask counts a background refresh task outcome.
func ObserveRefreshTask(result string) {
	if PriceRefreshTasksTotal != nil {
		PriceRefreshTasksTotal.WithLabelValues(result).Inc()
	}
}

// ObserveTaxAppRequest records one tax app round trip.
func ObserveTaxAppRequest(app, result string, elapsed time.Duration) {
	if TaxAppRequestDuration != nil {
		TaxAppRequestDuration.WithLabelValues(app, result).Observe(DurationMillis(elapsed))
	}
}

// ObserveTaxAppCache counts a tax data cache lookup as "hit" or "miss".
func ObserveTaxAppCache(app string, hit bool) {
	if TaxAppCacheLookupsTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	TaxAppCacheLookupsTotal.WithLabelValues(app, result).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
