package obs

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var defaultHTTPBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// HTTPMetrics holds the collectors of the pricing API surface. Requests are
// labelled with the priced document kind so order and checkout traffic can
// be told apart.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers the API collectors on reg, reusing collectors
// that are already registered.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = defaultHTTPBuckets
	} else {
		buckets = append([]float64(nil), buckets...)
		sort.Float64s(buckets)
	}
	m := &HTTPMetrics{
		Requests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_api_requests_total",
			Help:      "Pricing API requests by method, route, status and document kind.",
		}, []string{"method", "route", "status", "document"})),
		Duration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_api_request_duration_ms",
			Help:      "Pricing API latency in milliseconds.",
			Buckets:   buckets,
		}, []string{"method", "route", "document"})),
		InFlight: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pricing_api_in_flight_requests",
			Help:      "Pricing API requests currently being served.",
		})),
	}
	return m
}

// DocumentOf maps a route pattern to the document kind it prices.
func DocumentOf(route string) string {
	switch {
	case strings.Contains(route, "/orders/"):
		return "order"
	case strings.Contains(route, "/checkouts/"):
		return "checkout"
	default:
		return "none"
	}
}

// ParseBucketsCSV parses comma-separated millisecond bucket bounds, skipping
// blank, malformed and non-positive entries.
func ParseBucketsCSV(csv string) []float64 {
	var out []float64
	for _, part := range strings.Split(csv, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// DurationMillis converts d to fractional milliseconds.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// register registers c on reg, returning the collector already registered
// under the same descriptor when there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	mustRegisterCollector(reg, c, func(existing prometheus.Collector) {
		if v, ok := existing.(T); ok {
			c = v
		}
	})
	return c
}
