// Package taxapp calls a remote tax app over HTTP and caches its answers in
// Redis.
package taxapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-pricing/internal/cache"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/resilience"
	"github.com/noah-isme/toko-pricing/internal/tax"
)

const maxResponseBytes = 1 << 20

// Client is a pricing.TaxApp backed by an HTTP tax service.
type Client struct {
	// Name labels metrics and logs; it defaults to "default".
	Name   string
	URL    string
	Secret string
	HTTP   resilience.HTTPClient
	// Cache stores validated responses keyed by payload fingerprint. Nil
	// disables caching.
	Cache  *cache.JSON
	Logger *zerolog.Logger
	Now    func() time.Time
}

var _ pricing.TaxApp = (*Client)(nil)

// TaxesFor posts doc to the tax app and returns its validated tax data. A
// 204 response means the app does not handle the document and yields a nil
// value.
func (c *Client) TaxesFor(ctx context.Context, doc *pricing.Document) tax.Result[*tax.TaxData] {
	ctx, span := otel.Tracer("taxapp.Client").Start(ctx, "Client.TaxesFor")
	defer span.End()
	if c == nil || strings.TrimSpace(c.URL) == "" {
		return tax.Fail[*tax.TaxData](tax.NewError("taxes_for", errors.New("tax app url not configured")))
	}
	if doc == nil {
		return tax.Ok[*tax.TaxData](nil)
	}

	body, err := json.Marshal(NewRequest(doc))
	if err != nil {
		return tax.Fail[*tax.TaxData](tax.NewError("encode_request", err))
	}
	key := cache.Key{Entity: cache.EntityTaxData, ID: Fingerprint(body)}
	span.SetAttributes(attribute.String("taxapp.fingerprint", key.ID))

	if c.Cache != nil {
		var cached tax.TaxData
		hit, err := c.Cache.Get(ctx, key, &cached)
		if err != nil {
			c.logger(ctx).Warn().Err(err).Msg("tax_app_cache_read_failed")
		}
		hit = hit && err == nil && cached.Validate() == nil
		obs.ObserveTaxAppCache(c.name(), hit)
		if hit {
			span.SetAttributes(attribute.Bool("taxapp.cache_hit", true))
			return tax.Ok(&cached)
		}
	}

	start := time.Now()
	data, err := c.post(ctx, body)
	obs.ObserveTaxAppRequest(c.name(), requestResult(data, err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		return tax.Fail[*tax.TaxData](err)
	}
	if data == nil {
		return tax.Ok[*tax.TaxData](nil)
	}
	if err := c.Cache.Set(ctx, key, data); err != nil {
		c.logger(ctx).Warn().Err(err).Msg("tax_app_cache_write_failed")
	}
	return tax.Ok(data)
}

func (c *Client) post(ctx context.Context, body []byte) (*tax.TaxData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, tax.NewError("build_request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "toko-pricing/1.0")
	if c.Secret != "" {
		ts := c.now().Unix()
		req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
		req.Header.Set("X-Signature", ComputeSignature(c.Secret, ts, body))
	}

	httpClient := c.HTTP
	if httpClient.Client == nil {
		httpClient.Client = NewHTTPClient(5 * time.Second)
	}
	resp, err := httpClient.Do(ctx, req)
	if err != nil {
		return nil, tax.NewError("taxes_for", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, tax.NewError("taxes_for", fmt.Errorf("tax app responded %s", resp.Status))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, tax.NewError("read_response", err)
	}
	var data tax.TaxData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, tax.NewError("decode_response", err)
	}
	if err := data.Validate(); err != nil {
		return nil, tax.NewError("validate_response", err)
	}
	return &data, nil
}

// NewHTTPClient returns an HTTP client with an instrumented transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func requestResult(data *tax.TaxData, err error) string {
	switch {
	case err != nil:
		return "error"
	case data == nil:
		return "unsupported"
	default:
		return "ok"
	}
}

func (c *Client) name() string {
	if c.Name != "" {
		return c.Name
	}
	return "default"
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Client) logger(ctx context.Context) *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zerolog.Ctx(ctx)
}
