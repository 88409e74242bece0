// Package fetch walks the paginated vehicle-stock catalog and returns a
// flattened collection. It follows hydra:view.hydra:next links until the
// last page, carrying explicit page-size parameters only on the first
// request, and fails fast on the first transport or payload problem.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/waib/stocksync/engine/domain"
)

const (
	userAgent       = "stocksync/1.0"
	defaultPageSize = 500
	defaultTimeout  = 30 * time.Second
	maxBodyBytes    = 64 << 20
)

// Fetcher retrieves the full stock catalog page by page.
type Fetcher struct {
	cfg     Config
	base    *url.URL
	log     *slog.Logger
	tracer  trace.Tracer
	client  *http.Client
	limiter *rate.Limiter
}

// New builds a Fetcher. The configured base URL must be absolute.
func New(cfg Config, deps Deps) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, domain.NewConfigError("catalog base URL")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, domain.NewConfigError("catalog base URL")
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("stocksync/fetch")
	}
	client := deps.Client
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	return &Fetcher{
		cfg:     cfg,
		base:    base,
		log:     log,
		tracer:  tracer,
		client:  client,
		limiter: limiter,
	}, nil
}

// Fetch walks every page of the catalog and returns the flattened result.
// The first failing request or invalid payload aborts the walk; there is
// no retry and no partial collection.
func (f *Fetcher) Fetch(ctx context.Context) (*domain.StockCollection, error) {
	ctx, span := f.tracer.Start(ctx, "catalog.fetch")
	defer span.End()

	coll := &domain.StockCollection{}
	var aggsRaw json.RawMessage

	next := f.base.String()
	page := 1
	for next != "" {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, domain.NewFetchError(next, 0, err)
			}
		}

		f.log.Debug("fetching catalog page", "page", page, "url", next)
		env, err := f.getPage(ctx, next, page == 1)
		if err != nil {
			return nil, err
		}

		if page == 1 {
			coll.TotalItems = env.TotalItems
		}
		for i, raw := range env.Members {
			item, err := domain.DecodeStockItem(raw, fmt.Sprintf("hydra:member[%d]", i))
			if err != nil {
				return nil, err
			}
			coll.Items = append(coll.Items, item)
		}
		if len(env.Aggregations) > 0 {
			aggsRaw = env.Aggregations
		}
		f.log.Info("catalog page fetched", "page", page, "items", len(env.Members))

		next = ""
		if link := env.View.Next; link != "" {
			resolved, err := f.resolveNext(link)
			if err != nil {
				return nil, err
			}
			next = resolved
			page++
		}
	}
	coll.Pages = page

	if len(aggsRaw) > 0 && !bytes.Equal(bytes.TrimSpace(aggsRaw), []byte("null")) {
		aggs, err := domain.DecodeAggregations(aggsRaw, "aggregations")
		if err != nil {
			return nil, err
		}
		coll.Aggregations = &aggs
	}

	if coll.TotalItems != len(coll.Items) {
		f.log.Warn("fetched item count differs from declared total",
			"declared", coll.TotalItems, "fetched", len(coll.Items))
	}
	f.log.Info("catalog fetch complete",
		"items", len(coll.Items), "pages", coll.Pages, "declared_total", coll.TotalItems)
	span.SetAttributes(
		attribute.Int("catalog.items", len(coll.Items)),
		attribute.Int("catalog.pages", coll.Pages),
	)
	return coll, nil
}

// getPage performs one catalog GET. Page-size and page-index parameters
// are sent only on the first request; follow-up URLs come from the server
// and already carry their own query.
func (f *Fetcher) getPage(ctx context.Context, target string, first bool) (*pageEnvelope, error) {
	if first {
		u, err := url.Parse(target)
		if err != nil {
			return nil, domain.NewFetchError(target, 0, err)
		}
		q := u.Query()
		q.Set("itemsPerPage", strconv.Itoa(f.cfg.PageSize))
		q.Set("page", "1")
		u.RawQuery = q.Encode()
		target = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, domain.NewFetchError(target, 0, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/ld+json, application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domain.NewFetchError(target, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, domain.NewFetchError(target, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewFetchError(target, 0, err)
	}

	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.DecodeErrorAt("page", err)
	}
	return &env, nil
}

// resolveNext resolves a hydra:next link, which the API emits relative to
// the catalog host, against the configured base URL.
func (f *Fetcher) resolveNext(link string) (string, error) {
	ref, err := url.Parse(link)
	if err != nil {
		return "", domain.NewSchemaError("hydra:view.hydra:next", "malformed URL")
	}
	return f.base.ResolveReference(ref).String(), nil
}
