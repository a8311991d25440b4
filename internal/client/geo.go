package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pluto/internal/cache"
	"pluto/internal/config"
	ierr "pluto/internal/errors"
	"pluto/internal/logger"

	"github.com/go-resty/resty/v2"
	"github.com/samber/lo"
)

// CountryRoster validates country codes against the geo authority
type CountryRoster interface {
	// ValidateCountries returns the codes the authority knows, in request order
	ValidateCountries(ctx context.Context, codes []string) ([]string, error)
}

type geoCountry struct {
	ID string `json:"id"`
}

// GeoClient fetches the authority's country list and caches it
type GeoClient struct {
	http   *resty.Client
	cfg    config.GeoConfig
	cache  cache.Cache
	logger *logger.Logger
}

func NewGeoClient(cfg config.GeoConfig, c cache.Cache, log *logger.Logger) *GeoClient {
	httpClient := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	return &GeoClient{
		http:   httpClient,
		cfg:    cfg,
		cache:  c,
		logger: log,
	}
}

func (c *GeoClient) ValidateCountries(ctx context.Context, codes []string) ([]string, error) {
	known, err := c.countries(ctx)
	if err != nil {
		return nil, err
	}

	return lo.Filter(codes, func(code string, _ int) bool {
		_, ok := known[strings.ToUpper(code)]
		return ok
	}), nil
}

func (c *GeoClient) countries(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	found, err := c.cache.Get(ctx, cache.PrefixGeoCountries, &ids)
	if err != nil {
		c.logger.Warnw("geo cache read failed", "error", err)
	}

	if !found {
		ids, err = c.fetchCountries(ctx)
		if err != nil {
			return nil, err
		}
		// an empty authority answer is never cached so the next call retries
		if len(ids) > 0 && c.cfg.CacheTTL > 0 {
			if err := c.cache.Set(ctx, cache.PrefixGeoCountries, ids, c.cfg.CacheTTL); err != nil {
				c.logger.Warnw("geo cache write failed", "error", err)
			}
		}
	}

	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[strings.ToUpper(id)] = struct{}{}
	}
	return known, nil
}

func (c *GeoClient) fetchCountries(ctx context.Context) ([]string, error) {
	var body []geoCountry
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		ForceContentType("application/json").
		Get("")
	if err != nil {
		c.logger.Errorw("geo service request failed", "error", err)
		return nil, ierr.WithError(err).
			WithHint("country service unavailable").
			Mark(ierr.ErrUpstreamUnavailable)
	}
	if !resp.IsSuccess() {
		c.logger.Errorw("geo service returned unexpected status", "status", resp.StatusCode())
		return nil, ierr.NewError(fmt.Sprintf("geo service answered with status %d", resp.StatusCode())).
			WithHint("country service unavailable").
			Mark(ierr.ErrUpstreamUnavailable)
	}

	return lo.FilterMap(body, func(country geoCountry, _ int) (string, bool) {
		return country.ID, country.ID != ""
	}), nil
}
