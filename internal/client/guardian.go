package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"pluto/internal/cache"
	"pluto/internal/config"
	ierr "pluto/internal/errors"
	"pluto/internal/logger"

	"github.com/go-resty/resty/v2"
)

// PermissionChecker resolves the permission level of a user inside a company
type PermissionChecker interface {
	Authorize(ctx context.Context, userUUID, companyID string) (int, error)
}

type guardianResponse struct {
	Status string `json:"status"`
	Data   struct {
		UserPermission int `json:"user_permission"`
	} `json:"data"`
}

// GuardianClient asks the authorization service for permission levels
type GuardianClient struct {
	http   *resty.Client
	cfg    config.GuardianConfig
	cache  cache.Cache
	logger *logger.Logger
}

func NewGuardianClient(cfg config.GuardianConfig, c cache.Cache, log *logger.Logger) *GuardianClient {
	httpClient := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	return &GuardianClient{
		http:   httpClient,
		cfg:    cfg,
		cache:  c,
		logger: log,
	}
}

// Authorize returns the user's permission level. Levels outside the configured
// range are denied.
func (c *GuardianClient) Authorize(ctx context.Context, userUUID, companyID string) (int, error) {
	key := cache.GenerateKey(cache.PrefixPermission, userUUID, companyID)

	var level int
	found, err := c.cache.Get(ctx, key, &level)
	if err != nil {
		c.logger.Warnw("permission cache read failed", "error", err)
	}
	if !found {
		level, err = c.fetchPermission(ctx, userUUID, companyID)
		if err != nil {
			return 0, err
		}
		if c.cfg.CacheTTL > 0 {
			if err := c.cache.Set(ctx, key, level, c.cfg.CacheTTL); err != nil {
				c.logger.Warnw("permission cache write failed", "error", err)
			}
		}
	}

	if level < c.cfg.MinPermission || level > c.cfg.MaxPermission {
		return level, ierr.NewError(fmt.Sprintf("permission level %d outside [%d, %d]", level, c.cfg.MinPermission, c.cfg.MaxPermission)).
			WithHint("user has no permission for this company").
			Mark(ierr.ErrPermissionDenied)
	}

	return level, nil
}

func (c *GuardianClient) fetchPermission(ctx context.Context, userUUID, companyID string) (int, error) {
	var body guardianResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		ForceContentType("application/json").
		Get("/" + url.PathEscape(userUUID) + "/" + url.PathEscape(companyID))
	if err != nil {
		c.logger.Errorw("guardian request failed", "error", err, "company_id", companyID)
		return 0, ierr.WithError(err).
			WithHint("authorization service unavailable").
			Mark(ierr.ErrUpstreamUnavailable)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return 0, ierr.NewError("guardian denied the user").
			WithHint("user has no permission").
			Mark(ierr.ErrPermissionDenied)
	case resp.StatusCode() == http.StatusNotFound:
		return 0, ierr.NewError("guardian does not know the company").
			WithHint("resource does not exist").
			Mark(ierr.ErrTenantNotFound)
	case !resp.IsSuccess():
		c.logger.Errorw("guardian returned unexpected status", "status", resp.StatusCode(), "company_id", companyID)
		return 0, ierr.NewError(fmt.Sprintf("guardian answered with status %d", resp.StatusCode())).
			WithHint("authorization service unavailable").
			Mark(ierr.ErrUpstreamUnavailable)
	}

	if body.Status != "OK" {
		c.logger.Errorw("unknown response from guardian", "status", body.Status, "company_id", companyID)
		return 0, ierr.NewError("unknown response from guardian").
			WithHint("authorization service unavailable").
			Mark(ierr.ErrUpstreamUnavailable)
	}

	c.logger.Debugw("got user permission from guardian", "company_id", companyID, "permission", body.Data.UserPermission)
	return body.Data.UserPermission, nil
}
