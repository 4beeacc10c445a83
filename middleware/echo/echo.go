// Package echo provides Echo middleware for admission enforcement
package echo

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// RequestExtractor builds the admission request from an Echo context.
// Leave UserID empty if the user is not authenticated.
type RequestExtractor func(c echo.Context) cortexa.RequestContext

// Config holds middleware configuration
type Config struct {
	// Controller is the admission controller instance
	Controller *cortexa.Controller

	// GetRequest builds the admission request (required)
	GetRequest RequestExtractor

	// DeniedStatusCode is the HTTP status code to return on quota denial
	// Default: 429 (Too Many Requests)
	DeniedStatusCode int

	// OnDenied is called when the daily quota is exhausted
	// If nil, uses default response: DeniedStatusCode JSON with the denied resource
	OnDenied func(c echo.Context, result *cortexa.Result) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that admits or denies each request
// against the user's daily quota
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Controller == nil {
		panic("cortexa/echo: Config.Controller is required")
	}
	if cfg.GetRequest == nil {
		panic("cortexa/echo: Config.GetRequest is required")
	}
	if cfg.DeniedStatusCode == 0 {
		cfg.DeniedStatusCode = http.StatusTooManyRequests
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := cfg.GetRequest(c)
			if req.UserID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			result, err := cfg.Controller.Admit(c.Request().Context(), req)
			if err != nil {
				if errors.Is(err, cortexa.ErrQuotaExceeded) {
					setQuotaHeaders(c, result)
					if cfg.OnDenied != nil {
						return cfg.OnDenied(c, result)
					}
					return c.JSON(cfg.DeniedStatusCode, map[string]interface{}{
						"error":    "Quota exceeded",
						"resource": string(result.Resource),
					})
				}

				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}

			setQuotaHeaders(c, result)
			return next(c)
		}
	}
}

func setQuotaHeaders(c echo.Context, result *cortexa.Result) {
	if result == nil {
		return
	}
	c.Response().Header().Set("X-Quota-Resource", string(result.Resource))
	c.Response().Header().Set("X-Quota-Remaining", strconv.Itoa(result.Remaining))
	if result.FailOpen {
		c.Response().Header().Set("X-Quota-Degraded", "true")
	}
}

// Convenience extractors

// FromContext returns a RequestExtractor that reads an already-built
// admission request from Echo context values, set by auth middleware via
// c.Set("AdmissionRequest", req).
func FromContext(key string) RequestExtractor {
	return func(c echo.Context) cortexa.RequestContext {
		if val := c.Get(key); val != nil {
			if req, ok := val.(cortexa.RequestContext); ok {
				return req
			}
		}
		return cortexa.RequestContext{}
	}
}

// FromHeaders returns a RequestExtractor that builds the admission request
// from headers: X-User-ID, X-User-Tier, X-Team-Size, X-User-Role,
// X-User-Locale, X-Has-Attachment, X-Augmentation.
func FromHeaders() RequestExtractor {
	return func(c echo.Context) cortexa.RequestContext {
		h := c.Request().Header
		teamSize, _ := strconv.Atoi(h.Get("X-Team-Size"))
		return cortexa.RequestContext{
			UserID:                h.Get("X-User-ID"),
			Tier:                  cortexa.Tier(h.Get("X-User-Tier")),
			TeamSize:              teamSize,
			Role:                  h.Get("X-User-Role"),
			Locale:                h.Get("X-User-Locale"),
			HasAttachment:         h.Get("X-Has-Attachment") == "true",
			AugmentationRequested: h.Get("X-Augmentation") == "true",
		}
	}
}
