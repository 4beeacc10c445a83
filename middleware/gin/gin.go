// Package gin provides Gin middleware for admission enforcement
package gin

import (
	"errors"
	"net/http"
	"strconv"

	gongin "github.com/gin-gonic/gin"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// RequestExtractor builds the admission request from a Gin context.
// Leave UserID empty if the user is not authenticated.
type RequestExtractor func(c *gongin.Context) cortexa.RequestContext

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
	OnDenied func(c *gongin.Context, result *cortexa.Result)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that admits or denies each request
// against the user's daily quota
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Controller == nil {
		panic("cortexa/gin: Config.Controller is required")
	}
	if cfg.GetRequest == nil {
		panic("cortexa/gin: Config.GetRequest is required")
	}
	if cfg.DeniedStatusCode == 0 {
		cfg.DeniedStatusCode = http.StatusTooManyRequests
	}

	return func(c *gongin.Context) {
		req := cfg.GetRequest(c)
		if req.UserID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
			}
			c.Abort()
			return
		}

		result, err := cfg.Controller.Admit(c.Request.Context(), req)
		if err != nil {
			if errors.Is(err, cortexa.ErrQuotaExceeded) {
				setQuotaHeaders(c, result)
				if cfg.OnDenied != nil {
					cfg.OnDenied(c, result)
				} else {
					c.JSON(cfg.DeniedStatusCode, gongin.H{
						"error":    "Quota exceeded",
						"resource": string(result.Resource),
					})
				}
				c.Abort()
				return
			}

			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
			}
			c.Abort()
			return
		}

		setQuotaHeaders(c, result)
		c.Next()
	}
}

func setQuotaHeaders(c *gongin.Context, result *cortexa.Result) {
	if result == nil {
		return
	}
	c.Header("X-Quota-Resource", string(result.Resource))
	c.Header("X-Quota-Remaining", strconv.Itoa(result.Remaining))
	if result.FailOpen {
		c.Header("X-Quota-Degraded", "true")
	}
}

// Convenience extractors

// FromContext returns a RequestExtractor that reads an already-built
// admission request from Gin context values. This is the recommended
// approach for integrating with auth middleware that resolves the user's
// tier and team via c.Set("AdmissionRequest", req).
func FromContext(key string) RequestExtractor {
	return func(c *gongin.Context) cortexa.RequestContext {
		if val, exists := c.Get(key); exists {
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
	return func(c *gongin.Context) cortexa.RequestContext {
		teamSize, _ := strconv.Atoi(c.GetHeader("X-Team-Size"))
		return cortexa.RequestContext{
			UserID:                c.GetHeader("X-User-ID"),
			Tier:                  cortexa.Tier(c.GetHeader("X-User-Tier")),
			TeamSize:              teamSize,
			Role:                  c.GetHeader("X-User-Role"),
			Locale:                c.GetHeader("X-User-Locale"),
			HasAttachment:         c.GetHeader("X-Has-Attachment") == "true",
			AugmentationRequested: c.GetHeader("X-Augmentation") == "true",
		}
	}
}

// WithUserID returns a RequestExtractor that wraps another extractor and
// overrides the user ID from a route parameter. Useful for per-user admin
// endpoints.
func WithUserID(paramName string, inner RequestExtractor) RequestExtractor {
	return func(c *gongin.Context) cortexa.RequestContext {
		req := inner(c)
		if id := c.Param(paramName); id != "" {
			req.UserID = id
		}
		return req
	}
}
