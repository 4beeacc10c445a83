// Package fiber provides Fiber middleware for admission enforcement
package fiber

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// RequestExtractor builds the admission request from a Fiber context.
// Leave UserID empty if the user is not authenticated.
type RequestExtractor func(c *fiber.Ctx) cortexa.RequestContext

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
	OnDenied func(c *fiber.Ctx, result *cortexa.Result) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that admits or denies each request
// against the user's daily quota
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Controller == nil {
		panic("cortexa/fiber: Config.Controller is required")
	}
	if cfg.GetRequest == nil {
		panic("cortexa/fiber: Config.GetRequest is required")
	}
	if cfg.DeniedStatusCode == 0 {
		cfg.DeniedStatusCode = fiber.StatusTooManyRequests
	}

	return func(c *fiber.Ctx) error {
		req := cfg.GetRequest(c)
		if req.UserID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		// Fiber uses fasthttp, so c.UserContext() carries the context.Context
		result, err := cfg.Controller.Admit(c.UserContext(), req)
		if err != nil {
			if errors.Is(err, cortexa.ErrQuotaExceeded) {
				setQuotaHeaders(c, result)
				if cfg.OnDenied != nil {
					return cfg.OnDenied(c, result)
				}
				return c.Status(cfg.DeniedStatusCode).JSON(fiber.Map{
					"error":    "Quota exceeded",
					"resource": string(result.Resource),
				})
			}

			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}

		setQuotaHeaders(c, result)
		return c.Next()
	}
}

func setQuotaHeaders(c *fiber.Ctx, result *cortexa.Result) {
	if result == nil {
		return
	}
	c.Set("X-Quota-Resource", string(result.Resource))
	c.Set("X-Quota-Remaining", strconv.Itoa(result.Remaining))
	if result.FailOpen {
		c.Set("X-Quota-Degraded", "true")
	}
}

// Convenience extractors

// FromContext returns a RequestExtractor that reads an already-built
// admission request from Fiber context values (Locals), set by auth
// middleware via c.Locals("AdmissionRequest", req).
func FromContext(key string) RequestExtractor {
	return func(c *fiber.Ctx) cortexa.RequestContext {
		if val := c.Locals(key); val != nil {
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
// Fiber v2 uses c.Get() for headers.
func FromHeaders() RequestExtractor {
	return func(c *fiber.Ctx) cortexa.RequestContext {
		teamSize, _ := strconv.Atoi(c.Get("X-Team-Size"))
		return cortexa.RequestContext{
			UserID:                c.Get("X-User-ID"),
			Tier:                  cortexa.Tier(c.Get("X-User-Tier")),
			TeamSize:              teamSize,
			Role:                  c.Get("X-User-Role"),
			Locale:                c.Get("X-User-Locale"),
			HasAttachment:         c.Get("X-Has-Attachment") == "true",
			AugmentationRequested: c.Get("X-Augmentation") == "true",
		}
	}
}
