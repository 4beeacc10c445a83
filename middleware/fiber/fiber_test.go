package fiber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
	"github.com/equaltechbd/cortexa/storage/memory"
)

func setupTestController(t *testing.T) *cortexa.Controller {
	t.Helper()

	controller, err := cortexa.NewController(memory.New(), cortexa.Config{})
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	return controller
}

func exhaustMessages(t *testing.T, controller *cortexa.Controller, userID string) {
	t.Helper()

	ctx := context.Background()
	req := cortexa.RequestContext{UserID: userID, Tier: cortexa.TierFree, TeamSize: 1}
	for i := 0; i < 20; i++ {
		if _, err := controller.Admit(ctx, req); err != nil {
			t.Fatalf("Admit %d failed: %v", i+1, err)
		}
	}
}

func setupTestApp(controller *cortexa.Controller, cfg Config) *fiber.App {
	app := fiber.New()
	cfg.Controller = controller
	if cfg.GetRequest == nil {
		cfg.GetRequest = FromHeaders()
	}
	app.Use(Middleware(cfg))
	app.Post("/messages", func(c *fiber.Ctx) error {
		return c.SendString("success")
	})
	return app
}

func TestMiddleware_Success(t *testing.T) {
	app := setupTestApp(setupTestController(t), Config{})

	req := httptest.NewRequest(http.MethodPost, "/messages", nil)
	req.Header.Set("X-User-ID", "user1")
	req.Header.Set("X-User-Tier", "free")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Quota-Resource"); got != "message" {
		t.Errorf("Expected message resource header, got %q", got)
	}
	if got := resp.Header.Get("X-Quota-Remaining"); got != "19" {
		t.Errorf("Expected 19 remaining, got %q", got)
	}
}

func TestMiddleware_QuotaExceeded(t *testing.T) {
	controller := setupTestController(t)
	exhaustMessages(t, controller, "user1")
	app := setupTestApp(controller, Config{})

	req := httptest.NewRequest(http.MethodPost, "/messages", nil)
	req.Header.Set("X-User-ID", "user1")
	req.Header.Set("X-User-Tier", "free")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Quota-Resource"); got != "message" {
		t.Errorf("Expected message resource header, got %q", got)
	}
}

func TestMiddleware_MissingAuth(t *testing.T) {
	app := setupTestApp(setupTestController(t), Config{})

	req := httptest.NewRequest(http.MethodPost, "/messages", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}
}

func TestMiddleware_CustomOnDenied(t *testing.T) {
	controller := setupTestController(t)
	exhaustMessages(t, controller, "user1")

	app := setupTestApp(controller, Config{
		OnDenied: func(c *fiber.Ctx, result *cortexa.Result) error {
			return c.Status(fiber.StatusPaymentRequired).SendString("upgrade your plan")
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/messages", nil)
	req.Header.Set("X-User-ID", "user1")
	req.Header.Set("X-User-Tier", "free")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("Expected status 402, got %d", resp.StatusCode)
	}
}

func TestMiddleware_FromContext(t *testing.T) {
	controller := setupTestController(t)

	app := fiber.New()
	// Simulated auth middleware publishes the admission request
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("AdmissionRequest", cortexa.RequestContext{
			UserID: "user1", Tier: cortexa.TierPro, TeamSize: 1,
		})
		return c.Next()
	})
	app.Use(Middleware(Config{
		Controller: controller,
		GetRequest: FromContext("AdmissionRequest"),
	}))
	app.Post("/messages", func(c *fiber.Ctx) error {
		return c.SendString("success")
	})

	req := httptest.NewRequest(http.MethodPost, "/messages", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestMiddleware_PanicsOnMissingConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing Controller")
		}
	}()
	Middleware(Config{GetRequest: FromHeaders()})
}
