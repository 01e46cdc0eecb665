package http

import (
	"github.com/gofiber/fiber/v2"
)

// Handlers groups everything Register mounts. Proxy may be nil.
type Handlers struct {
	Auth      *AuthHandler
	Compute   *ContainerHandler
	Terminal  *TerminalHandler
	Proxy     *ProxyHandler
	Readiness func() error
}

// Register mounts the API routes on app.
func Register(app *fiber.App, h Handlers) {
	if h.Proxy != nil {
		app.Use(h.Proxy.ProxyRequest)
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "Welcome to AetherHost Cloud API"})
	})
	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/api/ready", func(c *fiber.Ctx) error {
		if h.Readiness != nil {
			if err := h.Readiness(); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "unavailable",
					"error":  err.Error(),
				})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", h.Auth.Signup)
	authGroup.Post("/login", h.Auth.Login)
	authGroup.Get("/me", h.Auth.RequireUser, h.Auth.Me)

	compute := app.Group("/compute", h.Auth.RequireUser)
	compute.Get("/list", h.Compute.ListContainers)
	compute.Post("/create", h.Compute.StartContainer)
	compute.Delete("/stop/:id", h.Compute.StopContainer)
	compute.Get("/logs/:id", h.Compute.GetContainerLogs)
	compute.Post("/exec/:id", h.Compute.ExecCommand)

	if h.Terminal != nil {
		app.Get("/terminal/ws", h.Terminal.Upgrade, h.Auth.RequireUser, h.Terminal.Serve())
		app.Get("/terminal/stream/:id", h.Terminal.Upgrade, h.Auth.RequireUser, h.Terminal.Stream())
	}
}
