package identity

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
)

// NewServer builds the fiber-backed router adapter the identity
// controllers register their routes on.
func NewServer(appName string) router.Server[*fiber.App] {
	return router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:      appName,
			UnescapePath: true,
		}))
	})
}
