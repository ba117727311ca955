package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dev-anas-tahir/Property-Hub/internal/auth"
)

const identityKey = "identity"

// AuthMiddleware validates the bearer token and attaches the caller's
// identity to the request. Requests without a valid token never reach the
// handlers.
func AuthMiddleware(jv *auth.JWTValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		identity, err := jv.Validate(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// WithIdentity sets the identity directly; test helper for exercising
// handlers without minting tokens.
func WithIdentity(id auth.Identity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(identityKey, id)
		return c.Next()
	}
}
