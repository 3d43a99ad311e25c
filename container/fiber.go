package container

import (
	"github.com/gofiber/fiber/v2"
)

// ScopeLocalsKey is the fiber locals key holding the request scope
const ScopeLocalsKey = "container_scope"

// Middleware opens a scope per request and closes it when the handler chain
// returns
func Middleware(c *Container, onCloseErr func(error)) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		scope := c.NewScope()
		ctx.Locals(ScopeLocalsKey, scope)

		defer func() {
			if err := scope.Close(); err != nil && onCloseErr != nil {
				onCloseErr(err)
			}
		}()

		return ctx.Next()
	}
}

// FromFiber returns the request scope opened by Middleware
func FromFiber(ctx *fiber.Ctx) (*Scope, bool) {
	scope, ok := ctx.Locals(ScopeLocalsKey).(*Scope)
	return scope, ok && scope != nil
}
