package routes

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
)

// pathParameter returns the unescaped path parameter, identifiers may carry escaped separators
func pathParameter(c *fiber.Ctx, name string) (string, error) {
	value, err := url.PathUnescape(c.Params(name))
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "Parameter "+name+" is not a valid path segment")
	}
	return value, nil
}
