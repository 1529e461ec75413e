package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/disruptions/pkg/dataset"
)

const APIVersionNumber = "v1.0"

func APIVersion(handle *dataset.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ds := handle.Current()

		return c.JSON(fiber.Map{
			"version":         APIVersionNumber,
			"dataset_version": handle.Version(),
			"production": fiber.Map{
				"start": ds.Production.Start,
				"end":   ds.Production.End,
			},
		})
	}
}
