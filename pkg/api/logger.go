package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/dataset"
)

const datasetVersionHeader = "X-Dataset-Version"

// NewLogger logs every request with the snapshot version it was answered from
// and exposes that version to the client as a response header.
func NewLogger(handle *dataset.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		startTime := time.Now()
		version := handle.Version()
		c.Set(datasetVersionHeader, strconv.FormatUint(version, 10))

		err := c.Next()
		if err != nil {
			// Let fiber render the error so the logged status is the one sent
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				c.Status(fiber.StatusInternalServerError)
			}
		}

		code := c.Response().StatusCode()

		var event *zerolog.Event
		switch {
		case code >= fiber.StatusInternalServerError:
			event = log.Error().Err(err)
		case code >= fiber.StatusBadRequest:
			event = log.Warn()
		default:
			event = log.Debug()
		}

		event.
			Int("status", code).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Uint64("dataset_version", version).
			Str("latency", time.Since(startTime).String()).
			Msg("HTTP Request")

		return nil
	}
}
