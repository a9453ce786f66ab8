package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tunecrate/internal/logging"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = fiber.HeaderXRequestID

// RequestContext tags each request with an id, stores it in the user
// context for contextual logging and logs the request once it completes.
func RequestContext(logger *zerolog.Logger) fiber.Handler {
	if logger == nil {
		logger = logging.WithModule("http")
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()

		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)

		ctx := logging.ContextWithRequestID(c.UserContext(), id)
		c.SetUserContext(ctx)

		// The error is rendered here, so the logged status is the one the
		// client receives
		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		status := c.Response().StatusCode()

		log := logging.FromContext(ctx, *logger)
		event := log.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = log.Error().Err(err)
		case err != nil:
			event = log.Warn().Err(err)
		}
		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("Request completed")

		return nil
	}
}
