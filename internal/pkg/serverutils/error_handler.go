// FILE: internal/pkg/serverutils/error_handler.go
package serverutils

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"mediquery-be/pkg/answer"
	"mediquery-be/pkg/prompt"
)

// ErrorHandlerMiddleware translates domain errors into the standard envelope.
// Anything unmapped becomes a 500 with a generic message so internals never
// leak to clients.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := fiber.StatusInternalServerError
		message := "Internal server error"

		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
			message = fiberErr.Message
		case errors.Is(err, prompt.ErrPromptNotFound):
			code = fiber.StatusNotFound
			message = err.Error()
		case errors.Is(err, prompt.ErrPresetNotFound):
			code = fiber.StatusNotFound
			message = err.Error()
		case errors.Is(err, answer.ErrGenerationFailed):
			code = fiber.StatusServiceUnavailable
			message = "Answer generation is temporarily unavailable, please retry"
		case errors.Is(err, answer.ErrRunCancelled):
			// 499: client closed request (nginx convention)
			code = 499
			message = "Request cancelled"
		}

		if code == fiber.StatusInternalServerError {
			log.Printf("[ERROR] unhandled: %v (path=%s)", err, ctx.Path())
		}

		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}
