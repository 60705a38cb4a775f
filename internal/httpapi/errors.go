package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"wplace_overlay/internal/compositor"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/wplace"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error ErrorBody `json:"error"`
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}

func statusFor(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		switch fe.Code {
		case fiber.StatusBadRequest:
			return fe.Code, "BAD_REQUEST"
		case fiber.StatusNotFound:
			return fe.Code, "NOT_FOUND"
		case fiber.StatusRequestEntityTooLarge:
			return fe.Code, "PAYLOAD_TOO_LARGE"
		}
		return fe.Code, "HTTP_ERROR"
	case errors.Is(err, overlay.ErrInvalidInput):
		return fiber.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, overlay.ErrLayerNotFound):
		return fiber.StatusNotFound, "LAYER_NOT_FOUND"
	case errors.Is(err, errJobNotFound):
		return fiber.StatusNotFound, "JOB_NOT_FOUND"
	case errors.Is(err, compositor.ErrBatchUnavailable):
		return fiber.StatusServiceUnavailable, "BATCH_UNAVAILABLE"
	case errors.Is(err, wplace.ErrUpstreamStatus):
		return fiber.StatusBadGateway, "UPSTREAM_ERROR"
	}
	return fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, name := statusFor(err)
		if code >= fiber.StatusInternalServerError {
			logger.Error("HTTP Error",
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
		}
		return c.Status(code).JSON(errorResponse{Error: ErrorBody{Code: name, Message: err.Error()}})
	}
}
