package core

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
)

// AppError is the service-wide error shape. Status picks the HTTP code,
// Code is a stable machine-readable tag, Message is the human detail.
type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"detail"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  fiber.StatusNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: fiber.StatusConflict, Message: msg}
}

func ValidationError(msg string) *AppError {
	return &AppError{Code: "VALIDATION_FAILED", Status: fiber.StatusUnprocessableEntity, Message: msg}
}

func UnavailableError(msg string) *AppError {
	return &AppError{Code: "UNAVAILABLE", Status: fiber.StatusServiceUnavailable, Message: msg}
}

// ErrorHandler is installed as the fiber app's central error handler.
// AppErrors map to their status; everything else is a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(appErr)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"code":   "INTERNAL_ERROR",
			"detail": fiberErr.Message,
		})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"code":   "INTERNAL_ERROR",
		"detail": "Internal server error",
	})
}
