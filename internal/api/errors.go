// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/storage"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int      `json:"-"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Path    string   `json:"path,omitempty"`
	Details string   `json:"details,omitempty"`
	Report  []string `json:"report,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// faultStatus maps fault categories onto HTTP statuses.
var faultStatus = map[faults.Category]int{
	faults.CategoryInput:       http.StatusBadRequest,
	faults.CategoryValidation:  http.StatusUnprocessableEntity,
	faults.CategoryUnsupported: http.StatusUnsupportedMediaType,
	faults.CategoryResource:    http.StatusRequestEntityTooLarge,
}

// NewFaultError converts a pipeline failure. The fault kind becomes the
// error code.
func NewFaultError(err error) *APIError {
	var fe *faults.Error
	if !errors.As(err, &fe) {
		return NewInternalError("operation failed", err)
	}
	status, ok := faultStatus[fe.Kind.Category()]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &APIError{
		Status:  status,
		Code:    string(fe.Kind),
		Message: fe.Message,
		Path:    fe.Path,
		Details: fe.Error(),
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	case errors.Is(err, storage.ErrNotFound):
		apiErr = &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case faults.KindOf(err) != "":
		apiErr = NewFaultError(err)
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
			Details: err.Error(),
		}
	}

	_ = c.JSON(apiErr.Status, apiErr)
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
