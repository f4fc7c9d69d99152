package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error constructors

// BadRequest creates a 400 error
func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    "BAD_REQUEST",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

// NotFound creates a 404 error
func NotFound(message string, err error) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: message,
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

// Conflict creates a 409 error
func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     err,
	}
}

// Internal creates a 500 error
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// ServiceUnavailable creates a 503 error
func ServiceUnavailable(message string, err error) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// BadGateway creates a 502 error
func BadGateway(message string, err error) *AppError {
	return &AppError{
		Code:    "BAD_GATEWAY",
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// Unprocessable creates a 422 error
func Unprocessable(message string, err error) *AppError {
	return &AppError{
		Code:    "UNPROCESSABLE",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     err,
	}
}

// Trip errors as shown to clients. A missing trip and a lost race share
// TRIP_UNAVAILABLE.

var (
	ErrTripUnavailable = &AppError{
		Code:    "TRIP_UNAVAILABLE",
		Message: "trip not found or unavailable",
		Status:  http.StatusNotFound,
	}
	ErrInvalidState     = &AppError{Code: "INVALID_STATE", Message: "operation not allowed in the current trip state", Status: http.StatusBadRequest}
	ErrRouteUnavailable = BadGateway("could not compute route", nil)
	ErrCannotCompute    = Unprocessable("could not compute route or fare for the given locations", nil)
	ErrAddressNotFound  = Unprocessable("address could not be geocoded", nil)
	ErrRatingNotFound   = NotFound("No rating found for this trip", nil)

	ErrDuplicateRequest = Conflict("Duplicate request detected", nil)
)

// GetAppError attempts to convert an error to AppError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	// Return generic internal error if not an AppError
	return Internal("An unexpected error occurred", err)
}
