package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	cause := errors.New("connection refused")

	assert.Equal(t, "lookup failed: connection refused", Internal("lookup failed", cause).Error())
	assert.Equal(t, "bad input", BadRequest("bad input", nil).Error())
	assert.ErrorIs(t, ServiceUnavailable("down", cause), cause)
}

func TestConstructors_Status(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
		code   string
	}{
		{BadRequest("x", nil), http.StatusBadRequest, "BAD_REQUEST"},
		{NotFound("x", nil), http.StatusNotFound, "NOT_FOUND"},
		{Conflict("x", nil), http.StatusConflict, "CONFLICT"},
		{Unprocessable("x", nil), http.StatusUnprocessableEntity, "UNPROCESSABLE"},
		{Internal("x", nil), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{BadGateway("x", nil), http.StatusBadGateway, "BAD_GATEWAY"},
		{ServiceUnavailable("x", nil), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{ErrTripUnavailable, http.StatusNotFound, "TRIP_UNAVAILABLE"},
		{ErrInvalidState, http.StatusBadRequest, "INVALID_STATE"},
		{ErrRatingNotFound, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestGetAppError(t *testing.T) {
	wrapped := fmt.Errorf("assign: %w", ErrTripUnavailable)
	assert.Same(t, ErrTripUnavailable, GetAppError(wrapped))

	plain := errors.New("boom")
	got := GetAppError(plain)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.ErrorIs(t, got, plain)
}
