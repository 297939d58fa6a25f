package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	e := InvalidInput("limit must be >= 1")
	assert.Equal(t, "INVALID_INPUT: limit must be >= 1: invalid input", e.Error())

	bare := &AppError{Code: "X", Message: "y"}
	assert.Equal(t, "X: y", bare.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	e := NotFound("product", "p-1")
	assert.True(t, errors.Is(e, ErrNotFound))

	wrapped := fmt.Errorf("outer: %w", e)
	var appErr *AppError
	assert.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.Status)
}

func TestRateLimited_CarriesRetryAfter(t *testing.T) {
	e := RateLimited(42 * time.Second)
	assert.Equal(t, http.StatusTooManyRequests, e.Status)
	assert.Equal(t, 42*time.Second, e.RetryAfter)
	assert.True(t, errors.Is(e, ErrRateLimited))
}

func TestUnavailable_WrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	e := Unavailable("search backend unreachable", cause)
	assert.True(t, errors.Is(e, ErrUnavailable))
	assert.True(t, errors.Is(e, cause))
	assert.Equal(t, http.StatusServiceUnavailable, e.Status)

	// nil cause still maps to the sentinel
	e2 := Unavailable("degraded", nil)
	assert.True(t, errors.Is(e2, ErrUnavailable))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", InvalidInput("bad"), http.StatusBadRequest},
		{"wrapped sentinel", fmt.Errorf("ctx: %w", ErrNotFound), http.StatusNotFound},
		{"rate limited", fmt.Errorf("ctx: %w", ErrRateLimited), http.StatusTooManyRequests},
		{"unavailable", fmt.Errorf("ctx: %w", ErrUnavailable), http.StatusServiceUnavailable},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
