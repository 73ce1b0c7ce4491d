package generator

import (
	"errors"
	"strings"

	"github.com/keyxmakerx/adpilot/internal/apperror"
)

// AsAppError translates a provider error for the caller. A missing
// credential is a configuration error, bad input is a validation error, and
// anything the provider itself did wrong is a remote error.
func AsAppError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotConfigured):
		return apperror.NewConfiguration("content provider is not configured")
	case errors.Is(err, ErrInvalidInput):
		return apperror.NewValidation(strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "))
	case errors.Is(err, ErrMalformedResponse):
		return apperror.NewRemote("content provider returned a malformed response", err)
	default:
		return apperror.NewRemote("content provider request failed", err)
	}
}
