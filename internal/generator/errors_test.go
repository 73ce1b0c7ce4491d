package generator

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/keyxmakerx/adpilot/internal/apperror"
)

func TestAsAppError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not configured", ErrNotConfigured, http.StatusServiceUnavailable},
		{"invalid input", fmt.Errorf("%w: image prompt is required", ErrInvalidInput), http.StatusUnprocessableEntity},
		{"malformed", fmt.Errorf("%w: empty response", ErrMalformedResponse), http.StatusBadGateway},
		{"backend", errors.New("connection reset"), http.StatusBadGateway},
		{"already app error", apperror.NewConflict("x"), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var appErr *apperror.AppError
			if !errors.As(AsAppError(tt.err), &appErr) {
				t.Fatalf("expected AppError for %v", tt.err)
			}
			if appErr.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, appErr.Code)
			}
		})
	}

	if AsAppError(nil) != nil {
		t.Error("nil should stay nil")
	}
	var appErr *apperror.AppError
	errors.As(AsAppError(fmt.Errorf("%w: image prompt is required", ErrInvalidInput)), &appErr)
	if appErr.Message != "image prompt is required" {
		t.Errorf("unexpected message %q", appErr.Message)
	}
}
