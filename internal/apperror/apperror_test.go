package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("analysis", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("files", "maximum 5 files allowed"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("submission", "user-1"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "UpgradeRequired wraps ErrUpgradeRequired",
			err:       UpgradeRequired("free scan limit reached"),
			target:    ErrUpgradeRequired,
			wantMatch: true,
		},
		{
			name:      "wrapped UpgradeRequired still matches",
			err:       fmt.Errorf("service/analysis: %w", UpgradeRequired("")),
			target:    ErrUpgradeRequired,
			wantMatch: true,
		},
		{
			name:      "Unauthorized does NOT match ErrForbidden",
			err:       Unauthorized("sign in required"),
			target:    ErrForbidden,
			wantMatch: false,
		},
		{
			name:      "RateLimited does NOT match ErrUpgradeRequired",
			err:       RateLimited("daily chat limit reached"),
			target:    ErrUpgradeRequired,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("analysis", "abc123"),
			wantMessage: "analysis not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("text", "lease text is required"),
			wantMessage: "lease text is required",
		},
		{
			name:        "UpgradeRequired has a default message",
			err:         UpgradeRequired(""),
			wantMessage: "Upgrade required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("leaseFile", "only PDF or TXT files are accepted")

	if err.Field != "leaseFile" {
		t.Errorf("Field = %q, want %q", err.Field, "leaseFile")
	}
}
