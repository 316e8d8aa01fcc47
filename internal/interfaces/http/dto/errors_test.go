package dto

import (
	"net/http"
	"testing"

	"github.com/rental/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestDomainErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      *shared.DomainError
		expected int
	}{
		{"validation", shared.NewValidationError("INVALID_READING", "current reading is below previous"), http.StatusBadRequest},
		{"duplicate bill", shared.NewConflictError("DUPLICATE_BILL", "bill already exists for 2026-02"), http.StatusConflict},
		{"stale version", shared.ErrConcurrencyConflict, http.StatusConflict},
		{"not found", shared.ErrNotFound, http.StatusNotFound},
		{"cancelled bill", shared.NewStateError("BILL_CANCELLED", "bill is cancelled"), http.StatusUnprocessableEntity},
		{"uncategorized", &shared.DomainError{Code: "WHATEVER", Message: "x"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DomainErrorStatus(tt.err))
		})
	}
}

func TestAPIErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, APIErrorCode(shared.ErrNotFound.Code))
	assert.Equal(t, ErrCodeConcurrencyConflict, APIErrorCode(shared.ErrConcurrencyConflict.Code))
	assert.Equal(t, ErrCodeInvalidState, APIErrorCode(shared.ErrInvalidState.Code))
	assert.Equal(t, "DUPLICATE_BILL", APIErrorCode("DUPLICATE_BILL"))
	assert.Equal(t, ErrCodeTooLarge, APIErrorCode(ErrCodeTooLarge))
}
