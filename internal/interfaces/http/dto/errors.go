package dto

import (
	"net/http"

	"github.com/rental/backend/internal/domain/shared"
)

// Codes the HTTP layer produces itself. Billing errors keep their domain
// codes (DUPLICATE_BILL, INVALID_READING, ...) in responses.
const (
	ErrCodeInternal            = "ERR_INTERNAL"
	ErrCodeBadRequest          = "ERR_BAD_REQUEST"
	ErrCodeValidation          = "ERR_VALIDATION"
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeTooLarge            = "ERR_REQUEST_TOO_LARGE"
	ErrCodeUnavailable         = "ERR_SERVICE_UNAVAILABLE"
)

// sharedErrorCodes renames the codes of the shared domain sentinels
var sharedErrorCodes = map[string]string{
	shared.ErrNotFound.Code:            ErrCodeNotFound,
	shared.ErrAlreadyExists.Code:       ErrCodeConflict,
	shared.ErrInvalidInput.Code:        ErrCodeValidation,
	shared.ErrInvalidState.Code:        ErrCodeInvalidState,
	shared.ErrConcurrencyConflict.Code: ErrCodeConcurrencyConflict,
}

// APIErrorCode returns the code a response carries for a domain code
func APIErrorCode(code string) string {
	if apiCode, ok := sharedErrorCodes[code]; ok {
		return apiCode
	}
	return code
}

// DomainErrorStatus picks the HTTP status of a domain error from its
// category. A domain error without a category is a 500.
func DomainErrorStatus(err *shared.DomainError) int {
	switch err.Category {
	case shared.CategoryValidation:
		return http.StatusBadRequest
	case shared.CategoryConflict:
		return http.StatusConflict
	case shared.CategoryNotFound:
		return http.StatusNotFound
	case shared.CategoryState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
