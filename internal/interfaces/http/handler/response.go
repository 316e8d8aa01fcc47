package handler

import "github.com/rental/backend/internal/interfaces/http/dto"

// Envelope documents a successful body whose data field holds T.
type Envelope[T any] struct {
	Success bool      `json:"success" example:"true"`
	Data    T         `json:"data"`
	Meta    *dto.Meta `json:"meta,omitempty"`
}

// Failure documents an error body.
type Failure struct {
	Success bool          `json:"success" example:"false"`
	Error   dto.ErrorInfo `json:"error"`
}
