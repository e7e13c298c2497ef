// Package remote defines the protocol types and client for the xolex operations API.
package remote

import (
	"github.com/xolex/xolex/internal/models"
)

// API paths, relative to the configured base URL.
const (
	PathLogin      = "/auth/login"
	PathOperations = "/operations"
	PathReception  = "/operations/reception"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer credential.
type LoginResponse struct {
	Token string `json:"token"`
}

// OperationsEnvelope is the wrapped form of the GET /operations response.
// The API may also return a bare array.
type OperationsEnvelope struct {
	Operations []models.Operation `json:"operations"`
}

// ReceptionRequest confirms physical receipt of an in-transit expedition.
type ReceptionRequest struct {
	OperationID models.Flex `json:"operationId"`
	UserID      string      `json:"userId,omitempty"`
}

// ReceptionResponse is the optional success body of POST /operations/reception.
type ReceptionResponse struct {
	Message   string            `json:"message,omitempty"`
	Operation *models.Operation `json:"operation,omitempty"`
}

// ErrorResponse is the structured error format returned by the API.
// Every field is optional.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
