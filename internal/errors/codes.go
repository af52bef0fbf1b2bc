// Package errors provides structured error handling for the commit pipeline.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Commit pipeline errors
	CodeValidation        Code = "VALIDATION"
	CodeTerminalNotFound  Code = "TERMINAL_NOT_FOUND"
	CodeChannelConfig     Code = "CHANNEL_CONFIG"
	CodeStorage           Code = "STORAGE"
	CodeChannel           Code = "CHANNEL"
	CodeTransactionGone   Code = "TRANSACTION_NOT_FOUND"
	CodeDuplicateTerminal Code = "DUPLICATE_TERMINAL"
)

// HTTPStatus maps domain codes to HTTP status codes for the POS API.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeValidation:
		return http.StatusBadRequest

	// Not found - resource doesn't exist
	case CodeTerminalNotFound,
		CodeTransactionGone:
		return http.StatusNotFound

	// Conflict - uniqueness violations on provisioning
	case CodeDuplicateTerminal:
		return http.StatusConflict

	// CodeChannelConfig and CodeChannel surface after a durable write has
	// already happened; when they reach a caller at all they are server-side
	// failures, never caller mistakes.
	default:
		return http.StatusInternalServerError
	}
}
