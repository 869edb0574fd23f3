package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCredentialMissing = errors.New("credential missing")
	ErrEndpointMissing   = errors.New("endpoint missing")
	ErrAuthRejected      = errors.New("authentication rejected")
	ErrUnexpectedStatus  = errors.New("unexpected response status")
	ErrConnectRefused    = errors.New("connection refused")
	ErrConnectTimeout    = errors.New("connect timed out")
	ErrDraftTimeout      = errors.New("draft request timed out")
	ErrDraftInvalid      = errors.New("draft output invalid")
	ErrJournalEntryEmpty = errors.New("journal entry is empty")
	ErrSecretNotFound    = errors.New("secret not found")
)

// APIError is the normalized failure returned by the forum REST client. The
// core only inspects Message, never transport status codes.
type APIError struct {
	Op      string
	Message string
}

func (e *APIError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// IsAPIError reports whether err carries an upstream API failure.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
