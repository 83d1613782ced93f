package domain

import "errors"

// Operation errors. Each one ends the operation that raised it; nothing in
// the gateway retries.
var (
	ErrAuthInvalid      = errors.New("authentication failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAlreadyAttempted = errors.New("authentication already attempted")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrEmptyContent     = errors.New("empty content")
	ErrContentTooLong   = errors.New("content too long")
	ErrNotConnected     = errors.New("not connected")
	ErrBadRequest       = errors.New("bad request")
)

// Wire error codes.
const (
	ErrCodeAuthInvalid      = "AUTH_INVALID"
	ErrCodeNotAuthenticated = "NOT_AUTHENTICATED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInvalidRecipient = "INVALID_RECIPIENT"
	ErrCodeEmptyContent     = "EMPTY_CONTENT"
	ErrCodeContentTooLong   = "CONTENT_TOO_LONG"
	ErrCodeNotConnected     = "NOT_CONNECTED"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

var errorCodes = []struct {
	err     error
	code    string
	message string
}{
	{ErrAuthInvalid, ErrCodeAuthInvalid, "authentication failed"},
	{ErrNotAuthenticated, ErrCodeNotAuthenticated, "not authenticated"},
	{ErrAlreadyAttempted, ErrCodeAuthInvalid, "authentication already attempted; open a new connection"},
	{ErrForbidden, ErrCodeForbidden, "forbidden"},
	{ErrInvalidRecipient, ErrCodeInvalidRecipient, "invalid recipient"},
	{ErrEmptyContent, ErrCodeEmptyContent, "message content is empty"},
	{ErrContentTooLong, ErrCodeContentTooLong, "message content is too long"},
	{ErrNotConnected, ErrCodeNotConnected, "connection is closed"},
	{ErrBadRequest, ErrCodeBadRequest, "malformed request"},
}

// CodeFor maps an error to its wire code and a client-safe message.
// Wrapped causes are never exposed; unknown errors become INTERNAL_ERROR.
func CodeFor(err error) (code, message string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, e.message
		}
	}
	return ErrCodeInternalError, "internal error"
}
