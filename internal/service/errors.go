package service

import "fmt"

// OAuth error codes used across handlers and services (RFC 6749 plus the
// service-specific user_not_found).
const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeInvalidClient           = "invalid_client"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
	ErrCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrCodeInvalidGrant            = "invalid_grant"
	ErrCodeInvalidToken            = "invalid_token"
	ErrCodeUnauthorized            = "unauthorized"
	ErrCodeAccessDenied            = "access_denied"
	ErrCodeUserNotFound            = "user_not_found"
	ErrCodeServerError             = "server_error"
)

// OAuthError is a protocol-level failure carrying the machine-readable code
// and the HTTP status the handler should answer with.
type OAuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{Code: code, Description: description, Status: status}
}
