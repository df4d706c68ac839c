package oauth

// Error is an OAuth validation failure. Code is the RFC 6749 error code and
// Reason is the machine-readable cause reported as "detail".
type Error struct {
	Code        string
	Reason      string
	Description string
}

func (e *Error) Error() string {
	return e.Reason + ": " + e.Description
}

var (
	ErrInvalidClient         = &Error{Code: "invalid_client", Reason: "invalid_client", Description: "unknown client_id"}
	ErrInvalidClientSecret   = &Error{Code: "invalid_client", Reason: "invalid_client_secret", Description: "client authentication failed"}
	ErrUnauthorizedRedirect  = &Error{Code: "invalid_request", Reason: "unauthorized_redirect", Description: "redirect_uri is not registered for this client"}
	ErrInvalidGrant          = &Error{Code: "invalid_grant", Reason: "invalid_grant", Description: "grant is invalid or was already used"}
	ErrExpiredGrant          = &Error{Code: "invalid_grant", Reason: "expired_grant", Description: "authorization code expired"}
	ErrClientMismatch        = &Error{Code: "invalid_grant", Reason: "client_mismatch", Description: "grant was issued to another client"}
	ErrRedirectMismatch      = &Error{Code: "invalid_grant", Reason: "redirect_mismatch", Description: "redirect_uri does not match the authorization request"}
	ErrInvalidClientMetadata = &Error{Code: "invalid_client_metadata", Reason: "invalid_client_metadata", Description: "client metadata is invalid"}
)

func metadataError(description string) *Error {
	return &Error{Code: ErrInvalidClientMetadata.Code, Reason: ErrInvalidClientMetadata.Reason, Description: description}
}

// Is makes metadata errors with custom descriptions match ErrInvalidClientMetadata.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (e.Reason == t.Reason && e.Code == t.Code && t == ErrInvalidClientMetadata)
}
