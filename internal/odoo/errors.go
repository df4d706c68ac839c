package odoo

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is wrapped by AuthenticationError when connection
// settings are missing.
var ErrNotConfigured = errors.New("odoo connection is not configured")

// ErrLoginRejected is wrapped by AuthenticationError when the backend
// answers the login without a user id.
var ErrLoginRejected = errors.New("backend returned no user id")

// AuthenticationError means no uid could be obtained from the backend.
type AuthenticationError struct {
	Database string
	Username string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("odoo authentication failed for user %q on database %q: %v", e.Username, e.Database, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RemoteCallError is a model/method invocation that failed after retries.
type RemoteCallError struct {
	Model  string
	Method string
	Err    error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("error calling %s.%s: %v", e.Model, e.Method, e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }
