package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
)

var (
	// ErrExternalService marks failures of collaborators such as the mailer or the token issuer.
	ErrExternalService = errors.New("external service failure")

	// ErrUnrecognizedNotification is returned by payment resolution when no
	// resource matches. The dispatcher records it as unhandled and acknowledges.
	ErrUnrecognizedNotification = errors.New("unrecognized payment notification")
)
