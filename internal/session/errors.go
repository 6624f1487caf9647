package session

import "errors"

var (
	// ErrUserExists: registration hit an email that is already taken.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials covers both unknown email and wrong password.
	// The two cases are deliberately indistinguishable so the endpoint
	// cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated: no credential was presented at all.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden: a credential was presented but is expired, tampered,
	// or references a user that no longer exists.
	ErrForbidden = errors.New("forbidden")

	// ErrStore wraps collaborator failures. The wrapped detail is logged
	// internally and never shown to clients.
	ErrStore = errors.New("credential store failure")
)
