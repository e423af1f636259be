package app

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown usernames and wrong
	// passwords alike so responses do not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect username or password")

	// ErrInvalidToken is returned for malformed, forged, or expired tokens.
	ErrInvalidToken = errors.New("Invalid or expired token")

	ErrUsernameTaken = errors.New("Username already registered")
	ErrEmailTaken    = errors.New("Email already registered")

	ErrUsernameTooShort = errors.New("username must be at least 3 characters")
	ErrUsernameTooLong  = errors.New("username must be at most 45 characters")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrUserIDRequired   = errors.New("valid user id required")

	ErrFieldsRequired = errors.New("At least one form field is required")
	ErrFormNotFound   = errors.New("form not found")
	ErrNotOwner       = errors.New("Not authorized to modify this record")

	ErrFormIDRequired   = errors.New("form id required")
	ErrFormNameRequired = errors.New("form name required")
	ErrElementsRequired = errors.New("form elements required")
	ErrSnapshotNotFound = errors.New("form data not found")
)
