package app

import "errors"

// Sentinel errors mapped to HTTP responses by the server layer. Messages
// are user-facing and must not enable account enumeration beyond what the
// signup flow already reveals.
var (
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrUsernameExists     = errors.New("Username already exists")
	ErrEmailExists        = errors.New("Email already exists")

	ErrUserNotFound      = errors.New("User not found")
	ErrDocumentNotFound  = errors.New("Document not found")
	ErrIngestionNotFound = errors.New("Ingestion not found")

	ErrForbidden  = errors.New("forbidden")
	ErrSelfDelete = errors.New("Cannot delete your own account")

	ErrContentStorageDisabled = errors.New("Content storage is not configured")
	ErrContentNotFound        = errors.New("Document content not found")
)
