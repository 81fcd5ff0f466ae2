package store

import "docvault/pkg/domain"

// Store defines persistence operations for users, documents, activities,
// and ingestions. Identifiers are assigned by the store, sequentially per
// kind starting at 1. Lookups return (value, found, error): an absent
// record is not an error. The store performs no uniqueness enforcement;
// callers check username/email before creating users.
type Store interface {
	// users
	CreateUser(u domain.User) (domain.User, error)
	GetUser(id int64) (domain.User, bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	UpdateUser(id int64, upd domain.UserUpdate) (domain.User, bool, error)
	DeleteUser(id int64) (bool, error)
	UserCount() (int, error)

	// documents
	CreateDocument(d domain.Document) (domain.Document, error)
	GetDocument(id int64) (domain.Document, bool, error)
	ListDocuments() ([]domain.Document, error)
	ListDocumentsByOwner(userID int64) ([]domain.Document, error)
	UpdateDocument(id int64, upd domain.DocumentUpdate) (domain.Document, bool, error)
	DeleteDocument(id int64) (bool, error)
	SetDocumentStarred(id int64, starred bool) (domain.Document, bool, error)

	// activities (append-only)
	CreateActivity(a domain.Activity) (domain.Activity, error)
	ListActivities(limit int) ([]domain.Activity, error)
	ListUserActivities(userID int64, limit int) ([]domain.Activity, error)

	// ingestions
	CreateIngestion(i domain.Ingestion) (domain.Ingestion, error)
	GetIngestion(id int64) (domain.Ingestion, bool, error)
	ListIngestions() ([]domain.Ingestion, error)
	SetIngestionStatus(id int64, status domain.IngestionStatus, logs string) (domain.Ingestion, bool, error)
}

// SessionStore binds opaque session tokens to user ids.
type SessionStore interface {
	NewSession(userID int64) (string, error)
	GetUserIDByToken(token string) (int64, bool, error)
	DeleteSession(token string) error
}
