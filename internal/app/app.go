package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"docvault/internal/ingest"
	"docvault/internal/storage"
	"docvault/internal/store"
	"docvault/pkg/auth"
	"docvault/pkg/domain"
)

// Config wires the application's collaborators. Store and Sessions are
// required; Blobs is optional (content endpoints are disabled without it).
type Config struct {
	Store           store.Store
	Sessions        store.SessionStore
	Blobs           storage.BlobStore
	Scheduler       ingest.Scheduler
	ProcessingDelay time.Duration
	CompletionDelay time.Duration
}

// App is the application core: authentication, the ownership/role policy,
// CRUD orchestration, and the activity audit trail. It owns no HTTP
// concerns and is constructed explicitly so tests get isolated instances.
type App struct {
	store    store.Store
	sessions store.SessionStore
	blobs    storage.BlobStore
	runner   *ingest.Runner
}

// New constructs the application and seeds the default admin account when
// the store is empty.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	a := &App{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		blobs:    cfg.Blobs,
		runner:   ingest.NewRunner(cfg.Store, cfg.Scheduler, cfg.ProcessingDelay, cfg.CompletionDelay),
	}
	if err := a.seedAdmin(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) seedAdmin() error {
	count, err := a.store.UserCount()
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword("admin123")
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	admin, err := a.store.CreateUser(domain.User{
		Username:     "admin",
		PasswordHash: hash,
		Name:         "Admin User",
		Email:        "admin@example.com",
		Role:         domain.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	slog.Info("seeded default admin user", "user_id", admin.ID)
	return nil
}

// SignUp registers a new user. Username and email uniqueness is checked
// here because the store does not self-enforce it.
func (a *App) SignUp(username, password, name, email string, role domain.UserRole) (domain.User, error) {
	if _, exists, err := a.store.GetUserByUsername(username); err != nil {
		return domain.User{}, fmt.Errorf("check username: %w", err)
	} else if exists {
		return domain.User{}, ErrUsernameExists
	}
	if _, exists, err := a.store.GetUserByEmail(email); err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	} else if exists {
		return domain.User{}, ErrEmailExists
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.CreateUser(domain.User{
		Username:     username,
		PasswordHash: hash,
		Name:         name,
		Email:        email,
		Role:         role,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(username, password string) (domain.User, string, error) {
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Logout invalidates a session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves a user from a session token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUser(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// ListUsers returns all users (admin use only; enforced by the server).
func (a *App) ListUsers() ([]domain.User, error) {
	return a.store.ListUsers()
}

// UserUpdateRequest carries optional fields for an admin user update.
type UserUpdateRequest struct {
	Username *string
	Password *string
	Name     *string
	Email    *string
	Role     *domain.UserRole
}

// UpdateUser applies a partial update. Username/email uniqueness holds at
// all times, so changes are checked against other users first.
func (a *App) UpdateUser(id int64, req UserUpdateRequest) (domain.User, error) {
	if req.Username != nil {
		if other, exists, err := a.store.GetUserByUsername(*req.Username); err != nil {
			return domain.User{}, fmt.Errorf("check username: %w", err)
		} else if exists && other.ID != id {
			return domain.User{}, ErrUsernameExists
		}
	}
	if req.Email != nil {
		if other, exists, err := a.store.GetUserByEmail(*req.Email); err != nil {
			return domain.User{}, fmt.Errorf("check email: %w", err)
		} else if exists && other.ID != id {
			return domain.User{}, ErrEmailExists
		}
	}
	upd := domain.UserUpdate{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
		Role:     req.Role,
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		upd.PasswordHash = &hash
	}
	user, found, err := a.store.UpdateUser(id, upd)
	if err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	if !found {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// DeleteUser removes a user. Admins cannot delete their own account.
// Documents and activities referencing the user are left in place.
func (a *App) DeleteUser(actor domain.User, id int64) error {
	if actor.ID == id {
		return ErrSelfDelete
	}
	deleted, err := a.store.DeleteUser(id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if !deleted {
		return ErrUserNotFound
	}
	return nil
}

// ListDocuments returns every document for admins, only owned documents
// otherwise.
func (a *App) ListDocuments(user domain.User) ([]domain.Document, error) {
	if user.Role.Can(domain.CapAccessAllDocuments) {
		return a.store.ListDocuments()
	}
	return a.store.ListDocumentsByOwner(user.ID)
}

// CreateDocument stores new document metadata owned by the caller and
// records an "upload" activity.
func (a *App) CreateDocument(user domain.User, name, docType string, size int64, path string) (domain.Document, error) {
	doc, err := a.store.CreateDocument(domain.Document{
		Name:   name,
		Type:   docType,
		Size:   size,
		Path:   path,
		UserID: user.ID,
	})
	if err != nil {
		return domain.Document{}, fmt.Errorf("save document: %w", err)
	}
	a.recordActivity("upload", &doc.ID, user.ID, fmt.Sprintf("%s was uploaded", doc.Name))
	return doc, nil
}

// GetDocument returns a document if the caller owns it or is admin.
func (a *App) GetDocument(user domain.User, id int64) (domain.Document, error) {
	return a.authorizedDocument(user, id)
}

// UpdateDocument applies a partial update under the ownership policy and
// records an "edit" activity naming the document as it was before the edit.
func (a *App) UpdateDocument(user domain.User, id int64, upd domain.DocumentUpdate) (domain.Document, error) {
	doc, err := a.authorizedDocument(user, id)
	if err != nil {
		return domain.Document{}, err
	}
	updated, found, err := a.store.UpdateDocument(id, upd)
	if err != nil {
		return domain.Document{}, fmt.Errorf("update document: %w", err)
	}
	if !found {
		return domain.Document{}, ErrDocumentNotFound
	}
	a.recordActivity("edit", &id, user.ID, fmt.Sprintf("%s was edited", doc.Name))
	return updated, nil
}

// DeleteDocument removes a document under the ownership policy. In-flight
// ingestions for the document are cancelled, stored content is removed,
// and a "delete" activity is recorded without a document reference.
func (a *App) DeleteDocument(user domain.User, id int64) error {
	doc, err := a.authorizedDocument(user, id)
	if err != nil {
		return err
	}
	a.runner.CancelDocument(id)
	deleted, err := a.store.DeleteDocument(id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if !deleted {
		return ErrDocumentNotFound
	}
	if a.blobs != nil && doc.Path != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.blobs.Delete(ctx, doc.Path); err != nil {
			slog.Warn("document content cleanup failed", "document_id", id, "err", err)
		}
	}
	a.recordActivity("delete", nil, user.ID, fmt.Sprintf("%s was deleted", doc.Name))
	return nil
}

// StarDocument flips only the starred flag under the ownership policy.
func (a *App) StarDocument(user domain.User, id int64, starred bool) (domain.Document, error) {
	if _, err := a.authorizedDocument(user, id); err != nil {
		return domain.Document{}, err
	}
	doc, found, err := a.store.SetDocumentStarred(id, starred)
	if err != nil {
		return domain.Document{}, fmt.Errorf("star document: %w", err)
	}
	if !found {
		return domain.Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// ListActivities returns the audit trail, most recent first, optionally
// capped and optionally filtered to one actor.
func (a *App) ListActivities(userID int64, limit int) ([]domain.Activity, error) {
	if userID > 0 {
		return a.store.ListUserActivities(userID, limit)
	}
	return a.store.ListActivities(limit)
}

// StartIngestion creates a pending ingestion and schedules its simulated
// progression. The completion activity is recorded by the runner.
func (a *App) StartIngestion(user domain.User, documentID int64) (domain.Ingestion, error) {
	ing, err := a.store.CreateIngestion(domain.Ingestion{
		DocumentID: documentID,
		UserID:     user.ID,
		Status:     domain.IngestionPending,
	})
	if err != nil {
		return domain.Ingestion{}, fmt.Errorf("save ingestion: %w", err)
	}
	a.runner.Start(ing)
	return ing, nil
}

// ListIngestions returns all ingestions, most recent first.
func (a *App) ListIngestions() ([]domain.Ingestion, error) {
	return a.store.ListIngestions()
}

// GetIngestion returns one ingestion by id.
func (a *App) GetIngestion(id int64) (domain.Ingestion, error) {
	ing, found, err := a.store.GetIngestion(id)
	if err != nil {
		return domain.Ingestion{}, fmt.Errorf("fetch ingestion: %w", err)
	}
	if !found {
		return domain.Ingestion{}, ErrIngestionNotFound
	}
	return ing, nil
}

// Query records a "query" activity and returns the canned answer. No text
// search is performed.
func (a *App) Query(user domain.User, query string) (domain.Answer, error) {
	a.recordActivity("query", nil, user.ID, fmt.Sprintf("%q was queried", query))
	return domain.Answer{
		Answer: "This is a simulated response to your query: " + query,
		Sources: []domain.Source{
			{DocumentID: 1, Title: "Annual Report 2023.pdf", Relevance: 0.92},
			{DocumentID: 3, Title: "Q1 Financial Summary.xlsx", Relevance: 0.78},
		},
	}, nil
}

// UploadDocumentContent stores the raw bytes for a document and points its
// path at the storage key.
func (a *App) UploadDocumentContent(user domain.User, id int64, filename string, r io.Reader, size int64, contentType string) (domain.Document, error) {
	if a.blobs == nil {
		return domain.Document{}, ErrContentStorageDisabled
	}
	doc, err := a.authorizedDocument(user, id)
	if err != nil {
		return domain.Document{}, err
	}
	key := fmt.Sprintf("%d/%s", id, filepath.Base(strings.TrimSpace(filename)))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.blobs.Put(ctx, key, r, size, contentType); err != nil {
		return domain.Document{}, fmt.Errorf("store content: %w", err)
	}
	updated, found, err := a.store.UpdateDocument(id, domain.DocumentUpdate{Path: &key, Size: &size})
	if err != nil {
		return domain.Document{}, fmt.Errorf("update document: %w", err)
	}
	if !found {
		return domain.Document{}, ErrDocumentNotFound
	}
	a.recordActivity("upload", &id, user.ID, fmt.Sprintf("%s content was uploaded", doc.Name))
	return updated, nil
}

// OpenDocumentContent streams stored document bytes under the ownership
// policy. The caller closes the reader.
func (a *App) OpenDocumentContent(ctx context.Context, user domain.User, id int64) (io.ReadCloser, domain.Document, error) {
	if a.blobs == nil {
		return nil, domain.Document{}, ErrContentStorageDisabled
	}
	doc, err := a.authorizedDocument(user, id)
	if err != nil {
		return nil, domain.Document{}, err
	}
	if doc.Path == "" {
		return nil, domain.Document{}, ErrContentNotFound
	}
	rc, err := a.blobs.Open(ctx, doc.Path)
	if err != nil {
		return nil, domain.Document{}, ErrContentNotFound
	}
	return rc, doc, nil
}

// authorizedDocument fetches a document and enforces the ownership policy:
// the owner or a caller with the access-all capability may proceed.
func (a *App) authorizedDocument(user domain.User, id int64) (domain.Document, error) {
	doc, found, err := a.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("fetch document: %w", err)
	}
	if !found {
		return domain.Document{}, ErrDocumentNotFound
	}
	if !user.Role.Can(domain.CapAccessAllDocuments) && doc.UserID != user.ID {
		return domain.Document{}, ErrForbidden
	}
	return doc, nil
}

// recordActivity appends one audit record. Activity append failures are
// logged rather than failing the primary operation that already succeeded.
func (a *App) recordActivity(activityType string, documentID *int64, userID int64, details string) {
	if _, err := a.store.CreateActivity(domain.Activity{
		Type:       activityType,
		DocumentID: documentID,
		UserID:     userID,
		Details:    details,
	}); err != nil {
		slog.Error("activity append failed", "type", activityType, "user_id", userID, "err", err)
	}
}
