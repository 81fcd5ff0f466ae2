package domain

import "time"

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleEditor UserRole = "editor"
	RoleViewer UserRole = "viewer"
)

// Capability is a coarse permission resolved from a role at the policy layer.
type Capability string

const (
	CapManageUsers        Capability = "manage_users"
	CapAccessAllDocuments Capability = "access_all_documents"
)

var roleCapabilities = map[UserRole]map[Capability]struct{}{
	RoleAdmin: {
		CapManageUsers:        {},
		CapAccessAllDocuments: {},
	},
	RoleEditor: {},
	RoleViewer: {},
}

// Can reports whether the role grants the capability.
func (r UserRole) Can(c Capability) bool {
	caps, ok := roleCapabilities[r]
	if !ok {
		return false
	}
	_, ok = caps[c]
	return ok
}

type IngestionStatus string

const (
	IngestionPending    IngestionStatus = "pending"
	IngestionProcessing IngestionStatus = "processing"
	IngestionCompleted  IngestionStatus = "completed"
	IngestionFailed     IngestionStatus = "failed"
)

// Terminal reports whether the status ends the ingestion lifecycle.
func (s IngestionStatus) Terminal() bool {
	return s == IngestionCompleted || s == IngestionFailed
}

// rank orders statuses so transitions only ever move forward.
func (s IngestionStatus) rank() int {
	switch s {
	case IngestionPending:
		return 0
	case IngestionProcessing:
		return 1
	case IngestionCompleted, IngestionFailed:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether next is a strictly forward transition.
func (s IngestionStatus) CanTransitionTo(next IngestionStatus) bool {
	return next.rank() > s.rank()
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Document struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	Path       string    `json:"path"`
	UserID     int64     `json:"userId"`
	Starred    bool      `json:"starred"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Activity is an immutable audit record of a state-changing action.
type Activity struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	DocumentID *int64    `json:"documentId,omitempty"`
	UserID     int64     `json:"userId"`
	Details    string    `json:"details"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Ingestion struct {
	ID          int64           `json:"id"`
	DocumentID  int64           `json:"documentId"`
	UserID      int64           `json:"userId"`
	Status      IngestionStatus `json:"status"`
	Logs        string          `json:"logs,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt"`
}

// Answer is the fixed-shape response of the Q&A endpoint.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

type Source struct {
	DocumentID int64   `json:"documentId"`
	Title      string  `json:"title"`
	Relevance  float64 `json:"relevance"`
}

// UserUpdate carries optional fields for a partial user update.
// Nil fields are left untouched.
type UserUpdate struct {
	Username     *string
	PasswordHash *string
	Name         *string
	Email        *string
	Role         *UserRole
}

// DocumentUpdate carries optional fields for a partial document update.
type DocumentUpdate struct {
	Name    *string
	Type    *string
	Size    *int64
	Path    *string
	Starred *bool
}

// ParseUserRole maps an input string onto the closed role enumeration.
// "user" is accepted as a legacy alias of editor.
func ParseUserRole(role string) (UserRole, bool) {
	switch role {
	case string(RoleAdmin):
		return RoleAdmin, true
	case string(RoleEditor), "user":
		return RoleEditor, true
	case string(RoleViewer):
		return RoleViewer, true
	default:
		return "", false
	}
}
