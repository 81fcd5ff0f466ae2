package server

import (
	"net/http"
	"strings"

	"docvault/internal/app"
	"docvault/pkg/domain"
)

// fieldError is one entry in the errors array of a validation response.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeValidationError(w http.ResponseWriter, errs []fieldError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"message": "Invalid input data",
		"errors":  errs,
	})
}

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// validate checks the signup body shape and resolves the role. An absent
// role defaults to editor.
func (r signupRequest) validate() (domain.UserRole, []fieldError) {
	var errs []fieldError
	if strings.TrimSpace(r.Username) == "" {
		errs = append(errs, fieldError{Field: "username", Message: "username is required"})
	}
	if r.Password == "" {
		errs = append(errs, fieldError{Field: "password", Message: "password is required"})
	} else if len(r.Password) > 72 {
		errs = append(errs, fieldError{Field: "password", Message: "password is too long"})
	}
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, fieldError{Field: "name", Message: "name is required"})
	}
	email := strings.TrimSpace(r.Email)
	if email == "" {
		errs = append(errs, fieldError{Field: "email", Message: "email is required"})
	} else if !strings.Contains(email, "@") {
		errs = append(errs, fieldError{Field: "email", Message: "email is invalid"})
	}
	role := domain.RoleEditor
	if r.Role != "" {
		parsed, ok := domain.ParseUserRole(r.Role)
		if !ok {
			errs = append(errs, fieldError{Field: "role", Message: "role must be one of admin, editor, viewer"})
		} else {
			role = parsed
		}
	}
	return role, errs
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userUpdateRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
}

func (r userUpdateRequest) validate() (app.UserUpdateRequest, []fieldError) {
	var errs []fieldError
	upd := app.UserUpdateRequest{
		Username: r.Username,
		Password: r.Password,
		Name:     r.Name,
		Email:    r.Email,
	}
	if r.Username != nil && strings.TrimSpace(*r.Username) == "" {
		errs = append(errs, fieldError{Field: "username", Message: "username must not be empty"})
	}
	if r.Password != nil && *r.Password == "" {
		errs = append(errs, fieldError{Field: "password", Message: "password must not be empty"})
	}
	if r.Email != nil && !strings.Contains(*r.Email, "@") {
		errs = append(errs, fieldError{Field: "email", Message: "email is invalid"})
	}
	if r.Role != nil {
		parsed, ok := domain.ParseUserRole(*r.Role)
		if !ok {
			errs = append(errs, fieldError{Field: "role", Message: "role must be one of admin, editor, viewer"})
		} else {
			upd.Role = &parsed
		}
	}
	return upd, errs
}

type documentCreateRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Path string `json:"path"`
}

func (r documentCreateRequest) validate() []fieldError {
	var errs []fieldError
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, fieldError{Field: "name", Message: "name is required"})
	}
	if strings.TrimSpace(r.Type) == "" {
		errs = append(errs, fieldError{Field: "type", Message: "type is required"})
	}
	if r.Size < 0 {
		errs = append(errs, fieldError{Field: "size", Message: "size must be non-negative"})
	}
	return errs
}

type documentUpdateRequest struct {
	Name *string `json:"name"`
	Type *string `json:"type"`
	Size *int64  `json:"size"`
	Path *string `json:"path"`
}

func (r documentUpdateRequest) validate() (domain.DocumentUpdate, []fieldError) {
	var errs []fieldError
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		errs = append(errs, fieldError{Field: "name", Message: "name must not be empty"})
	}
	if r.Size != nil && *r.Size < 0 {
		errs = append(errs, fieldError{Field: "size", Message: "size must be non-negative"})
	}
	return domain.DocumentUpdate{
		Name: r.Name,
		Type: r.Type,
		Size: r.Size,
		Path: r.Path,
	}, errs
}

type starRequest struct {
	Starred *bool `json:"starred"`
}

type ingestionCreateRequest struct {
	DocumentID int64 `json:"documentId"`
}

func (r ingestionCreateRequest) validate() []fieldError {
	if r.DocumentID <= 0 {
		return []fieldError{{Field: "documentId", Message: "documentId is required"}}
	}
	return nil
}

type queryRequest struct {
	Query string `json:"query"`
}
