package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docvault/internal/app"
	"docvault/internal/ratelimit"
	"docvault/internal/util"
	"docvault/pkg/domain"
)

const defaultSessionCookie = "docvault_session"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	SessionCookieName        string
	SessionTTL               time.Duration
	SecureCookies            bool
	MaxUploadBytes           int64
	RedisAddr                string
	RedisPassword            string
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
}

// Server exposes the REST endpoints over a session-cookie auth gate.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	cookieName     string
	sessionTTL     time.Duration
	secureCookies  bool
	maxUploadBytes int64
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Rate limiting is
// enabled only when a redis address is supplied; a nil limiter allows all.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	cookieName := cfg.SessionCookieName
	if cookieName == "" {
		cookieName = defaultSessionCookie
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		cookieName:     cookieName,
		sessionTTL:     ttl,
		secureCookies:  cfg.SecureCookies,
		maxUploadBytes: maxUpload,
	}
	if cfg.RedisAddr != "" {
		signupLimit := cfg.SignupRateLimitPerMinute
		if signupLimit <= 0 {
			signupLimit = 5
		}
		loginLimit := cfg.LoginRateLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 10
		}
		var err error
		s.signupLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "docvault:ratelimit:signup", signupLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init signup limiter: %w", err)
		}
		s.loginLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "docvault:ratelimit:login", loginLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init login limiter: %w", err)
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped with the standard middleware.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/auth/me", s.authenticated(s.handleMe))

	// admin user management
	s.mux.Handle("/api/users", s.adminOnly(s.handleUsers))
	s.mux.Handle("/api/users/", s.adminOnly(s.handleUserByID))

	// documents
	s.mux.Handle("/api/documents", s.authenticated(s.handleDocuments))
	s.mux.Handle("/api/documents/", s.authenticated(s.handleDocumentByID))

	// activities, ingestions, Q&A
	s.mux.Handle("/api/activities", s.authenticated(s.handleActivities))
	s.mux.Handle("/api/ingestions", s.authenticated(s.handleIngestions))
	s.mux.Handle("/api/ingestions/", s.authenticated(s.handleIngestionByID))
	s.mux.Handle("/api/qa/query", s.authenticated(s.handleQuery))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.sessionUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.sessionUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !user.Role.Can(domain.CapManageUsers) {
			s.audit(r, "admin.authorize", "fail", "user_id", user.ID)
			writeError(w, http.StatusForbidden, "Forbidden: Admin role required")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) sessionUser(r *http.Request) (domain.User, bool) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return domain.User{}, false
	}
	return s.app.UserFromToken(cookie.Value)
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "Too many signup attempts") {
		s.audit(r, "signup", "rate_limited")
		return
	}
	var req signupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role, fieldErrs := req.validate()
	if len(fieldErrs) > 0 {
		writeValidationError(w, fieldErrs)
		return
	}
	user, err := s.app.SignUp(req.Username, req.Password, req.Name, req.Email, role)
	if err != nil {
		s.audit(r, "signup", "fail", "reason", err.Error())
		writeAppError(w, err, "")
		return
	}
	s.audit(r, "signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "Too many login attempts") {
		s.audit(r, "login", "rate_limited")
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	user, token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		s.audit(r, "login", "fail", "username", req.Username)
		writeAppError(w, err, "")
		return
	}
	s.audit(r, "login", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if cookie, err := r.Cookie(s.cookieName); err == nil && cookie.Value != "" {
		if err := s.app.Logout(cookie.Value); err != nil {
			writeError(w, http.StatusInternalServerError, "Could not log out")
			return
		}
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// admin handlers
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.app.ListUsers()
	if err != nil {
		writeAppError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, rest, ok := pathID(r.URL.Path, "/api/users/")
	if !ok || rest != "" {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req userUpdateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		upd, fieldErrs := req.validate()
		if len(fieldErrs) > 0 {
			writeValidationError(w, fieldErrs)
			return
		}
		user, err := s.app.UpdateUser(id, upd)
		if err != nil {
			writeAppError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if err := s.app.DeleteUser(actor, id); err != nil {
			writeAppError(w, err, "")
			return
		}
		s.audit(r, "user.delete", "success", "actor_id", actor.ID, "user_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
	default:
		methodNotAllowed(w)
	}
}

// document handlers
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.app.ListDocuments(user)
		if err != nil {
			writeAppError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, docs)
	case http.MethodPost:
		var req documentCreateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if fieldErrs := req.validate(); len(fieldErrs) > 0 {
			writeValidationError(w, fieldErrs)
			return
		}
		doc, err := s.app.CreateDocument(user, req.Name, req.Type, req.Size, req.Path)
		if err != nil {
			writeAppError(w, err, "")
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	default:
		methodNotAllowed(w)
	}
}

// /api/documents/{id}, /api/documents/{id}/star, /api/documents/{id}/content
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, rest, ok := pathID(r.URL.Path, "/api/documents/")
	if !ok {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	switch rest {
	case "star":
		s.handleStarDocument(w, r, user, id)
		return
	case "content":
		s.handleDocumentContent(w, r, user, id)
		return
	case "":
	default:
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := s.app.GetDocument(user, id)
		if err != nil {
			writeAppError(w, err, "You don't have permission to access this document")
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodPut:
		var req documentUpdateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		upd, fieldErrs := req.validate()
		if len(fieldErrs) > 0 {
			writeValidationError(w, fieldErrs)
			return
		}
		doc, err := s.app.UpdateDocument(user, id, upd)
		if err != nil {
			writeAppError(w, err, "You don't have permission to edit this document")
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		if err := s.app.DeleteDocument(user, id); err != nil {
			writeAppError(w, err, "You don't have permission to delete this document")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleStarDocument(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req starRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Starred == nil {
		writeError(w, http.StatusBadRequest, "Starred status is required")
		return
	}
	doc, err := s.app.StarDocument(user, id, *req.Starred)
	if err != nil {
		writeAppError(w, err, "You don't have permission to star/unstar this document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDocumentContent(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	switch r.Method {
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid form data")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "File is required (field: file)")
			return
		}
		defer file.Close()
		contentType := header.Header.Get("Content-Type")
		doc, err := s.app.UploadDocumentContent(user, id, header.Filename, file, header.Size, contentType)
		if err != nil {
			writeAppError(w, err, "You don't have permission to access this document")
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	case http.MethodGet:
		rc, doc, err := s.app.OpenDocumentContent(r.Context(), user, id)
		if err != nil {
			writeAppError(w, err, "You don't have permission to access this document")
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
		if _, err := io.Copy(w, rc); err != nil {
			slog.Error("content stream interrupted", "document_id", id, "err", err)
		}
	default:
		methodNotAllowed(w)
	}
}

// activity handlers
func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}
	var userID int64
	if raw := r.URL.Query().Get("userId"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid userId parameter")
			return
		}
		userID = parsed
	}
	activities, err := s.app.ListActivities(userID, limit)
	if err != nil {
		writeAppError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, activities)
}

// ingestion handlers
func (s *Server) handleIngestions(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		ingestions, err := s.app.ListIngestions()
		if err != nil {
			writeAppError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, ingestions)
	case http.MethodPost:
		var req ingestionCreateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if fieldErrs := req.validate(); len(fieldErrs) > 0 {
			writeValidationError(w, fieldErrs)
			return
		}
		ing, err := s.app.StartIngestion(user, req.DocumentID)
		if err != nil {
			writeAppError(w, err, "")
			return
		}
		writeJSON(w, http.StatusCreated, ing)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleIngestionByID(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, rest, ok := pathID(r.URL.Path, "/api/ingestions/")
	if !ok || rest != "" {
		writeError(w, http.StatusNotFound, "Ingestion not found")
		return
	}
	ing, err := s.app.GetIngestion(id)
	if err != nil {
		writeAppError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, ing)
}

// Q&A handler
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	ans, err := s.app.Query(user, req.Query)
	if err != nil {
		writeAppError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// cookie helpers
func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// decodeBody parses a size-limited JSON body. It writes the error response
// itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeValidationError(w, []fieldError{{Field: "body", Message: "invalid JSON"}})
		return false
	}
	return true
}

// pathID extracts the numeric id segment after prefix and returns any
// remaining sub-path.
func pathID(path, prefix string) (int64, string, bool) {
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == "" || trimmed == path {
		return 0, "", false
	}
	segment, rest, _ := strings.Cut(trimmed, "/")
	id, err := strconv.ParseInt(segment, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, rest, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeAppError maps application sentinels onto the REST contract.
// forbiddenMsg customizes the 403 body per operation.
func writeAppError(w http.ResponseWriter, err error, forbiddenMsg string) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrUsernameExists),
		errors.Is(err, app.ErrEmailExists),
		errors.Is(err, app.ErrSelfDelete),
		errors.Is(err, app.ErrContentStorageDisabled):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrDocumentNotFound),
		errors.Is(err, app.ErrIngestionNotFound),
		errors.Is(err, app.ErrContentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrForbidden):
		if forbiddenMsg == "" {
			forbiddenMsg = "Forbidden"
		}
		writeError(w, http.StatusForbidden, forbiddenMsg)
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + clientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func clientIP(r *http.Request) string {
	if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
		ip, _, _ := strings.Cut(xfwd, ",")
		if ip = strings.TrimSpace(ip); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}
