package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"docvault/internal/app"
	"docvault/internal/store"
	"docvault/pkg/domain"
)

type testEnv struct {
	t   *testing.T
	url string
}

// newTestEnv starts a server over fresh in-memory stores with fast
// ingestion delays.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	a, err := app.New(app.Config{
		Store:           store.NewMemoryStore(),
		Sessions:        store.NewMemorySessionStore(time.Hour),
		ProcessingDelay: 5 * time.Millisecond,
		CompletionDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: a})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{t: t, url: ts.URL}
}

// client returns an HTTP client with its own cookie jar, representing one
// browser session.
func (e *testEnv) client() *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		e.t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

// do issues a JSON request and decodes the response body into a generic map.
func (e *testEnv) do(c *http.Client, method, path string, body any) (int, map[string]any) {
	e.t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, e.url+path, reqBody)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp.StatusCode, payload
}

// doList is do for endpoints returning a JSON array.
func (e *testEnv) doList(c *http.Client, path string) (int, []map[string]any) {
	e.t.Helper()
	resp, err := c.Get(e.url + path)
	if err != nil {
		e.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var payload []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp.StatusCode, payload
}

// loginAs logs the client in and fails the test on rejection.
func (e *testEnv) loginAs(c *http.Client, username, password string) map[string]any {
	e.t.Helper()
	status, body := e.do(c, http.MethodPost, "/api/auth/login", map[string]any{
		"username": username,
		"password": password,
	})
	if status != http.StatusOK {
		e.t.Fatalf("login %s: status %d body %v", username, status, body)
	}
	return body
}

// signupAndLogin creates a user through the public endpoint and returns a
// logged-in client.
func (e *testEnv) signupAndLogin(username, role string) *http.Client {
	e.t.Helper()
	admin := e.client()
	status, body := e.do(admin, http.MethodPost, "/api/auth/signup", map[string]any{
		"username": username,
		"password": "pw-" + username,
		"name":     username + " Person",
		"email":    username + "@example.com",
		"role":     role,
	})
	if status != http.StatusCreated {
		e.t.Fatalf("signup %s: status %d body %v", username, status, body)
	}
	c := e.client()
	e.loginAs(c, username, "pw-"+username)
	return c
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t)
	status, body := e.do(e.client(), http.MethodGet, "/api/health", nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", status, body)
	}
}

func TestSignupLoginLogoutFlow(t *testing.T) {
	e := newTestEnv(t)
	c := e.client()

	status, body := e.do(c, http.MethodPost, "/api/auth/signup", map[string]any{
		"username": "admin2",
		"password": "x123456",
		"name":     "A",
		"email":    "a2@x.com",
		"role":     "admin",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup: %d %v", status, body)
	}
	if _, present := body["password"]; present {
		t.Fatal("signup response leaked the password field")
	}
	if _, present := body["passwordHash"]; present {
		t.Fatal("signup response leaked the password hash")
	}
	if body["role"] != "admin" || body["username"] != "admin2" {
		t.Fatalf("signup payload: %v", body)
	}

	// Duplicate username.
	status, body = e.do(c, http.MethodPost, "/api/auth/signup", map[string]any{
		"username": "admin2",
		"password": "other",
		"name":     "B",
		"email":    "b@x.com",
	})
	if status != http.StatusBadRequest || body["message"] != "Username already exists" {
		t.Fatalf("duplicate signup: %d %v", status, body)
	}

	// Signup does not log in; /me needs a session.
	status, body = e.do(c, http.MethodGet, "/api/auth/me", nil)
	if status != http.StatusUnauthorized || body["message"] != "Unauthorized" {
		t.Fatalf("me before login: %d %v", status, body)
	}

	user := e.loginAs(c, "admin2", "x123456")
	if user["role"] != "admin" {
		t.Fatalf("login payload: %v", user)
	}

	status, body = e.do(c, http.MethodGet, "/api/auth/me", nil)
	if status != http.StatusOK || body["username"] != "admin2" {
		t.Fatalf("me after login: %d %v", status, body)
	}

	status, body = e.do(c, http.MethodPost, "/api/auth/logout", nil)
	if status != http.StatusOK || body["message"] != "Logged out successfully" {
		t.Fatalf("logout: %d %v", status, body)
	}
	status, _ = e.do(c, http.MethodGet, "/api/auth/me", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("me after logout: %d", status)
	}
}

func TestSeededAdminAndBadPassword(t *testing.T) {
	e := newTestEnv(t)
	c := e.client()

	user := e.loginAs(c, "admin", "admin123")
	if user["role"] != "admin" || user["name"] != "Admin User" {
		t.Fatalf("seeded admin payload: %v", user)
	}

	status, body := e.do(e.client(), http.MethodPost, "/api/auth/login", map[string]any{
		"username": "admin",
		"password": "wrong",
	})
	if status != http.StatusUnauthorized || body["message"] != "Invalid credentials" {
		t.Fatalf("bad password: %d %v", status, body)
	}

	status, body = e.do(e.client(), http.MethodPost, "/api/auth/login", map[string]any{
		"username": "admin",
	})
	if status != http.StatusBadRequest || body["message"] != "Username and password are required" {
		t.Fatalf("missing password: %d %v", status, body)
	}
}

func TestSignupValidationErrors(t *testing.T) {
	e := newTestEnv(t)

	status, body := e.do(e.client(), http.MethodPost, "/api/auth/signup", map[string]any{
		"username": "x",
		"role":     "superuser",
	})
	if status != http.StatusBadRequest || body["message"] != "Invalid input data" {
		t.Fatalf("invalid signup: %d %v", status, body)
	}
	errs, ok := body["errors"].([]any)
	if !ok || len(errs) == 0 {
		t.Fatalf("expected field errors, got %v", body["errors"])
	}
	fields := map[string]bool{}
	for _, raw := range errs {
		entry := raw.(map[string]any)
		fields[entry["field"].(string)] = true
	}
	for _, want := range []string{"password", "name", "email", "role"} {
		if !fields[want] {
			t.Fatalf("missing field error for %q in %v", want, fields)
		}
	}
}

func TestSignupRoleAliasAndDefault(t *testing.T) {
	e := newTestEnv(t)

	// Legacy "user" role maps onto editor.
	status, body := e.do(e.client(), http.MethodPost, "/api/auth/signup", map[string]any{
		"username": "legacy",
		"password": "pw",
		"name":     "L",
		"email":    "l@x.com",
		"role":     "user",
	})
	if status != http.StatusCreated || body["role"] != string(domain.RoleEditor) {
		t.Fatalf("legacy role: %d %v", status, body)
	}

	// Absent role defaults to editor.
	status, body = e.do(e.client(), http.MethodPost, "/api/auth/signup", map[string]any{
		"username": "norole",
		"password": "pw",
		"name":     "N",
		"email":    "n@x.com",
	})
	if status != http.StatusCreated || body["role"] != string(domain.RoleEditor) {
		t.Fatalf("default role: %d %v", status, body)
	}
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	e := newTestEnv(t)
	editor := e.signupAndLogin("ed", "editor")

	status, body := e.do(editor, http.MethodGet, "/api/users", nil)
	if status != http.StatusForbidden || body["message"] != "Forbidden: Admin role required" {
		t.Fatalf("editor listing users: %d %v", status, body)
	}

	status, _ = e.do(e.client(), http.MethodGet, "/api/users", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("anonymous listing users: %d", status)
	}
}

func TestAdminUserManagement(t *testing.T) {
	e := newTestEnv(t)
	e.signupAndLogin("alice", "viewer")
	admin := e.client()
	e.loginAs(admin, "admin", "admin123")

	status, users := e.doList(admin, "/api/users")
	if status != http.StatusOK || len(users) != 2 {
		t.Fatalf("list users: %d %v", status, users)
	}
	for _, u := range users {
		if _, present := u["password"]; present {
			t.Fatalf("user listing leaked password: %v", u)
		}
	}

	// Promote alice to editor.
	var aliceID float64
	for _, u := range users {
		if u["username"] == "alice" {
			aliceID = u["id"].(float64)
		}
	}
	status, body := e.do(admin, http.MethodPut, "/api/users/2", map[string]any{"role": "editor"})
	if status != http.StatusOK || body["role"] != "editor" {
		t.Fatalf("promote alice (id %v): %d %v", aliceID, status, body)
	}

	status, body = e.do(admin, http.MethodPut, "/api/users/999", map[string]any{"role": "editor"})
	if status != http.StatusNotFound || body["message"] != "User not found" {
		t.Fatalf("update missing user: %d %v", status, body)
	}

	// Self-delete is refused; deleting alice succeeds.
	status, body = e.do(admin, http.MethodDelete, "/api/users/1", nil)
	if status != http.StatusBadRequest || body["message"] != "Cannot delete your own account" {
		t.Fatalf("self delete: %d %v", status, body)
	}
	status, body = e.do(admin, http.MethodDelete, "/api/users/2", nil)
	if status != http.StatusOK || body["message"] != "User deleted successfully" {
		t.Fatalf("delete alice: %d %v", status, body)
	}
	status, _ = e.doList(admin, "/api/users")
	if status != http.StatusOK {
		t.Fatalf("list after delete: %d", status)
	}
}
