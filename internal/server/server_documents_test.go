package server

import (
	"net/http"
	"testing"
)

func createDocument(t *testing.T, e *testEnv, c *http.Client, name string) float64 {
	t.Helper()
	status, body := e.do(c, http.MethodPost, "/api/documents", map[string]any{
		"name": name,
		"type": "PDF",
		"size": 2048,
		"path": "/uploads/" + name,
	})
	if status != http.StatusCreated {
		t.Fatalf("create document %s: %d %v", name, status, body)
	}
	if body["starred"] != false {
		t.Fatalf("new document must start unstarred: %v", body)
	}
	return body["id"].(float64)
}

func TestDocumentOwnershipMatrix(t *testing.T) {
	e := newTestEnv(t)
	owner := e.signupAndLogin("owner", "editor")
	other := e.signupAndLogin("other", "editor")
	admin := e.client()
	e.loginAs(admin, "admin", "admin123")

	createDocument(t, e, owner, "contract.pdf")
	docPath := "/api/documents/1"

	// Reads: owner and admin pass, another user is forbidden.
	status, body := e.do(owner, http.MethodGet, docPath, nil)
	if status != http.StatusOK || body["name"] != "contract.pdf" {
		t.Fatalf("owner read: %d %v", status, body)
	}
	status, _ = e.do(admin, http.MethodGet, docPath, nil)
	if status != http.StatusOK {
		t.Fatalf("admin read: %d", status)
	}
	status, body = e.do(other, http.MethodGet, docPath, nil)
	if status != http.StatusForbidden || body["message"] != "You don't have permission to access this document" {
		t.Fatalf("foreign read: %d %v", status, body)
	}

	// Mutations follow the same rule with per-operation messages.
	status, body = e.do(other, http.MethodPut, docPath, map[string]any{"name": "stolen.pdf"})
	if status != http.StatusForbidden || body["message"] != "You don't have permission to edit this document" {
		t.Fatalf("foreign edit: %d %v", status, body)
	}
	status, body = e.do(other, http.MethodPut, docPath+"/star", map[string]any{"starred": true})
	if status != http.StatusForbidden || body["message"] != "You don't have permission to star/unstar this document" {
		t.Fatalf("foreign star: %d %v", status, body)
	}
	status, body = e.do(other, http.MethodDelete, docPath, nil)
	if status != http.StatusForbidden || body["message"] != "You don't have permission to delete this document" {
		t.Fatalf("foreign delete: %d %v", status, body)
	}

	status, body = e.do(owner, http.MethodGet, "/api/documents/999", nil)
	if status != http.StatusNotFound || body["message"] != "Document not found" {
		t.Fatalf("missing document: %d %v", status, body)
	}
}

func TestDocumentListingScope(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signupAndLogin("alice", "editor")
	bob := e.signupAndLogin("bob", "editor")
	admin := e.client()
	e.loginAs(admin, "admin", "admin123")

	createDocument(t, e, alice, "a1.pdf")
	createDocument(t, e, alice, "a2.pdf")
	createDocument(t, e, bob, "b1.pdf")

	status, docs := e.doList(alice, "/api/documents")
	if status != http.StatusOK || len(docs) != 2 {
		t.Fatalf("alice listing: %d %v", status, docs)
	}
	for _, d := range docs {
		if d["userId"].(float64) == 0 {
			t.Fatalf("document without owner: %v", d)
		}
	}
	status, docs = e.doList(bob, "/api/documents")
	if status != http.StatusOK || len(docs) != 1 || docs[0]["name"] != "b1.pdf" {
		t.Fatalf("bob listing: %d %v", status, docs)
	}
	status, docs = e.doList(admin, "/api/documents")
	if status != http.StatusOK || len(docs) != 3 {
		t.Fatalf("admin listing: %d %v", status, docs)
	}
}

func TestDocumentUpdateStarAndDelete(t *testing.T) {
	e := newTestEnv(t)
	owner := e.signupAndLogin("owner", "editor")
	createDocument(t, e, owner, "draft.docx")

	status, body := e.do(owner, http.MethodPut, "/api/documents/1", map[string]any{"name": "final.docx"})
	if status != http.StatusOK || body["name"] != "final.docx" {
		t.Fatalf("rename: %d %v", status, body)
	}

	// Star toggling is idempotent and leaves other fields alone.
	for _, starred := range []bool{true, true, false} {
		status, body = e.do(owner, http.MethodPut, "/api/documents/1/star", map[string]any{"starred": starred})
		if status != http.StatusOK || body["starred"] != starred {
			t.Fatalf("star %v: %d %v", starred, status, body)
		}
		if body["name"] != "final.docx" || body["type"] != "PDF" {
			t.Fatalf("star changed unrelated fields: %v", body)
		}
	}
	status, body = e.do(owner, http.MethodPut, "/api/documents/1/star", map[string]any{})
	if status != http.StatusBadRequest || body["message"] != "Starred status is required" {
		t.Fatalf("star without field: %d %v", status, body)
	}

	status, body = e.do(owner, http.MethodDelete, "/api/documents/1", nil)
	if status != http.StatusOK || body["message"] != "Document deleted successfully" {
		t.Fatalf("delete: %d %v", status, body)
	}
	status, _ = e.do(owner, http.MethodGet, "/api/documents/1", nil)
	if status != http.StatusNotFound {
		t.Fatalf("read after delete: %d", status)
	}
}

func TestDocumentValidation(t *testing.T) {
	e := newTestEnv(t)
	owner := e.signupAndLogin("owner", "editor")

	status, body := e.do(owner, http.MethodPost, "/api/documents", map[string]any{
		"type": "PDF",
		"size": -1,
	})
	if status != http.StatusBadRequest || body["message"] != "Invalid input data" {
		t.Fatalf("invalid create: %d %v", status, body)
	}
	if _, ok := body["errors"].([]any); !ok {
		t.Fatalf("expected errors array: %v", body)
	}

	// Rejected creates leave no trace.
	status, docs := e.doList(owner, "/api/documents")
	if status != http.StatusOK || len(docs) != 0 {
		t.Fatalf("documents after rejected create: %d %v", status, docs)
	}
	status, acts := e.doList(owner, "/api/activities")
	if status != http.StatusOK || len(acts) != 0 {
		t.Fatalf("activities after rejected create: %d %v", status, acts)
	}
}

func TestActivityTrailOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	owner := e.signupAndLogin("owner", "editor")

	createDocument(t, e, owner, "log.txt")
	if status, _ := e.do(owner, http.MethodPut, "/api/documents/1", map[string]any{"name": "log2.txt"}); status != http.StatusOK {
		t.Fatalf("edit: %d", status)
	}
	if status, _ := e.do(owner, http.MethodPut, "/api/documents/1/star", map[string]any{"starred": true}); status != http.StatusOK {
		t.Fatalf("star: %d", status)
	}
	if status, _ := e.do(owner, http.MethodDelete, "/api/documents/1", nil); status != http.StatusOK {
		t.Fatalf("delete: %d", status)
	}

	status, acts := e.doList(owner, "/api/activities")
	if status != http.StatusOK {
		t.Fatalf("activities: %d", status)
	}
	// Starring records nothing; order is most recent first.
	want := []string{"delete", "edit", "upload"}
	if len(acts) != len(want) {
		t.Fatalf("activity count = %d, want %d: %v", len(acts), len(want), acts)
	}
	for i, typ := range want {
		if acts[i]["type"] != typ {
			t.Fatalf("activity[%d] = %v, want %s", i, acts[i]["type"], typ)
		}
	}
	if _, present := acts[0]["documentId"]; present {
		t.Fatalf("delete activity must omit documentId: %v", acts[0])
	}
	if acts[0]["details"] != "log.txt was deleted" {
		t.Fatalf("delete details: %v", acts[0])
	}

	// Limit caps from the most recent end.
	status, acts = e.doList(owner, "/api/activities?limit=2")
	if status != http.StatusOK || len(acts) != 2 || acts[0]["type"] != "delete" {
		t.Fatalf("limited activities: %d %v", status, acts)
	}
	status, body := e.do(owner, http.MethodGet, "/api/activities?limit=nope", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad limit: %d %v", status, body)
	}
}
