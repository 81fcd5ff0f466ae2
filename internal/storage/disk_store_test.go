package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	ctx := context.Background()

	content := "hello document"
	if err := s.Put(ctx, "1/report.pdf", strings.NewReader(content), int64(len(content)), "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := s.Open(ctx, "1/report.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil || string(got) != content {
		t.Fatalf("read back = (%q, %v)", got, err)
	}

	if err := s.Delete(ctx, "1/report.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Open(ctx, "1/report.pdf"); err == nil {
		t.Fatal("deleted content must not open")
	}
	// Deleting again is a no-op.
	if err := s.Delete(ctx, "1/report.pdf"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestDiskStoreSanitizesKeys(t *testing.T) {
	base := t.TempDir()
	s, err := NewDiskStore(base)
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	if err := s.Put(context.Background(), "../../etc/passwd", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Open(context.Background(), "../../etc/passwd"); err != nil {
		t.Fatal("sanitized key must still round-trip inside the base dir")
	}
}
