package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/screenware/reportflow/internal/core/domain"
)

func TestSaveThenOpenRoundTrip(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := storage.Save(ctx, "doc-1_report.txt", strings.NewReader("report body")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rc, err := storage.Open(ctx, "doc-1_report.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "report body" {
		t.Fatalf("unexpected content: %q", raw)
	}
}

func TestOpenMissingKeyIsNotFound(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = storage.Open(context.Background(), "missing.txt")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, key := range []string{"", "../escape.txt", "nested/key.txt"} {
		if err := storage.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}
