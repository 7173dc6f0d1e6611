package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/page.html", "text/html", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://path/page.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, ok := store.Object("path/page.html")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if store.Puts() != 1 {
		t.Fatalf("expected one put, got %d", store.Puts())
	}
}

func TestBlobStoreStatObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	if _, err := store.StatObject(context.Background(), "missing"); !errors.Is(err, audit.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.PutObject(context.Background(), "a/b.png", "image/png", bytes.NewReader([]byte("12345"))); err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	info, err := store.StatObject(context.Background(), "a/b.png")
	if err != nil {
		t.Fatalf("StatObject() error = %v", err)
	}
	if info.Size != 5 || info.URI != "memory://a/b.png" {
		t.Fatalf("unexpected info %+v", info)
	}
}
