package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()

	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	return s
}

func TestLocalWriteReadRoundtrip(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	content := "attachment bytes"
	if err := s.Write(ctx, "1717243200.txt", strings.NewReader(content), int64(len(content)), ""); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	rc, err := s.Read(ctx, "1717243200.txt")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != content {
		t.Fatalf("read back %q, want %q", data, content)
	}
}

func TestLocalExists(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "missing.png")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if ok {
		t.Fatalf("missing key reported as existing")
	}

	if err := s.Write(ctx, "present.png", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	ok, err = s.Exists(ctx, "present.png")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if !ok {
		t.Fatalf("written key reported as missing")
	}
}

func TestLocalGetURL(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	if _, err := s.GetURL(ctx, "missing.png", 0); err == nil {
		t.Fatalf("expected error for missing key")
	}

	if err := s.Write(ctx, "photo.png", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	url, err := s.GetURL(ctx, "photo.png", 0)
	if err != nil {
		t.Fatalf("geturl failed: %v", err)
	}
	if url != "/uploads/photo.png" {
		t.Fatalf("url = %q", url)
	}
}

func TestLocalConfinesKeysToBasePath(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{BasePath: base})
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	// A key that tries to climb out of the base path must never create a
	// file outside it.
	s.Write(context.Background(), "../escape.txt", strings.NewReader("x"), 1, "")

	if _, err := os.Stat(filepath.Join(filepath.Dir(base), "escape.txt")); err == nil {
		t.Fatalf("traversal key escaped the base path")
	}
}
