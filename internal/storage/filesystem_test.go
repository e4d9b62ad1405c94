package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFilesystemPutGet(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())
	ctx := context.Background()

	key := FileContentKey("alice", 42)
	if err := backend.Put(ctx, key, strings.NewReader("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reader, err := backend.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Fatalf("got %q, want %q", data, "hello")
	}
}

func TestFilesystemOverwrite(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())
	ctx := context.Background()

	key := "users/alice/files/1"
	for _, content := range []string{"first", "second"} {
		if err := backend.Put(ctx, key, strings.NewReader(content)); err != nil {
			t.Fatal(err)
		}
	}

	reader, err := backend.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if string(data) != "second" {
		t.Fatalf("Put must replace, got %q", data)
	}
}

func TestFilesystemMissingKey(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())
	ctx := context.Background()

	if _, err := backend.Get(ctx, "users/alice/files/999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: want ErrNotFound, got %v", err)
	}
	exists, err := backend.Exists(ctx, "users/alice/files/999")
	if err != nil || exists {
		t.Fatalf("Exists missing = (%t, %v)", exists, err)
	}
	if _, err := backend.GetInfo(ctx, "users/alice/files/999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetInfo missing: want ErrNotFound, got %v", err)
	}
}

func TestFilesystemCopy(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())
	ctx := context.Background()

	src := FileContentKey("alice", 1)
	dst := FileVersionKey("alice", 1, 1)
	if err := backend.Put(ctx, src, strings.NewReader("snapshot me")); err != nil {
		t.Fatal(err)
	}
	if err := backend.Copy(ctx, src, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	reader, err := backend.Get(ctx, dst)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if string(data) != "snapshot me" {
		t.Fatalf("copied content mismatch: %q", data)
	}
}

func TestFilesystemRejectsUnsafeKeys(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"../escape", "/abs", "a/../../b"} {
		if err := backend.Put(ctx, key, strings.NewReader("x")); err == nil {
			t.Fatalf("Put(%q) should fail", key)
		}
	}
}
