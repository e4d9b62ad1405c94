package files

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/docbridge/docbridge/internal/database"
	"github.com/docbridge/docbridge/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Initialize(database.Config{Type: "sqlite", DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	backend := storage.NewFilesystemBackend(t.TempDir())
	return NewService(db, backend)
}

func readAll(t *testing.T, r io.ReadCloser, err error) string {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestCreateAndRead(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	node, err := svc.Create(ctx, "alice", "/docs/a.docx", []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if node.ID == 0 || node.Name != "a.docx" || node.Size != 5 {
		t.Fatalf("unexpected node %+v", node)
	}
	if node.Ext() != "docx" {
		t.Fatalf("Ext() = %q", node.Ext())
	}

	r, rErr := svc.Read(ctx, node)
	if got := readAll(t, r, rErr); got != "hello" {
		t.Fatalf("content %q", got)
	}

	byID, err := svc.NodeByID(ctx, "alice", node.ID)
	if err != nil {
		t.Fatal(err)
	}
	if byID.Path != "/docs/a.docx" {
		t.Fatalf("resolved %+v", byID)
	}

	byPath, err := svc.NodeByPath(ctx, "alice", "/docs/a.docx")
	if err != nil {
		t.Fatal(err)
	}
	if byPath.ID != node.ID {
		t.Fatalf("resolved %+v", byPath)
	}
}

func TestNodeByIDWrongOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	node, err := svc.Create(ctx, "alice", "/a.docx", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.NodeByID(ctx, "bob", node.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign owner must not resolve, got %v", err)
	}
}

func TestWriteSnapshotsVersions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	node, err := svc.Create(ctx, "alice", "/a.docx", []byte("v0 content"))
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Write(ctx, node, []byte("v1 content"), "alice"); err != nil {
		t.Fatal(err)
	}
	if node.Version != 1 {
		t.Fatalf("version after first write = %d", node.Version)
	}
	if err := svc.Write(ctx, node, []byte("v2 content"), "bob"); err != nil {
		t.Fatal(err)
	}

	cur, curErr := svc.Read(ctx, node)
	if got := readAll(t, cur, curErr); got != "v2 content" {
		t.Fatalf("current content %q", got)
	}
	v0, v0Err := svc.ReadVersion(ctx, node, 0)
	if got := readAll(t, v0, v0Err); got != "v0 content" {
		t.Fatalf("version 0 content %q", got)
	}
	v1, v1Err := svc.ReadVersion(ctx, node, 1)
	if got := readAll(t, v1, v1Err); got != "v1 content" {
		t.Fatalf("version 1 content %q", got)
	}

	versions, err := svc.Versions(ctx, node.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 2 {
		t.Fatalf("want 2 version rows, got %d", len(versions))
	}
	// newest first
	if versions[0].Version != 1 || versions[0].Author != "alice" {
		t.Fatalf("version rows %+v", versions)
	}

	if _, err := svc.ReadVersion(ctx, node, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing version, got %v", err)
	}
}

func TestWriteRespectsLock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	node, err := svc.Create(ctx, "alice", "/a.docx", []byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Lock(ctx, node.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	if err := svc.Write(ctx, node, []byte("bob's edit"), "bob"); !errors.Is(err, ErrLocked) {
		t.Fatalf("foreign writer must hit the lock, got %v", err)
	}
	// the holder can still write
	if err := svc.Write(ctx, node, []byte("alice's edit"), "alice"); err != nil {
		t.Fatal(err)
	}

	if err := svc.Unlock(ctx, node.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Write(ctx, node, []byte("bob's edit"), "bob"); err != nil {
		t.Fatalf("write after unlock: %v", err)
	}
}

func TestStaleLockIsReaped(t *testing.T) {
	svc := newTestService(t)
	svc.lockTTL = -time.Minute // locks are born expired
	ctx := context.Background()

	node, err := svc.Create(ctx, "alice", "/a.docx", []byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Lock(ctx, node.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Write(ctx, node, []byte("bob's edit"), "bob"); err != nil {
		t.Fatalf("expired lock must not block writes: %v", err)
	}
}

func TestShares(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	node, err := svc.Create(ctx, "alice", "/a.docx", []byte("shared"))
	if err != nil {
		t.Fatal(err)
	}

	share, err := svc.CreateShare(ctx, "alice", node.ID, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if share.Token == "" {
		t.Fatal("share has no token")
	}

	resolved, err := svc.NodeByShare(ctx, share.Token, 0)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.ID != node.ID {
		t.Fatalf("resolved %+v", resolved)
	}

	// share resolution with a mismatched file id is a permission error
	if _, err := svc.NodeByShare(ctx, share.Token, node.ID+1); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("mismatched file id, got %v", err)
	}

	if err := svc.DeleteShare(ctx, "bob", share.Token); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("foreign delete, got %v", err)
	}
	if err := svc.DeleteShare(ctx, "alice", share.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.NodeByShare(ctx, share.Token, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted share, got %v", err)
	}
}

func TestExpiredShare(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	node, err := svc.Create(ctx, "alice", "/a.docx", []byte("shared"))
	if err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	share, err := svc.CreateShare(ctx, "alice", node.ID, false, &past)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.NodeByShare(ctx, share.Token, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired share must resolve as missing, got %v", err)
	}
}

func TestCreateShareUnknownFile(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.CreateShare(context.Background(), "alice", 999, false, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestListByUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, p := range []string{"/b.docx", "/a.docx"} {
		if _, err := svc.Create(ctx, "alice", p, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Create(ctx, "bob", "/c.docx", []byte("x")); err != nil {
		t.Fatal(err)
	}

	records, err := svc.ListByUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].Path != "/a.docx" || records[1].Path != "/b.docx" {
		t.Fatalf("listing %+v", records)
	}
}
