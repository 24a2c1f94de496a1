package bridge

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/zlev67/filejumpfs/internal/fjtest"
	"github.com/zlev67/filejumpfs/pkg/filejump"
)

func testResolver(t *testing.T, srv *fjtest.Server) *Resolver {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	c := filejump.New(filejump.Config{BaseURL: ts.URL})
	return NewResolver(c, &CoreStats{})
}

func TestResolve_BootstrapIndexesDirectories(t *testing.T) {
	srv := fjtest.New()
	a := srv.AddFolder(0, "a")
	b := srv.AddFolder(a, "b")
	srv.AddFile(0, "root.txt", []byte("r"))
	srv.AddFile(a, "inner.txt", []byte("i"))

	r := testResolver(t, srv)
	ctx := context.Background()

	if id, ok := r.Resolve(ctx, "/"); !ok || id != 0 {
		t.Fatalf("Resolve(/) = %d,%v, want 0,true", id, ok)
	}
	if id, ok := r.Resolve(ctx, "/a"); !ok || id != a {
		t.Errorf("Resolve(/a) = %d,%v, want %d,true", id, ok, a)
	}
	if id, ok := r.Resolve(ctx, "/a/b"); !ok || id != b {
		t.Errorf("Resolve(/a/b) = %d,%v, want %d,true", id, ok, b)
	}
	if _, ok := r.Resolve(ctx, "/a/inner.txt"); ok {
		t.Error("files must not appear in the directory index")
	}
	if _, ok := r.Resolve(ctx, "/missing"); ok {
		t.Error("unknown path resolved")
	}

	// The walk visits each directory exactly once and only the first
	// resolution triggers it.
	if got := srv.ListCalls(0); got != 1 {
		t.Errorf("root listed %d times during bootstrap, want 1", got)
	}
	if got := srv.ListCalls(a); got != 1 {
		t.Errorf("dir a listed %d times during bootstrap, want 1", got)
	}
	if got := srv.ListCalls(b); got != 1 {
		t.Errorf("dir b listed %d times during bootstrap, want 1", got)
	}
}

func TestResolve_BootstrapFollowsPagination(t *testing.T) {
	srv := fjtest.New()
	srv.PageSize = 1
	d1 := srv.AddFolder(0, "d1")
	d2 := srv.AddFolder(0, "d2")
	d3 := srv.AddFolder(0, "d3")

	r := testResolver(t, srv)
	ctx := context.Background()

	for name, want := range map[string]int64{"/d1": d1, "/d2": d2, "/d3": d3} {
		if id, ok := r.Resolve(ctx, name); !ok || id != want {
			t.Errorf("Resolve(%s) = %d,%v, want %d,true", name, id, ok, want)
		}
	}
}

func TestList_CachesUntilInvalidated(t *testing.T) {
	srv := fjtest.New()
	a := srv.AddFolder(0, "a")
	srv.AddFile(a, "one.txt", []byte("1"))
	srv.AddFile(a, "two.txt", []byte("2"))

	r := testResolver(t, srv)
	ctx := context.Background()

	entries := r.List(ctx, a)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if srv.ListCalls(a) != 1 {
		t.Fatalf("expected 1 fetch, got %d", srv.ListCalls(a))
	}

	r.List(ctx, a)
	if srv.ListCalls(a) != 1 {
		t.Errorf("second list should be served from cache, got %d fetches", srv.ListCalls(a))
	}

	r.InvalidateListing(a)
	r.List(ctx, a)
	if srv.ListCalls(a) != 2 {
		t.Errorf("list after invalidation should fetch live, got %d fetches", srv.ListCalls(a))
	}
}

func TestList_EmptyDirectoryIsCached(t *testing.T) {
	srv := fjtest.New()
	a := srv.AddFolder(0, "a")

	r := testResolver(t, srv)
	ctx := context.Background()

	if entries := r.List(ctx, a); len(entries) != 0 {
		t.Fatalf("expected empty listing, got %v", entries)
	}
	r.List(ctx, a)
	if srv.ListCalls(a) != 1 {
		t.Errorf("empty listings must be cached too, got %d fetches", srv.ListCalls(a))
	}
}

func TestList_FetchFailureNotCached(t *testing.T) {
	srv := fjtest.New()
	ts := httptest.NewServer(srv.Handler())
	c := filejump.New(filejump.Config{BaseURL: ts.URL})
	r := NewResolver(c, &CoreStats{})
	ts.Close()

	if entries := r.List(context.Background(), 5); entries != nil {
		t.Fatalf("failed fetch should degrade to an empty listing, got %v", entries)
	}
	r.mu.Lock()
	cached := r.listings.len()
	r.mu.Unlock()
	if cached != 0 {
		t.Errorf("failed fetch must not be cached, have %d listings", cached)
	}
}

func TestFind(t *testing.T) {
	srv := fjtest.New()
	a := srv.AddFolder(0, "a")
	id := srv.AddFile(a, "inner.txt", []byte("hello"))

	r := testResolver(t, srv)
	ctx := context.Background()

	e, ok := r.Find(ctx, "/a/inner.txt")
	if !ok {
		t.Fatal("expected to find /a/inner.txt")
	}
	if e.ID != id || e.Size != 5 || e.Dir {
		t.Errorf("unexpected entry: %+v", e)
	}

	// Resolving the parent and scanning its listing must agree with
	// the direct lookup.
	parentID, ok := r.Resolve(ctx, "/a")
	if !ok || parentID != a {
		t.Fatalf("Resolve(/a) = %d,%v, want %d", parentID, ok, a)
	}
	var viaListing *filejump.Entry
	for _, le := range r.List(ctx, parentID) {
		if le.Name == "inner.txt" {
			le := le
			viaListing = &le
			break
		}
	}
	if viaListing == nil || viaListing.ID != e.ID {
		t.Errorf("listing route disagrees with direct find: %+v vs %+v", viaListing, e)
	}

	if _, ok := r.Find(ctx, "/a/ghost.txt"); ok {
		t.Error("found a file that does not exist")
	}
	if _, ok := r.Find(ctx, "/ghostdir/file"); ok {
		t.Error("found a file under a directory that does not exist")
	}
	if _, ok := r.Find(ctx, "/"); ok {
		t.Error("the root has no entry of its own")
	}
}

func TestCreateFolder_RegistersAndInvalidates(t *testing.T) {
	srv := fjtest.New()
	r := testResolver(t, srv)
	ctx := context.Background()

	r.Resolve(ctx, "/") // bootstrap
	r.List(ctx, 0)
	fetches := srv.ListCalls(0)

	e, err := r.CreateFolder(ctx, 0, "newdir")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, ok := r.Resolve(ctx, "/newdir"); !ok || id != e.ID {
		t.Errorf("new folder not registered: got %d,%v want %d", id, ok, e.ID)
	}

	r.List(ctx, 0)
	if srv.ListCalls(0) != fetches+1 {
		t.Errorf("parent listing should be refetched after create, fetches %d want %d",
			srv.ListCalls(0), fetches+1)
	}
}

func TestCreateFolder_NestedRegistersFullPath(t *testing.T) {
	srv := fjtest.New()
	a := srv.AddFolder(0, "a")

	r := testResolver(t, srv)
	ctx := context.Background()
	r.Resolve(ctx, "/")

	e, err := r.CreateFolder(ctx, a, "deep")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, ok := r.Resolve(ctx, "/a/deep"); !ok || id != e.ID {
		t.Errorf("nested folder not indexed under its full path: %d,%v", id, ok)
	}
}

func TestDelete_FileInvalidatesParentListing(t *testing.T) {
	srv := fjtest.New()
	a := srv.AddFolder(0, "a")
	srv.AddFile(a, "doomed.txt", []byte("x"))

	r := testResolver(t, srv)
	ctx := context.Background()

	e, ok := r.Find(ctx, "/a/doomed.txt")
	if !ok {
		t.Fatal("setup: file not found")
	}
	fetches := srv.ListCalls(a)

	if err := r.Delete(ctx, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Find(ctx, "/a/doomed.txt"); ok {
		t.Error("deleted file still findable")
	}
	if srv.ListCalls(a) != fetches+1 {
		t.Errorf("parent listing should be refetched after delete")
	}
	if got := srv.LastDeleted(); len(got) != 1 || got[0] != e.ID {
		t.Errorf("expected delete request for %d, got %v", e.ID, got)
	}
}

func TestDelete_DirectoryDropsSubtree(t *testing.T) {
	srv := fjtest.New()
	a := srv.AddFolder(0, "a")
	b := srv.AddFolder(a, "b")
	srv.AddFile(b, "deep.txt", []byte("x"))

	r := testResolver(t, srv)
	ctx := context.Background()
	r.Resolve(ctx, "/")

	e, ok := r.Find(ctx, "/a")
	if !ok {
		t.Fatal("setup: folder not found")
	}
	if err := r.Delete(ctx, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := r.Resolve(ctx, "/a"); ok {
		t.Error("deleted directory still resolvable")
	}
	if _, ok := r.Resolve(ctx, "/a/b"); ok {
		t.Error("subtree of deleted directory still resolvable")
	}
	if _, ok := srv.Entry(b); ok {
		t.Error("server should have removed the subtree")
	}
}

func TestDelete_RejectionStillInvalidates(t *testing.T) {
	srv := fjtest.New()
	a := srv.AddFolder(0, "a")
	srv.AddFile(a, "locked.txt", []byte("x"))

	r := testResolver(t, srv)
	ctx := context.Background()

	e, ok := r.Find(ctx, "/a/locked.txt")
	if !ok {
		t.Fatal("setup: file not found")
	}
	fetches := srv.ListCalls(a)

	srv.FailDeletes = true
	if err := r.Delete(ctx, e); err == nil {
		t.Fatal("expected error for rejected delete")
	}
	r.List(ctx, a)
	if srv.ListCalls(a) != fetches+1 {
		t.Error("parent listing should be invalidated even when the delete fails")
	}
}
