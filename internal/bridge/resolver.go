// Package bridge maps filesystem semantics onto the FileJump API. The
// resolver translates absolute paths into entry identifiers and caches
// directory listings; the staging manager backs open file handles with
// local copies and reconciles dirty ones on close.
package bridge

import (
	"context"
	"strings"
	"sync"

	"github.com/zlev67/filejumpfs/internal/metrics"
	"github.com/zlev67/filejumpfs/pkg/filejump"
	"github.com/zlev67/filejumpfs/pkg/logger"
)

// Resolver maintains the directory path index and the listing cache.
//
// The mutex guards the in-memory maps only and is never held across a
// network call. A listing miss releases the lock, fetches, then
// re-acquires it to insert; concurrent misses may fetch redundantly.
type Resolver struct {
	client *filejump.Client
	stats  *CoreStats

	mu       sync.Mutex
	pathToID map[string]int64
	idToName map[int64]string
	listings *listingCache
}

// NewResolver creates an empty resolver. The first resolution triggers
// a full tree walk to populate the path index.
func NewResolver(client *filejump.Client, stats *CoreStats) *Resolver {
	return &Resolver{
		client:   client,
		stats:    stats,
		pathToID: make(map[string]int64),
		idToName: make(map[int64]string),
		listings: newListingCache(listingCacheCapacity),
	}
}

// Resolve maps an absolute path to a directory identifier. The root
// path maps to 0. Unknown paths report false.
func (r *Resolver) Resolve(ctx context.Context, path string) (int64, bool) {
	p := normalizePath(path)

	r.mu.Lock()
	empty := len(r.pathToID) == 0
	r.mu.Unlock()
	if empty {
		r.bootstrap(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.pathToID[p]
	return id, ok
}

// bootstrap walks the whole remote tree breadth-first and installs the
// discovered directories into the path index. Walk failures skip the
// affected directory; cancellation stops the walk between directories.
func (r *Resolver) bootstrap(ctx context.Context) {
	type dirItem struct {
		id   int64
		path string
	}

	paths := map[string]int64{"/": 0}
	names := make(map[int64]string)
	queue := []dirItem{{id: 0, path: "/"}}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			logger.Info("tree walk stopped: %v", ctx.Err())
			break
		}
		cur := queue[0]
		queue = queue[1:]

		entries, err := r.client.ListEntries(ctx, cur.id)
		r.stats.ListingFetches.Add(1)
		metrics.RecordListingFetch()
		if err != nil {
			logger.Error("tree walk: listing %s: %v", cur.path, err)
			continue
		}
		for _, e := range entries {
			if !e.Dir {
				continue
			}
			childPath := cur.path + "/" + e.Name
			if cur.path == "/" {
				childPath = "/" + e.Name
			}
			names[e.ID] = e.Name
			paths[childPath] = e.ID
			queue = append(queue, dirItem{id: e.ID, path: childPath})
		}
	}

	r.mu.Lock()
	for p, id := range paths {
		r.pathToID[p] = id
	}
	for id, name := range names {
		r.idToName[id] = name
	}
	total := len(r.pathToID)
	r.mu.Unlock()

	logger.Info("directory index ready: %d paths", total)
}

// List returns the contents of a directory, from cache when possible.
// Fetch and decode failures degrade to an empty listing; failed fetches
// are not cached.
func (r *Resolver) List(ctx context.Context, dirID int64) []filejump.Entry {
	r.mu.Lock()
	if entries, ok := r.listings.get(dirID); ok {
		r.stats.CacheHits.Add(1)
		r.mu.Unlock()
		return entries
	}
	r.stats.CacheMisses.Add(1)
	r.mu.Unlock()

	entries, err := r.client.ListEntries(ctx, dirID)
	r.stats.ListingFetches.Add(1)
	metrics.RecordListingFetch()
	if err != nil {
		logger.Error("listing directory %d: %v", dirID, err)
		return nil
	}

	r.mu.Lock()
	r.listings.put(dirID, entries)
	for _, e := range entries {
		r.registerDirLocked(e)
	}
	metrics.SetCachedListings(r.listings.len())
	r.mu.Unlock()
	return entries
}

// Find returns the entry at an absolute path by listing its parent.
// The root itself has no entry.
func (r *Resolver) Find(ctx context.Context, path string) (filejump.Entry, bool) {
	r.stats.Lookups.Add(1)
	p := normalizePath(path)
	if p == "/" {
		return filejump.Entry{}, false
	}
	dir, name := splitPath(p)
	parentID, ok := r.Resolve(ctx, dir)
	if !ok {
		return filejump.Entry{}, false
	}
	for _, e := range r.List(ctx, parentID) {
		if e.Name == name {
			return e, true
		}
	}
	return filejump.Entry{}, false
}

// CreateFolder creates a remote folder, registers it in the path index,
// and invalidates the parent listing.
func (r *Resolver) CreateFolder(ctx context.Context, parentID int64, name string) (filejump.Entry, error) {
	e, err := r.client.CreateFolder(ctx, parentID, name)
	if err != nil {
		return filejump.Entry{}, err
	}

	r.mu.Lock()
	r.listings.remove(e.ParentID)
	r.registerDirLocked(e)
	metrics.SetCachedListings(r.listings.len())
	r.mu.Unlock()
	return e, nil
}

// Delete removes a remote entry. The parent listing is invalidated even
// when the request fails, so a stale listing never hides the outcome.
// Deleting a directory also drops its subtree from the path index.
func (r *Resolver) Delete(ctx context.Context, e filejump.Entry) error {
	err := r.client.DeleteEntries(ctx, []int64{e.ID})

	r.mu.Lock()
	r.listings.remove(e.ParentID)
	if e.Dir {
		r.listings.remove(e.ID)
		r.dropSubtreeLocked(e)
	}
	metrics.SetCachedListings(r.listings.len())
	r.mu.Unlock()
	return err
}

// InvalidateListing drops one directory's cached listing so the next
// list is served live.
func (r *Resolver) InvalidateListing(dirID int64) {
	r.mu.Lock()
	r.listings.remove(dirID)
	metrics.SetCachedListings(r.listings.len())
	r.mu.Unlock()
}

// registerDirLocked indexes a directory entry under its full path,
// reconstructed from the ancestor id chain.
func (r *Resolver) registerDirLocked(e filejump.Entry) {
	if !e.Dir {
		return
	}
	r.idToName[e.ID] = e.Name
	if p, ok := r.pathFromChainLocked(e.Ancestors); ok {
		r.pathToID[p] = e.ID
	}
}

// pathFromChainLocked rebuilds "/a/b" from a [0, idA, idB] ancestor
// chain. Reports false when an ancestor is not in the index yet.
func (r *Resolver) pathFromChainLocked(chain []int64) (string, bool) {
	var b strings.Builder
	for _, id := range chain {
		if id == 0 {
			continue
		}
		name, ok := r.idToName[id]
		if !ok {
			return "", false
		}
		b.WriteByte('/')
		b.WriteString(name)
	}
	if b.Len() == 0 {
		return "/", true
	}
	return b.String(), true
}

// dropSubtreeLocked removes a deleted directory and everything below it
// from the path index.
func (r *Resolver) dropSubtreeLocked(e filejump.Entry) {
	root, ok := r.pathFromChainLocked(e.Ancestors)
	if !ok {
		delete(r.idToName, e.ID)
		return
	}
	prefix := root + "/"
	for p, id := range r.pathToID {
		if p == root || strings.HasPrefix(p, prefix) {
			delete(r.pathToID, p)
			delete(r.idToName, id)
		}
	}
}

// IndexedPaths reports how many paths the index currently holds.
func (r *Resolver) IndexedPaths() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pathToID)
}
