package bridge

import (
	"container/list"

	"github.com/zlev67/filejumpfs/pkg/filejump"
)

// listingCacheCapacity bounds how many directory listings stay cached.
const listingCacheCapacity = 20

// listingCache is a strict LRU of directory listings keyed by directory
// id. Hits and inserts promote to the front; inserting beyond capacity
// evicts the least recently used listing. A cached listing is complete
// as of its last fetch; invalidation removes it outright.
//
// Not safe for concurrent use, callers hold the resolver mutex.
type listingCache struct {
	capacity int
	order    *list.List
	items    map[int64]*list.Element
}

type listingItem struct {
	dirID   int64
	entries []filejump.Entry
}

func newListingCache(capacity int) *listingCache {
	return &listingCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[int64]*list.Element),
	}
}

func (c *listingCache) get(dirID int64) ([]filejump.Entry, bool) {
	el, ok := c.items[dirID]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*listingItem).entries, true
}

func (c *listingCache) put(dirID int64, entries []filejump.Entry) {
	if el, ok := c.items[dirID]; ok {
		el.Value.(*listingItem).entries = entries
		c.order.MoveToFront(el)
		return
	}
	c.items[dirID] = c.order.PushFront(&listingItem{dirID: dirID, entries: entries})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*listingItem).dirID)
	}
}

func (c *listingCache) remove(dirID int64) {
	if el, ok := c.items[dirID]; ok {
		c.order.Remove(el)
		delete(c.items, dirID)
	}
}

func (c *listingCache) len() int {
	return c.order.Len()
}
