package open115

import (
	"sync"
	"time"
)

const (
	fileHintTTL       = 5 * time.Minute
	downloadTicketTTL = 5 * time.Minute
)

// dirHandle is a provider-assigned directory id paired with the absolute
// logical path it was resolved from. Immutable once created.
type dirHandle struct {
	ID   string
	Path string
}

// fileEntry mirrors spec's FileEntry: name, parent dir id, size, pick
// code, provider file id. Represented as a flat arena value rather than
// through mutual pointers between the path index and the parent index,
// since both indices need to reach the same record.
type fileEntry struct {
	Name     string
	ParentID string
	Size     int64
	PickCode string
	FileID   string
}

type fileHint struct {
	FileID    string
	PickCode  string
	Size      int64
	expiresAt time.Time
}

type downloadTicket struct {
	URL       string
	expiresAt time.Time
}

// cacheKey identifies a file entry by its parent directory and name —
// the only key a FileEntry or FileHint is ever addressed by.
type cacheKey struct {
	ParentID string
	Name     string
}

// cache is the process-wide single source of truth for read-path
// operations: path/parent indices over a flat entry arena, plus
// short-TTL hint and download-URL side caches. All methods are safe for
// concurrent use.
type cache struct {
	mu sync.RWMutex

	dirsByPath map[string]dirHandle
	entries    map[cacheKey]fileEntry
	// listed tracks which parent ids have been populated from at least
	// one successful listing, distinguishing "empty directory" from
	// "never listed."
	listed map[string]bool

	hints   map[cacheKey]fileHint
	tickets map[string]downloadTicket
}

func newCache() *cache {
	return &cache{
		dirsByPath: make(map[string]dirHandle),
		entries:    make(map[cacheKey]fileEntry),
		listed:     make(map[string]bool),
		hints:      make(map[cacheKey]fileHint),
		tickets:    make(map[string]downloadTicket),
	}
}

func (c *cache) dirByPath(path string) (dirHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.dirsByPath[path]
	return d, ok
}

func (c *cache) putDir(d dirHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirsByPath[d.Path] = d
}

// findFile is a pure cache lookup: the FileEntry arena first, falling
// back to the FileHint table when listing has not yet surfaced the
// entry. Per the hint-precedence invariant, a FileEntry's own pick code
// wins whenever it has one; the hint only fills a gap.
func (c *cache) findFile(parentID, name string) (fileEntry, bool) {
	key := cacheKey{ParentID: parentID, Name: name}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[key]; ok {
		if e.PickCode == "" {
			if h, ok := c.hints[key]; ok && time.Now().Before(h.expiresAt) {
				e.PickCode = h.PickCode
			}
		}
		return e, true
	}

	if h, ok := c.hints[key]; ok && time.Now().Before(h.expiresAt) {
		return fileEntry{
			Name:     name,
			ParentID: parentID,
			Size:     h.Size,
			PickCode: h.PickCode,
			FileID:   h.FileID,
		}, true
	}

	return fileEntry{}, false
}

// list returns the cached FileEntry set for a parent, and whether that
// parent has ever been successfully listed (as opposed to simply empty).
func (c *cache) list(parentID string) ([]fileEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.listed[parentID] {
		return nil, false
	}
	var out []fileEntry
	for k, e := range c.entries {
		if k.ParentID == parentID {
			out = append(out, e)
		}
	}
	return out, true
}

// replaceListing installs a freshly fetched page set for a parent,
// promoting any hints the listing confirms and dropping stale ones for
// names no longer present. Existing entries for this parent are fully
// replaced, since the incoming set is authoritative.
func (c *cache) replaceListing(parentID string, entries []fileEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.entries {
		if k.ParentID == parentID {
			delete(c.entries, k)
		}
	}
	for _, e := range entries {
		key := cacheKey{ParentID: e.ParentID, Name: e.Name}
		c.entries[key] = e
		delete(c.hints, key)
	}
	c.listed[parentID] = true
}

// insertFile installs a FileEntry from a write path (upload callback or
// directory creation), superseding any older entry for the same key
// regardless of listing recency, and also refreshes the hint so a
// read immediately following the write never depends on a listing.
func (c *cache) insertFile(e fileEntry) {
	key := cacheKey{ParentID: e.ParentID, Name: e.Name}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = e
	c.hints[key] = fileHint{
		FileID:    e.FileID,
		PickCode:  e.PickCode,
		Size:      e.Size,
		expiresAt: time.Now().Add(fileHintTTL),
	}
}

// removeFile deletes a FileEntry and its hint. Delete is idempotent by
// contract, so callers never need to check the return value to decide
// how to respond to the client.
func (c *cache) removeFile(parentID, name string) {
	key := cacheKey{ParentID: parentID, Name: name}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	delete(c.hints, key)
}

func (c *cache) ticket(pickCode string) (downloadTicket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tickets[pickCode]
	if !ok || time.Now().After(t.expiresAt) {
		return downloadTicket{}, false
	}
	return t, true
}

func (c *cache) putTicket(pickCode, url string, upstreamExpiry time.Time) {
	expiresAt := time.Now().Add(downloadTicketTTL)
	if upstreamExpiry.Before(expiresAt) {
		expiresAt = upstreamExpiry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickets[pickCode] = downloadTicket{URL: url, expiresAt: expiresAt}
}

func (c *cache) evictTicket(pickCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tickets, pickCode)
}
