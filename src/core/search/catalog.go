package search

import "sync"

// ChunkAttrs are the filterable attributes of an indexed chunk.
type ChunkAttrs struct {
	DocumentID int64
	DocType    string
	Origin     string
}

// Catalog maps indexed chunk ids to their filterable attributes. The
// ingestion side keeps it in step with the vector index so filtered
// queries can test candidates without touching storage.
type Catalog struct {
	mu    sync.RWMutex
	attrs map[int64]ChunkAttrs
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{attrs: make(map[int64]ChunkAttrs)}
}

// Put registers or updates a chunk's attributes.
func (c *Catalog) Put(chunkID int64, attrs ChunkAttrs) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs[chunkID] = attrs
}

// Get looks up a chunk's attributes.
func (c *Catalog) Get(chunkID int64) (ChunkAttrs, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	attrs, ok := c.attrs[chunkID]
	return attrs, ok
}

// Delete removes a chunk's attributes, used when its document is deleted.
func (c *Catalog) Delete(chunkID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attrs, chunkID)
}

// Replace swaps the whole catalog, used by a full reindex.
func (c *Catalog) Replace(attrs map[int64]ChunkAttrs) {
	next := make(map[int64]ChunkAttrs, len(attrs))
	for id, a := range attrs {
		next[id] = a
	}
	c.mu.Lock()
	c.attrs = next
	c.mu.Unlock()
}

// Len returns the number of cataloged chunks.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.attrs)
}
