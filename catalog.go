package txm

import (
	"fmt"
	"sync"

	"github.com/Astronomax/transaction-manager/internal/mvcc"
	"github.com/google/uuid"
)

// Catalog is a thread-safe name→Space registry, narrowed from the
// teacher's table/view/function/job system catalog down to the one thing
// this engine needs: a lookup from a space's name to its indexes.
type Catalog struct {
	mu     sync.RWMutex
	spaces map[string]*mvcc.Space
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{spaces: make(map[string]*mvcc.Space)}
}

// CreateSpace registers a new space with one index per entry in keys
// (keys[0] primary, keys[1:] secondary). It fails if name is already
// registered.
func (c *Catalog) CreateSpace(name string, keys ...mvcc.KeyFunc) (*mvcc.Space, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.spaces[name]; exists {
		return nil, fmt.Errorf("catalog: space %q: %w", name, ErrSpaceExists)
	}
	sp := mvcc.NewSpace(name, keys...)
	c.spaces[name] = sp
	return sp, nil
}

// Space looks up a registered space by name.
func (c *Catalog) Space(name string) (*mvcc.Space, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sp, ok := c.spaces[name]
	return sp, ok
}

// DropSpace removes a space from the registry. It does not reclaim the
// space's in-flight stories; callers are expected to only drop a space
// once all transactions touching it have completed.
func (c *Catalog) DropSpace(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.spaces, name)
}

// Names returns the registered space names, for introspection/logging.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.spaces))
	for n := range c.spaces {
		names = append(names, n)
	}
	return names
}

// instanceID is a process-correlation id, in the same spirit as the
// teacher's tenant/request correlation ids. No code in this repository
// reads it.
var instanceID = uuid.New()
