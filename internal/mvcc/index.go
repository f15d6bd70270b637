package mvcc

import (
	"fmt"

	"github.com/google/uuid"
)

// Mode governs the duplicate-key behavior of Index.Replace.
type Mode int

const (
	// DupInsert fails if a tuple is already bound at the computed key.
	DupInsert Mode = iota
	// DupReplace fails if nothing is bound at the computed key.
	DupReplace
	// DupReplaceOrInsert never fails on account of what is or isn't bound.
	DupReplaceOrInsert
)

// KeyFunc extracts the single integer key field this spec's indexes are
// built on (composite and functional keys are a declared non-goal).
type KeyFunc func(t *Tuple) int64

// Index is the unordered unique map key→tuple backing one index of a Space,
// plus the chain bookkeeping that hangs off DenseID. UniqueID is a
// process-wide identifier used by the gap tracker's point-hole hash key.
type Index struct {
	UniqueID uuid.UUID
	DenseID  int
	Name     string

	Key KeyFunc

	data map[int64]*Tuple
}

// NewIndex allocates an empty index at position denseID within its space.
func NewIndex(name string, denseID int, key KeyFunc) *Index {
	return &Index{
		UniqueID: uuid.New(),
		DenseID:  denseID,
		Name:     name,
		Key:      key,
		data:     make(map[int64]*Tuple),
	}
}

// Get returns the tuple currently bound at key, or nil.
func (idx *Index) Get(key int64) *Tuple {
	return idx.data[key]
}

// Replace performs the swap at the heart of the index facade: it binds new
// in place of whatever is at the key computed from new (or, if new is nil,
// from old), and returns whatever was previously bound there.
//
// At least one of old, new must be non-nil so a key can be computed.
func (idx *Index) Replace(old, new *Tuple, mode Mode) (*Tuple, error) {
	var key int64
	switch {
	case new != nil:
		key = idx.Key(new)
	case old != nil:
		key = idx.Key(old)
	default:
		return nil, fmt.Errorf("mvcc: index %q replace: both old and new are nil", idx.Name)
	}

	existing := idx.data[key]

	switch mode {
	case DupInsert:
		if existing != nil {
			return nil, fmt.Errorf("mvcc: index %q key %d: %w", idx.Name, key, ErrDuplicateKey)
		}
	case DupReplace:
		if existing == nil {
			return nil, fmt.Errorf("mvcc: index %q key %d: %w", idx.Name, key, ErrMissingReplace)
		}
	case DupReplaceOrInsert:
		// Always allowed.
	}

	if new != nil {
		idx.data[key] = new
	} else {
		delete(idx.data, key)
	}
	return existing, nil
}
