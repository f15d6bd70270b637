package mvcc

// Space is an ordered slice of indexes over one logical row set; Indexes[0]
// is the primary index. Spaces are registered by name in the higher-level
// Catalog (txm package); this package only needs the index slice itself.
type Space struct {
	Name    string
	Indexes []*Index
}

// NewSpace builds a space with one index per entry in keys; keys[0] extracts
// the primary key, keys[1:] extract each secondary index's key from the same
// tuple (this spec supports only single integer-field keys per index, not
// composite ones, but a secondary index's field need not be the same field
// the primary uses). At least one key is required.
func NewSpace(name string, keys ...KeyFunc) *Space {
	sp := &Space{Name: name, Indexes: make([]*Index, len(keys))}
	for i, key := range keys {
		sp.Indexes[i] = NewIndex(name, i, key)
	}
	return sp
}

// Primary returns the space's primary (position 0) index.
func (sp *Space) Primary() *Index {
	return sp.Indexes[0]
}

// IndexCount returns the number of indexes on this space.
func (sp *Space) IndexCount() int {
	return len(sp.Indexes)
}
