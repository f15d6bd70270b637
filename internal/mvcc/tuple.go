package mvcc

// Tuple is an opaque row handle. The engine never looks inside Payload; it
// only ever compares tuples by pointer identity and checks the dirty flag
// that records whether a Story exists for this tuple.
//
// dirty mirrors the spec's DIRTY(t) predicate: true once a Story has been
// created for t and cleared again once the GC reclaims that story.
type Tuple struct {
	Payload any

	dirty bool
}

// NewTuple wraps payload in a fresh, non-dirty tuple handle.
func NewTuple(payload any) *Tuple {
	return &Tuple{Payload: payload}
}

// Dirty reports whether a Story is currently tracking this tuple's history.
func (t *Tuple) Dirty() bool {
	return t.dirty
}
