package mvcc

import "math"

func effectiveRVPSN(t *Transaction) uint64 {
	if t.RVPSN != 0 {
		return t.RVPSN
	}
	return math.MaxUint64
}

// InsertVisible reports whether story's insertion is visible to t, and
// whether t is the one responsible for it ("own").
func InsertVisible(s *Story, t *Transaction, preparedOK bool) (visible, own bool) {
	if s.addStmt != nil && s.addStmt.Txn == t {
		return true, true
	}

	rv := effectiveRVPSN(t)

	if preparedOK && s.addPSN > 0 && s.addPSN < rv {
		return true, false
	}
	if s.addPSN > 0 && s.addStmt == nil && s.addPSN < rv {
		return true, false
	}
	if s.addPSN == 0 && s.addStmt == nil {
		// Ancient: the tuple predates MVCC tracking for this row.
		return true, false
	}
	return false, false
}

// DeleteVisible reports whether story's deletion is visible to t, and
// whether t is one of the (possibly several in-progress) deleters. Unlike
// InsertVisible, DelPSN==0 && DelStmt==nil is never treated as "ancient" —
// a story with no deleter simply hasn't been deleted.
func DeleteVisible(s *Story, t *Transaction, preparedOK bool) (visible, own bool) {
	for d := s.delStmt; d != nil; d = d.NextInDelList {
		if d.Txn == t {
			return true, true
		}
	}

	rv := effectiveRVPSN(t)

	if preparedOK && s.delPSN > 0 && s.delPSN < rv {
		return true, false
	}
	if s.delPSN > 0 && s.delStmt == nil && s.delPSN < rv {
		return true, false
	}
	return false, false
}

// FindVisibleTuple walks the chain on index idx starting at head, newest to
// oldest, returning the first story's tuple whose insert is visible to t
// and whose delete is not — or nil if the chain is exhausted or the first
// visible event is a delete.
func FindVisibleTuple(head *Story, t *Transaction, idx int, preparedOK bool) *Tuple {
	tuple, _ := findVisibleWithOwn(head, t, idx, preparedOK)
	return tuple
}

// findVisibleWithOwn is FindVisibleTuple's internal twin: it also reports
// whether the story that decided the outcome (whichever of delete/insert
// stopped the walk) did so because t itself owns that event. This powers
// AddStmt's isOwnChange capture, where "own" can come from recognizing t's
// own in-progress delete just as much as from t's own in-progress insert
// (see the delete-then-insert scenario in SPEC_FULL.md §8).
func findVisibleWithOwn(head *Story, t *Transaction, idx int, preparedOK bool) (tuple *Tuple, own bool) {
	for s := head; s != nil; s = s.link[idx].older {
		if dv, dOwn := DeleteVisible(s, t, preparedOK); dv {
			return nil, dOwn
		}
		if iv, iOwn := InsertVisible(s, t, preparedOK); iv {
			return s.tuple, iOwn
		}
	}
	return nil, false
}
