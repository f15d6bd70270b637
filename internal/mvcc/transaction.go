package mvcc

import (
	"fmt"

	"github.com/google/uuid"
)

// Status is a transaction's lifecycle state.
type Status int

const (
	StatusInProgress Status = iota
	StatusPrepared
	StatusInReadView
	StatusCommitted
	StatusAborted
)

// Transaction is one unit of work against a Manager. It owns its read set,
// gap list and point-hole list, and releases them when its purpose is done
// (prepare-finalize for read-related lists on a successful commit, or
// rollback for everything).
type Transaction struct {
	ID uuid.UUID

	PSN   uint64
	RVPSN uint64

	Status Status

	Stmts []*Statement

	IsRolledBack bool
	IsConflicted bool

	// StmtRollback is set by AddStmt's dup-check failure path (see
	// statement.go); it signals the caller that this statement failed and
	// the transaction is a rollback candidate, without forcing the
	// transaction closed itself (ErrDuplicateKey/ErrMissingReplace callers
	// may legitimately retry with a different key before rolling back).
	StmtRollback bool

	readSetHead, readSetTail *ReadTracker
	gapListHead              *gapItem
	pointHolesHead           *pointHoleItem

	// readViewTxns intrusive list, ordered ascending by RVPSN.
	rvPrev, rvNext *Transaction

	mgr *Manager
}

// Begin allocates a transaction, registers it with the manager, and
// returns it. Callers are expected to store the result in their fiber's
// current-transaction slot (see txm.Fiber).
func (m *Manager) Begin() *Transaction {
	t := &Transaction{ID: uuid.New(), Status: StatusInProgress, mgr: m}
	m.txns[t.ID] = t
	return t
}

// CheckCanContinue rejects transactions that can no longer accept new
// statements. A transaction aborted by a conflict is reported with an error
// that matches both ErrTxnNotContinuable and ErrTxnConflict.
func (t *Transaction) CheckCanContinue() error {
	if t.Status == StatusAborted && t.IsConflicted {
		return fmt.Errorf("%w: %w", ErrTxnNotContinuable, ErrTxnConflict)
	}
	if t.Status == StatusAborted || t.Status == StatusCommitted {
		return ErrTxnNotContinuable
	}
	return nil
}

// CheckCanComplete rejects transactions that have already been rolled back
// or committed (ErrTxnNotCompletable) in addition to everything
// CheckCanContinue rejects.
func (t *Transaction) CheckCanComplete() error {
	if t.IsRolledBack || t.Status == StatusCommitted {
		return ErrTxnNotCompletable
	}
	return t.CheckCanContinue()
}

// Commit assigns a PSN, prepares every statement in submission order, and —
// if every PrepareStmt succeeds — finalizes the read-related lists, marks
// the transaction Committed, runs CommitStmt on every statement, and frees
// it from the manager's registry. If the transaction was aborted (for
// example by a conflict) or any PrepareStmt fails, Commit rolls the
// transaction back instead and returns that error.
func (t *Transaction) Commit() error {
	if err := t.CheckCanComplete(); err != nil {
		if t.Status == StatusAborted && !t.IsRolledBack {
			t.Rollback()
		}
		return err
	}

	t.PSN = t.mgr.nextPSN
	t.mgr.nextPSN++

	for _, stmt := range t.Stmts {
		if err := PrepareStmt(stmt); err != nil {
			t.Rollback()
			return err
		}
	}

	t.releaseReadLists()
	t.Status = StatusCommitted

	for _, stmt := range t.Stmts {
		CommitStmt(stmt)
	}

	t.free()
	return nil
}

// Rollback marks the transaction Aborted, unwinds every statement in
// reverse submission order, releases every list it owns, and detaches it
// from the manager's registry.
func (t *Transaction) Rollback() {
	t.Status = StatusAborted
	t.IsRolledBack = true

	for i := len(t.Stmts) - 1; i >= 0; i-- {
		RollbackStmt(t.Stmts[i])
	}

	t.releaseReadLists()
	t.free()
}

// free removes the read-view-list membership (if any) and the manager's
// txns registry entry. It does not touch Stmts; CommitStmt/RollbackStmt
// have already detached those.
func (t *Transaction) free() {
	if t.RVPSN != 0 {
		t.mgr.removeFromReadView(t)
	}
	delete(t.mgr.txns, t.ID)
}

// releaseReadLists drops every ReadTracker, gap item and point-hole item
// this transaction owns. Called once the transaction's reads no longer
// matter: at prepare-finalize on the way to a successful commit, or during
// rollback once every statement has been unwound.
func (t *Transaction) releaseReadLists() {
	for rt := t.readSetHead; rt != nil; {
		next := rt.nextOnTxn
		removeReaderFromStory(rt.Story, rt)
		rt.prevOnTxn, rt.nextOnTxn = nil, nil
		rt = next
	}
	t.readSetHead, t.readSetTail = nil, nil

	for g := t.gapListHead; g != nil; {
		next := g.nextOnTxn
		removeGapFromChain(g)
		g.prevOnTxn, g.nextOnTxn = nil, nil
		g = next
	}
	t.gapListHead = nil

	for item := t.pointHolesHead; item != nil; {
		next := item.nextOnTxn
		t.mgr.deletePointHole(item)
		item = next
	}
	t.pointHolesHead = nil
}

// SendToReadView attempts to demote txn to a read view pinned at psn. If
// txn has written anything, a read view cannot preserve serializability for
// it, so it is aborted with conflict instead. Otherwise txn's RVPSN is set
// (or lowered) to psn and its position in the manager's ascending-RVPSN
// read-view list is corrected with a bounded backward walk.
func SendToReadView(txn *Transaction, psn uint64) {
	if txnHasWrites(txn) {
		AbortWithConflict(txn)
		return
	}

	mgr := txn.mgr
	switch txn.Status {
	case StatusInReadView:
		if psn >= txn.RVPSN {
			return
		}
		txn.RVPSN = psn
	default:
		txn.RVPSN = psn
		txn.Status = StatusInReadView
		mgr.appendToReadView(txn)
	}

	for txn.rvPrev != nil && txn.rvPrev.RVPSN > txn.RVPSN {
		mgr.swapReadViewNeighbors(txn.rvPrev, txn)
	}
}

// AbortWithConflict transitions txn to Aborted due to a conflicting
// committer. It is idempotent: aborting an already-aborted transaction is a
// no-op beyond removing stale read-view membership.
func AbortWithConflict(txn *Transaction) {
	if txn.Status == StatusAborted {
		return
	}
	if txn.Status == StatusInReadView {
		txn.mgr.removeFromReadView(txn)
	}
	txn.Status = StatusAborted
	txn.IsConflicted = true
}

// txnHasWrites reports whether txn has any statement that created or
// deleted a story (as opposed to a pure read that only allocated an ancient
// story via TrackRead).
func txnHasWrites(txn *Transaction) bool {
	for _, stmt := range txn.Stmts {
		if stmt.AddStory != nil || stmt.DelStory != nil {
			return true
		}
	}
	return false
}
