package txm

import (
	"fmt"

	"github.com/Astronomax/transaction-manager/internal/mvcc"
)

// Engine ties a mvcc.Manager to a Catalog of named spaces and exposes the
// six operations external callers drive a transaction through (SPEC_FULL.md
// §6). It is the one thing cmd/txnserver wraps in gRPC/HTTP — the engine
// itself has no idea it is being driven that way.
type Engine struct {
	mgr     *mvcc.Manager
	catalog *Catalog
	cfg     Config
}

// NewEngine constructs an engine with a fresh manager and an empty catalog.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		mgr:     mvcc.NewManager(cfg.GCStepsSize),
		catalog: NewCatalog(),
		cfg:     cfg,
	}
}

// Manager returns the engine's underlying mvcc.Manager, for collaborators
// like gcsched.Scheduler that need to drive it directly.
func (e *Engine) Manager() *mvcc.Manager { return e.mgr }

// Catalog returns the engine's space registry.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Close tears down the engine's manager. No further operations may be
// issued against it afterward.
func (e *Engine) Close() {
	e.mgr.Lock()
	defer e.mgr.Unlock()
	e.mgr.Close()
}

// Begin opens a transaction on fiber. It fails if fiber already has one
// open.
func (e *Engine) Begin(fiber *Fiber) error {
	e.mgr.Lock()
	defer e.mgr.Unlock()

	if fiber.txn != nil {
		return ErrTransactionOpen
	}
	fiber.txn = e.mgr.Begin()
	return nil
}

// Commit prepares and commits fiber's transaction, then clears the fiber's
// slot. The slot is cleared whether or not the commit succeeds; a
// transaction that was aborted by a conflict is rolled back and its error
// returned.
func (e *Engine) Commit(fiber *Fiber) error {
	e.mgr.Lock()
	defer e.mgr.Unlock()

	txn := fiber.txn
	if txn == nil {
		return ErrNoTransaction
	}
	err := txn.Commit()
	fiber.txn = nil
	return err
}

// Rollback rolls back fiber's transaction and clears the fiber's slot. It
// is a no-op (not an error) if the fiber has no open transaction.
func (e *Engine) Rollback(fiber *Fiber) error {
	e.mgr.Lock()
	defer e.mgr.Unlock()

	txn := fiber.txn
	if txn == nil {
		return nil
	}
	txn.Rollback()
	fiber.txn = nil
	return nil
}

// Insert applies DupInsert semantics: it fails if the tuple's primary key
// is already visibly bound.
func (e *Engine) Insert(fiber *Fiber, space *mvcc.Space, tuple *mvcc.Tuple) (*mvcc.Tuple, error) {
	return e.addStmt(fiber, space, nil, tuple, mvcc.DupInsert)
}

// Replace applies DupReplaceOrInsert semantics: it never fails on account
// of what is or isn't already bound.
func (e *Engine) Replace(fiber *Fiber, space *mvcc.Space, tuple *mvcc.Tuple) (*mvcc.Tuple, error) {
	return e.addStmt(fiber, space, nil, tuple, mvcc.DupReplaceOrInsert)
}

func (e *Engine) addStmt(fiber *Fiber, space *mvcc.Space, old, new *mvcc.Tuple, mode mvcc.Mode) (*mvcc.Tuple, error) {
	e.mgr.Lock()
	defer e.mgr.Unlock()

	txn := fiber.txn
	if txn == nil {
		return nil, ErrNoTransaction
	}
	if err := txn.CheckCanContinue(); err != nil {
		return nil, err
	}

	stmt := &mvcc.Statement{Txn: txn, Space: space}
	result, err := mvcc.AddStmt(stmt, old, new, mode)
	if err != nil {
		return nil, err
	}
	txn.Stmts = append(txn.Stmts, stmt)
	return result, nil
}

// Delete locates the visible tuple at key via the primary index and
// replaces it with nil. It fails with ErrKeyNotFound if nothing is visibly
// bound there.
func (e *Engine) Delete(fiber *Fiber, space *mvcc.Space, key int64) (*mvcc.Tuple, error) {
	e.mgr.Lock()
	defer e.mgr.Unlock()

	txn := fiber.txn
	if txn == nil {
		return nil, ErrNoTransaction
	}
	if err := txn.CheckCanContinue(); err != nil {
		return nil, err
	}

	old, err := e.lookupLocked(txn, space, key)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, fmt.Errorf("txm: delete key %d: %w", key, ErrKeyNotFound)
	}

	stmt := &mvcc.Statement{Txn: txn, Space: space}
	result, err := mvcc.AddStmt(stmt, old, nil, mvcc.DupReplace)
	if err != nil {
		return nil, err
	}
	txn.Stmts = append(txn.Stmts, stmt)
	return result, nil
}

// Get resolves the tuple visible to fiber's transaction at key on space's
// primary index, recording a read or point-hole for conflict detection.
func (e *Engine) Get(fiber *Fiber, space *mvcc.Space, key int64) (*mvcc.Tuple, error) {
	e.mgr.Lock()
	defer e.mgr.Unlock()

	txn := fiber.txn
	if txn == nil {
		return nil, ErrNoTransaction
	}
	return e.lookupLocked(txn, space, key)
}

// lookupLocked is Get's body, reusable by Delete under the same mutex
// acquisition: it resolves the visible tuple and records the read (or, on a
// miss, a point-hole) so later conflicting writers can find this reader.
func (e *Engine) lookupLocked(txn *mvcc.Transaction, space *mvcc.Space, key int64) (*mvcc.Tuple, error) {
	idx := space.Primary()
	bound := idx.Get(key)

	if bound == nil {
		e.mgr.RecordPointHole(txn, idx.UniqueID, key)
		return nil, nil
	}

	if !bound.Dirty() {
		mvcc.TrackRead(e.mgr, space, txn, bound)
		return bound, nil
	}

	story := e.mgr.StoryOf(bound)
	visible := mvcc.FindVisibleTuple(story, txn, 0, true)
	if visible != nil {
		mvcc.TrackReadStory(txn, e.mgr.StoryOf(visible))
	} else {
		e.mgr.RecordPointHole(txn, idx.UniqueID, key)
	}
	return visible, nil
}
