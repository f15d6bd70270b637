package mvcc

import "testing"

func keyField(t *Tuple) int64 { return t.Payload.(int64) }

func newTestManager() *Manager {
	return NewManager(2)
}

// Scenario 1: basic commit. T1 inserts {5}; commits. A separate read of key
// 5 returns {5}.
func TestBasicCommit(t *testing.T) {
	mgr := newTestManager()
	sp := NewSpace("s", keyField)

	txn1 := mgr.Begin()
	stmt := &Statement{Txn: txn1, Space: sp}
	tuple := NewTuple(int64(5))
	if _, err := AddStmt(stmt, nil, tuple, DupInsert); err != nil {
		t.Fatalf("insert: %v", err)
	}
	txn1.Stmts = append(txn1.Stmts, stmt)

	if err := txn1.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	txn2 := mgr.Begin()
	bound := sp.Primary().Get(5)
	if bound == nil {
		t.Fatalf("key 5 not bound after commit")
	}
	// The commit's GC step may already have reclaimed the story, leaving the
	// bound tuple clean; a clean bound tuple is the visible one.
	got := bound
	if bound.Dirty() {
		got = FindVisibleTuple(mgr.StoryOf(bound), txn2, 0, true)
	}
	if got != tuple {
		t.Fatalf("FindVisibleTuple = %v, want %v", got, tuple)
	}
	txn2.Rollback()
}

// Scenario 2: write-write conflict via read view. T1 inserts {5}. T2
// inserts {6}. T1 prepares first (PSN=2), T2 prepares second (PSN=3). Both
// commit; both keys end up bound.
func TestDisjointWritesBothCommit(t *testing.T) {
	mgr := newTestManager()
	sp := NewSpace("s", keyField)

	txn1 := mgr.Begin()
	stmt1 := &Statement{Txn: txn1, Space: sp}
	if _, err := AddStmt(stmt1, nil, NewTuple(int64(5)), DupInsert); err != nil {
		t.Fatalf("t1 insert: %v", err)
	}
	txn1.Stmts = append(txn1.Stmts, stmt1)

	txn2 := mgr.Begin()
	stmt2 := &Statement{Txn: txn2, Space: sp}
	if _, err := AddStmt(stmt2, nil, NewTuple(int64(6)), DupInsert); err != nil {
		t.Fatalf("t2 insert: %v", err)
	}
	txn2.Stmts = append(txn2.Stmts, stmt2)

	if err := txn1.Commit(); err != nil {
		t.Fatalf("t1 commit: %v", err)
	}
	if txn1.PSN != MinPSN {
		t.Fatalf("txn1.PSN = %d, want %d", txn1.PSN, MinPSN)
	}

	if err := txn2.Commit(); err != nil {
		t.Fatalf("t2 commit: %v", err)
	}
	if txn2.PSN != MinPSN+1 {
		t.Fatalf("txn2.PSN = %d, want %d", txn2.PSN, MinPSN+1)
	}

	if sp.Primary().Get(5) == nil {
		t.Fatalf("key 5 not bound")
	}
	if sp.Primary().Get(6) == nil {
		t.Fatalf("key 6 not bound")
	}
}

// Scenario 3: uniqueness failure. Index is empty. T1 Insert({5}). T2
// Insert({5}). Whichever prepares (commits) second fails with duplicate-key.
func TestUniquenessFailureOnSecondCommitter(t *testing.T) {
	mgr := newTestManager()
	sp := NewSpace("s", keyField)

	txn1 := mgr.Begin()
	stmt1 := &Statement{Txn: txn1, Space: sp}
	if _, err := AddStmt(stmt1, nil, NewTuple(int64(5)), DupInsert); err != nil {
		t.Fatalf("t1 insert: %v", err)
	}
	txn1.Stmts = append(txn1.Stmts, stmt1)

	txn2 := mgr.Begin()
	stmt2 := &Statement{Txn: txn2, Space: sp}
	if _, err := AddStmt(stmt2, nil, NewTuple(int64(5)), DupInsert); err != nil {
		t.Fatalf("t2 insert: %v", err)
	}
	txn2.Stmts = append(txn2.Stmts, stmt2)

	if err := txn1.Commit(); err != nil {
		t.Fatalf("t1 commit: %v", err)
	}

	if err := txn2.Commit(); err == nil {
		t.Fatalf("expected t2 commit to fail with duplicate-key")
	}
	if !txn2.IsRolledBack {
		t.Fatalf("expected t2 to be rolled back after failed commit")
	}
}

// Scenario 4: delete-then-insert is own_change. T1 Get(5) on an index
// containing {5} -> {5}; Delete(5); Insert({5}). The final statement
// carries IsOwnChange=true; commit succeeds.
func TestDeleteThenInsertIsOwnChange(t *testing.T) {
	mgr := newTestManager()
	sp := NewSpace("s", keyField)

	seed := mgr.Begin()
	seedStmt := &Statement{Txn: seed, Space: sp}
	if _, err := AddStmt(seedStmt, nil, NewTuple(int64(5)), DupInsert); err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	seed.Stmts = append(seed.Stmts, seedStmt)
	if err := seed.Commit(); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	txn1 := mgr.Begin()
	bound := sp.Primary().Get(5)
	got := bound
	if bound != nil && bound.Dirty() {
		got = FindVisibleTuple(mgr.StoryOf(bound), txn1, 0, true)
	}
	if got == nil {
		t.Fatalf("Get(5) returned nil before delete")
	}
	TrackRead(mgr, sp, txn1, got)

	delStmt := &Statement{Txn: txn1, Space: sp}
	if _, err := AddStmt(delStmt, got, nil, DupReplace); err != nil {
		t.Fatalf("delete: %v", err)
	}
	txn1.Stmts = append(txn1.Stmts, delStmt)

	insStmt := &Statement{Txn: txn1, Space: sp}
	if _, err := AddStmt(insStmt, nil, NewTuple(int64(5)), DupInsert); err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	txn1.Stmts = append(txn1.Stmts, insStmt)

	if !insStmt.IsOwnChange {
		t.Fatalf("expected final insert to be IsOwnChange")
	}

	if err := txn1.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// Scenario 5: gap read demotes reader. Index is empty. T1 Get(5) -> nil
// (records a point-hole). T2 Insert({5}) and commits. T1 is sent to a read
// view at T2's PSN; a subsequent Get(5) by T1 still returns nil.
func TestGapReadDemotesReader(t *testing.T) {
	mgr := newTestManager()
	sp := NewSpace("s", keyField)

	txn1 := mgr.Begin()
	if sp.Primary().Get(5) != nil {
		t.Fatalf("expected empty index")
	}
	mgr.RecordPointHole(txn1, sp.Primary().UniqueID, 5)

	txn2 := mgr.Begin()
	stmt2 := &Statement{Txn: txn2, Space: sp}
	if _, err := AddStmt(stmt2, nil, NewTuple(int64(5)), DupInsert); err != nil {
		t.Fatalf("t2 insert: %v", err)
	}
	txn2.Stmts = append(txn2.Stmts, stmt2)
	if err := txn2.Commit(); err != nil {
		t.Fatalf("t2 commit: %v", err)
	}

	if txn1.Status != StatusInReadView {
		t.Fatalf("txn1.Status = %v, want StatusInReadView", txn1.Status)
	}

	bound := sp.Primary().Get(5)
	story := mgr.StoryOf(bound)
	got := FindVisibleTuple(story, txn1, 0, true)
	if got != nil {
		t.Fatalf("txn1 Get(5) = %v, want nil (pinned read view)", got)
	}
}

// Scenario 6: rollback restores index. T1 Replace({5->a}), then
// Replace({5->b}). On rollback all auxiliary stories become collectible;
// once GC has reclaimed them, key 5 is bound to whatever was bound before
// T1 started (here: nothing).
func TestRollbackRestoresIndex(t *testing.T) {
	mgr := newTestManager()
	sp := NewSpace("s", keyField)

	if sp.Primary().Get(5) != nil {
		t.Fatalf("expected empty index before test")
	}

	txn1 := mgr.Begin()
	stmtA := &Statement{Txn: txn1, Space: sp}
	if _, err := AddStmt(stmtA, nil, NewTuple(int64(5)), DupReplaceOrInsert); err != nil {
		t.Fatalf("replace a: %v", err)
	}
	txn1.Stmts = append(txn1.Stmts, stmtA)

	stmtB := &Statement{Txn: txn1, Space: sp}
	if _, err := AddStmt(stmtB, nil, NewTuple(int64(5)), DupReplaceOrInsert); err != nil {
		t.Fatalf("replace b: %v", err)
	}
	txn1.Stmts = append(txn1.Stmts, stmtB)

	txn1.Rollback()
	for mgr.ForceGCSteps(mgr.ActiveStoryCount()+1) > 0 {
	}

	if sp.Primary().Get(5) != nil {
		t.Fatalf("expected key 5 unbound after rollback, got %v", sp.Primary().Get(5))
	}
}

func TestIndexReplaceModes(t *testing.T) {
	idx := NewIndex("s", 0, keyField)
	a := NewTuple(int64(1))

	if _, err := idx.Replace(nil, a, DupReplace); err == nil {
		t.Fatalf("expected ErrMissingReplace")
	}
	if _, err := idx.Replace(nil, a, DupInsert); err != nil {
		t.Fatalf("insert: %v", err)
	}
	b := NewTuple(int64(1))
	if _, err := idx.Replace(nil, b, DupInsert); err == nil {
		t.Fatalf("expected ErrDuplicateKey")
	}
	replaced, err := idx.Replace(a, b, DupReplace)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if replaced != a {
		t.Fatalf("replaced = %v, want a", replaced)
	}
}

// row is a two-field payload used to exercise a genuine secondary index: pk
// drives index 0, sk drives index 1, independently of each other.
type row struct {
	pk int64
	sk int64
}

func rowPK(t *Tuple) int64 { return t.Payload.(row).pk }
func rowSK(t *Tuple) int64 { return t.Payload.(row).sk }

// Scenario 7: secondary-index cross-write conflict, mirroring the space
// with a pk on field one and an sk on field two from memtx_tx.c's
// cross-write comment. Three in-progress transactions replace {pk:1,sk:1},
// {pk:2,sk:1} and {pk:1,sk:1} respectively. When the first commits: the
// second introduces a duplicate on the secondary key and must be sent to a
// read view (aborted here, since it has writes of its own); the third
// overwrites the first in both indexes and has the right to exist, so it
// must survive untouched.
func TestSecondaryIndexCrossWriteConflict(t *testing.T) {
	mgr := newTestManager()
	sp := NewSpace("s", rowPK, rowSK)

	txn1 := mgr.Begin()
	stmt1 := &Statement{Txn: txn1, Space: sp}
	if _, err := AddStmt(stmt1, nil, NewTuple(row{pk: 1, sk: 1}), DupReplaceOrInsert); err != nil {
		t.Fatalf("t1 replace: %v", err)
	}
	txn1.Stmts = append(txn1.Stmts, stmt1)

	txn2 := mgr.Begin()
	stmt2 := &Statement{Txn: txn2, Space: sp}
	if _, err := AddStmt(stmt2, nil, NewTuple(row{pk: 2, sk: 1}), DupReplaceOrInsert); err != nil {
		t.Fatalf("t2 replace: %v", err)
	}
	txn2.Stmts = append(txn2.Stmts, stmt2)

	txn3 := mgr.Begin()
	stmt3 := &Statement{Txn: txn3, Space: sp}
	if _, err := AddStmt(stmt3, nil, NewTuple(row{pk: 1, sk: 1}), DupReplaceOrInsert); err != nil {
		t.Fatalf("t3 replace: %v", err)
	}
	txn3.Stmts = append(txn3.Stmts, stmt3)

	if stmt3.IsOwnChange {
		t.Fatalf("t3's replace is a cross-transaction overwrite, not an own_change")
	}

	if err := txn1.Commit(); err != nil {
		t.Fatalf("t1 commit: %v", err)
	}

	if txn2.Status != StatusAborted || !txn2.IsConflicted {
		t.Fatalf("txn2.Status = %v, IsConflicted = %v, want Aborted/true (duplicate secondary key)", txn2.Status, txn2.IsConflicted)
	}
	if txn3.Status != StatusInProgress {
		t.Fatalf("txn3.Status = %v, want StatusInProgress (overwrites t1 in both indexes, spared)", txn3.Status)
	}

	if err := txn3.Commit(); err != nil {
		t.Fatalf("t3 commit: %v", err)
	}
	txn2.Rollback()
	mgr.ForceGCSteps(mgr.ActiveStoryCount())

	pkBound := sp.Indexes[0].Get(1)
	skBound := sp.Indexes[1].Get(1)
	if pkBound == nil || skBound == nil || pkBound != skBound {
		t.Fatalf("expected t3's tuple bound at pk=1 and sk=1 in both indexes, got pk=%v sk=%v", pkBound, skBound)
	}
	if pkBound.Payload.(row) != (row{pk: 1, sk: 1}) {
		t.Fatalf("bound tuple payload = %v, want t3's {1,1}", pkBound.Payload)
	}
	if sp.Indexes[0].Get(2) != nil {
		t.Fatalf("expected pk=2 unbound after t2's rollback and GC reclaim")
	}
}

func TestGCReclaimsRolledBackStory(t *testing.T) {
	mgr := newTestManager()
	sp := NewSpace("s", keyField)

	txn1 := mgr.Begin()
	stmt := &Statement{Txn: txn1, Space: sp}
	if _, err := AddStmt(stmt, nil, NewTuple(int64(9)), DupInsert); err != nil {
		t.Fatalf("insert: %v", err)
	}
	txn1.Stmts = append(txn1.Stmts, stmt)
	txn1.Rollback()

	before := mgr.ActiveStoryCount()
	reclaimed := mgr.ForceGCSteps(before + 1)
	if reclaimed == 0 {
		t.Fatalf("expected GC to reclaim the rolled-back story")
	}
	if mgr.ActiveStoryCount() != 0 {
		t.Fatalf("ActiveStoryCount() = %d, want 0", mgr.ActiveStoryCount())
	}
}
