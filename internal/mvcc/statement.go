package mvcc

import "fmt"

// Statement is one DML call's footprint inside a transaction: the tuples it
// was given, the stories it ended up linked to, and enough of its own
// rollback information to physically undo an unprepared no-op statement.
type Statement struct {
	Txn   *Transaction
	Space *Space

	OldTuple *Tuple
	NewTuple *Tuple

	// RollbackOld/RollbackNew are the exact (old, new) arguments AddStmt was
	// called with, kept for RollbackStmt's "empty" case (see rollbackEmpty).
	RollbackOld *Tuple
	RollbackNew *Tuple

	AddStory *Story
	DelStory *Story

	// NextInDelList threads this statement into whichever story's deleter
	// list it belongs to (AddStory.delStmt or DelStory.delStmt).
	NextInDelList *Statement

	IsOwnChange bool
}

// LinkAddedBy attaches story as stmt's insertion and stmt as story's adder.
func LinkAddedBy(story *Story, stmt *Statement) {
	story.addStmt = stmt
	stmt.AddStory = story
}

func unlinkAddedBy(story *Story, stmt *Statement) {
	story.addStmt = nil
	stmt.AddStory = nil
}

// LinkDeletedBy prepends stmt onto story's (possibly multi-member)
// in-progress deleter list.
func LinkDeletedBy(story *Story, stmt *Statement) {
	stmt.NextInDelList = story.delStmt
	story.delStmt = stmt
	stmt.DelStory = story
}

func unlinkDeletedBy(story *Story, stmt *Statement) {
	if story.delStmt == stmt {
		story.delStmt = stmt.NextInDelList
	} else {
		for p := story.delStmt; p != nil; p = p.NextInDelList {
			if p.NextInDelList == stmt {
				p.NextInDelList = stmt.NextInDelList
				break
			}
		}
	}
	stmt.NextInDelList = nil
	stmt.DelStory = nil
}

// storyOrAncient returns the story already tracking tuple, or lazily
// creates an ancient one (AddPSN=0, AddStmt=nil) for a tuple that has never
// been touched under MVCC before.
func storyOrAncient(mgr *Manager, space *Space, tuple *Tuple) *Story {
	if tuple.dirty {
		return mgr.history[tuple]
	}
	s := NewStory(space, tuple)
	mgr.addToHistory(tuple, s)
	mgr.appendAllStories(s)
	mgr.scheduleGC()
	return s
}

// AddStmt is the entry point for every DML statement: new != nil is an
// INSERT/REPLACE, new == nil (with old != nil) is a DELETE.
func AddStmt(stmt *Statement, old, new *Tuple, mode Mode) (*Tuple, error) {
	if new != nil && new.dirty {
		panic("mvcc: AddStmt called with an already-dirty new tuple")
	}
	if old == nil && new == nil {
		panic("mvcc: AddStmt called with both old and new nil")
	}

	stmt.RollbackOld = old
	stmt.RollbackNew = new
	stmt.OldTuple = old
	stmt.NewTuple = new

	if new != nil {
		return addInsertOrReplace(stmt, old, new, mode)
	}
	return addDelete(stmt, old)
}

func addInsertOrReplace(stmt *Statement, old, new *Tuple, mode Mode) (*Tuple, error) {
	mgr := stmt.Txn.mgr
	space := stmt.Space
	mgr.gcOpportunity()

	addStory := NewStory(space, new)
	mgr.addToHistory(new, addStory)
	mgr.appendAllStories(addStory)
	mgr.scheduleGC()

	n := space.IndexCount()
	directlyReplaced := make([]*Tuple, n)
	for i := 0; i < n; i++ {
		replaced, err := space.Indexes[i].Replace(nil, new, DupReplaceOrInsert)
		if err != nil {
			unwindPhysicalInsert(space, new, directlyReplaced[:i])
			mgr.removeFromHistory(new)
			mgr.removeFromAllStories(addStory)
			new.dirty = false
			return nil, err
		}
		directlyReplaced[i] = replaced
	}

	visibleReplaced := make([]*Tuple, n)

	v0, own0, err := checkDupAt(mgr, space, stmt, 0, directlyReplaced[0], mode, old)
	if err != nil {
		unwindPhysicalInsert(space, new, directlyReplaced)
		mgr.removeFromHistory(new)
		mgr.removeFromAllStories(addStory)
		new.dirty = false
		if v0 != nil {
			TrackRead(mgr, space, stmt.Txn, v0)
		}
		stmt.Txn.StmtRollback = true
		return nil, err
	}
	visibleReplaced[0] = v0

	for i := 1; i < n; i++ {
		vi, _, err := checkDupAt(mgr, space, stmt, i, directlyReplaced[i], DupInsert, v0)
		if err != nil {
			unwindPhysicalInsert(space, new, directlyReplaced)
			mgr.removeFromHistory(new)
			mgr.removeFromAllStories(addStory)
			new.dirty = false
			if vi != nil {
				TrackRead(mgr, space, stmt.Txn, vi)
			}
			stmt.Txn.StmtRollback = true
			return nil, err
		}
		visibleReplaced[i] = vi
	}

	old = v0
	isOwnChange := own0

	LinkAddedBy(addStory, stmt)
	stmt.IsOwnChange = isOwnChange

	for i := 0; i < n; i++ {
		idx := space.Indexes[i]
		if directlyReplaced[i] == nil {
			key := idx.Key(new)
			mgr.DrainPointHoles(idx.UniqueID, key, addStory, i)
			LinkTop(space, addStory, nil, i, true)
		} else {
			older := storyOrAncient(mgr, space, directlyReplaced[i])
			LinkTop(space, addStory, older, i, true)
		}
	}

	if old != nil {
		oldStory := storyOrAncient(mgr, space, old)
		LinkDeletedBy(oldStory, stmt)
	}

	if !isOwnChange && mode == DupInsert {
		if old == nil {
			AddInplaceGap(stmt.Txn, &addStory.link[0])
		} else {
			TrackRead(mgr, space, stmt.Txn, old)
		}
	}

	return old, nil
}

// unwindPhysicalInsert reverses the physical Index.Replace calls already
// performed in directlyReplaced (indexed 0..len-1), restoring whatever was
// bound there before this statement touched it.
func unwindPhysicalInsert(space *Space, new *Tuple, directlyReplaced []*Tuple) {
	for j := len(directlyReplaced) - 1; j >= 0; j-- {
		if _, err := space.Indexes[j].Replace(new, directlyReplaced[j], DupReplaceOrInsert); err != nil {
			panic("mvcc: fatal: failed to unwind a partially applied insert: " + err.Error())
		}
	}
}

// checkDupAt resolves the logically visible tuple displaced at index idx —
// directReplaced itself if it predates MVCC tracking, or whatever
// FindVisibleTuple resolves within its chain otherwise — and applies the
// duplicate-key rule for mode against priorOld.
func checkDupAt(mgr *Manager, space *Space, stmt *Statement, idx int, directReplaced *Tuple, mode Mode, priorOld *Tuple) (visible *Tuple, own bool, err error) {
	switch {
	case directReplaced == nil:
	case !directReplaced.dirty:
		visible = directReplaced
	default:
		story := mgr.history[directReplaced]
		visible, own = findVisibleWithOwn(story, stmt.Txn, idx, true)
	}

	if visible == nil && mode == DupReplace {
		return nil, own, fmt.Errorf("mvcc: space %q index %d: %w", space.Name, idx, ErrMissingReplace)
	}
	if visible != nil && visible != priorOld && (priorOld != nil || mode == DupInsert) {
		return visible, own, fmt.Errorf("mvcc: space %q index %d: %w", space.Name, idx, ErrDuplicateKey)
	}
	return visible, own, nil
}

func addDelete(stmt *Statement, old *Tuple) (*Tuple, error) {
	if !old.dirty {
		panic("mvcc: delete of a tuple with no version history")
	}
	story := stmt.Txn.mgr.history[old]
	if story.addStmt != nil {
		stmt.IsOwnChange = story.addStmt.Txn == stmt.Txn
	}
	LinkDeletedBy(story, stmt)
	return old, nil
}

// RollbackStmt undoes stmt's effect on its stories, dispatching on which of
// AddStory/DelStory (if either) it is linked to.
func RollbackStmt(stmt *Statement) {
	switch {
	case stmt.AddStory != nil:
		rollbackAdd(stmt)
	case stmt.DelStory != nil:
		rollbackDelete(stmt)
	default:
		rollbackEmpty(stmt)
	}
}

func rollbackAdd(stmt *Statement) {
	story := stmt.AddStory
	space := stmt.Space
	prepared := stmt.Txn.PSN != 0

	if prepared {
		d := story.delStmt
		story.delStmt = nil
		for d != nil {
			next := d.NextInDelList
			d.NextInDelList = nil
			d.DelStory = nil
			if stmt.DelStory != nil {
				LinkDeletedBy(stmt.DelStory, d)
			}
			d = next
		}
		story.addPSN = 0
		story.delPSN = 0
		abortReaders(story, nil)
	}

	unlinkAddedBy(story, stmt)
	if stmt.DelStory != nil {
		unlinkDeletedBy(stmt.DelStory, stmt)
	}

	for i := 0; i < story.indexCount; i++ {
		for story.link[i].older != nil {
			Reorder(space, story, story.link[i].older, i)
		}
	}
	story.delPSN = RolledBackPSN
}

func rollbackDelete(stmt *Statement) {
	story := stmt.DelStory
	prepared := stmt.Txn.PSN != 0

	if prepared {
		for s := story.link[0].newer; s != nil; s = s.link[0].newer {
			if s.addStmt != nil && !s.addStmt.IsOwnChange {
				LinkDeletedBy(story, s.addStmt)
			}
		}
		story.delPSN = 0
		for i := 0; i < story.indexCount; i++ {
			abortGapReaders(&story.link[i], nil)
		}
	}

	unlinkDeletedBy(story, stmt)
}

func rollbackEmpty(stmt *Statement) {
	if stmt.Txn.PSN == 0 {
		return
	}
	space := stmt.Space
	for i := range space.Indexes {
		if _, err := space.Indexes[i].Replace(stmt.RollbackNew, stmt.RollbackOld, DupReplaceOrInsert); err != nil {
			panic("mvcc: fatal: empty-statement rollback replace failed: " + err.Error())
		}
	}
}

// PrepareStmt assigns the statement's stories their PSN-visible state and
// resolves conflicts with concurrent readers. stmt.Txn.PSN must already be
// set (Transaction.Commit assigns it before preparing any statement).
func PrepareStmt(stmt *Statement) error {
	switch {
	case stmt.AddStory != nil:
		return prepareAdd(stmt)
	case stmt.DelStory != nil:
		return prepareDelete(stmt)
	default:
		return nil
	}
}

func prepareAdd(stmt *Statement) error {
	story := stmt.AddStory
	space := stmt.Space
	psn := stmt.Txn.PSN

	for i := 0; i < story.indexCount; i++ {
		for {
			older := story.link[i].older
			if older == nil || older.addPSN != 0 || older.addStmt == nil {
				break
			}
			Reorder(space, story, older, i)
		}
	}

	if stmt.DelStory == nil {
		for s := story.link[0].newer; s != nil; s = s.link[0].newer {
			if s.addStmt != nil && !s.addStmt.IsOwnChange {
				LinkDeletedBy(story, s.addStmt)
			}
		}
	} else {
		del := stmt.DelStory
		d := del.delStmt
		for d != nil {
			next := d.NextInDelList
			if d != stmt {
				unlinkDeletedBy(del, d)
				LinkDeletedBy(story, d)
			}
			d = next
		}
	}

	if stmt.DelStory != nil {
		sendReadersToReadView(stmt.DelStory, psn, stmt.Txn)
	} else {
		head := story
		for head.link[0].newer != nil {
			head = head.link[0].newer
		}
		sendGapReadersToReadView(&head.link[0], psn, stmt.Txn)
	}

	for i := 1; i < story.indexCount; i++ {
		head := story
		for s := story.link[i].newer; s != nil; s = s.link[i].newer {
			head = s
			testStmt := s.addStmt
			if testStmt == nil || testStmt.Txn == stmt.Txn {
				continue
			}
			if testStmt.IsOwnChange && testStmt.DelStory == nil {
				continue
			}
			if testStmt.DelStory == story {
				continue
			}
			SendToReadView(testStmt.Txn, psn)
		}
		sendGapReadersToReadView(&head.link[i], psn, stmt.Txn)
	}

	story.addPSN = psn
	if stmt.DelStory != nil {
		stmt.DelStory.delPSN = psn
	}
	return nil
}

func prepareDelete(stmt *Statement) error {
	story := stmt.DelStory
	psn := stmt.Txn.PSN

	d := story.delStmt
	story.delStmt = nil
	for d != nil {
		next := d.NextInDelList
		d.NextInDelList = nil
		if d == stmt {
			story.delStmt = stmt
		} else {
			d.DelStory = nil
		}
		d = next
	}

	sendReadersToReadView(story, psn, stmt.Txn)
	story.delPSN = psn
	return nil
}

// CommitStmt detaches stmt from whichever story it is linked to, leaving
// AddPSN/DelPSN set in place, and triggers a GC opportunity.
func CommitStmt(stmt *Statement) {
	if stmt.AddStory != nil {
		unlinkAddedBy(stmt.AddStory, stmt)
	}
	if stmt.DelStory != nil {
		unlinkDeletedBy(stmt.DelStory, stmt)
	}
	stmt.Txn.mgr.gcOpportunity()
}
