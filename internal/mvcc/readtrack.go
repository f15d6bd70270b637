package mvcc

// ReadTracker records that a transaction observed a particular story. It
// sits on two intrusive lists at once: the story's reader list (so the
// story knows who must be notified/demoted at prepare) and the owning
// transaction's read set (so the transaction can release everything at
// prepare-finalize or rollback).
type ReadTracker struct {
	Reader *Transaction
	Story  *Story

	prevOnStory, nextOnStory *ReadTracker
	prevOnTxn, nextOnTxn     *ReadTracker
}

func prependReaderOnStory(s *Story, rt *ReadTracker) {
	rt.nextOnStory = s.readerHead
	rt.prevOnStory = nil
	if s.readerHead != nil {
		s.readerHead.prevOnStory = rt
	} else {
		s.readerTail = rt
	}
	s.readerHead = rt
}

func removeReaderFromStory(s *Story, rt *ReadTracker) {
	if rt.prevOnStory != nil {
		rt.prevOnStory.nextOnStory = rt.nextOnStory
	} else {
		s.readerHead = rt.nextOnStory
	}
	if rt.nextOnStory != nil {
		rt.nextOnStory.prevOnStory = rt.prevOnStory
	} else {
		s.readerTail = rt.prevOnStory
	}
	rt.prevOnStory = nil
	rt.nextOnStory = nil
}

func prependReaderOnTxn(t *Transaction, rt *ReadTracker) {
	rt.nextOnTxn = t.readSetHead
	rt.prevOnTxn = nil
	if t.readSetHead != nil {
		t.readSetHead.prevOnTxn = rt
	} else {
		t.readSetTail = rt
	}
	t.readSetHead = rt
}

func removeReaderFromTxn(t *Transaction, rt *ReadTracker) {
	if rt.prevOnTxn != nil {
		rt.prevOnTxn.nextOnTxn = rt.nextOnTxn
	} else {
		t.readSetHead = rt.nextOnTxn
	}
	if rt.nextOnTxn != nil {
		rt.nextOnTxn.prevOnTxn = rt.prevOnTxn
	} else {
		t.readSetTail = rt.prevOnTxn
	}
	rt.prevOnTxn = nil
	rt.nextOnTxn = nil
}

// TrackReadStory records that t has observed story. If t already tracks
// story, the existing tracker is touched to the front of both lists (an LRU
// move, cheap and keeps the most-recently-confirmed reads easiest to scan
// first during prepare's demotion walk). Otherwise a new tracker is
// allocated and prepended to both lists.
func TrackReadStory(t *Transaction, story *Story) *ReadTracker {
	for rt := t.readSetHead; rt != nil; rt = rt.nextOnTxn {
		if rt.Story == story {
			removeReaderFromStory(story, rt)
			removeReaderFromTxn(t, rt)
			prependReaderOnStory(story, rt)
			prependReaderOnTxn(t, rt)
			return rt
		}
	}
	rt := &ReadTracker{Reader: t, Story: story}
	prependReaderOnStory(story, rt)
	prependReaderOnTxn(t, rt)
	return rt
}

// TrackRead records that t has observed tuple's current value. If tuple is
// not yet dirty, a fresh ancient story (AddPSN=0, AddStmt=nil) is created
// for it first so there is something to attach the tracker to.
func TrackRead(mgr *Manager, space *Space, t *Transaction, tuple *Tuple) *ReadTracker {
	if tuple.dirty {
		story := mgr.history[tuple]
		return TrackReadStory(t, story)
	}
	story := NewStory(space, tuple)
	mgr.addToHistory(tuple, story)
	mgr.appendAllStories(story)
	mgr.scheduleGC()
	rt := &ReadTracker{Reader: t, Story: story}
	prependReaderOnStory(story, rt)
	prependReaderOnTxn(t, rt)
	return rt
}

// abortReaders aborts-with-conflict every reader currently tracking s,
// except txns in exclude (used when a statement's own transaction is one of
// the readers and must not be self-conflicted).
func abortReaders(s *Story, exclude *Transaction) {
	for rt := s.readerHead; rt != nil; {
		next := rt.nextOnStory
		if rt.Reader != exclude {
			AbortWithConflict(rt.Reader)
		}
		rt = next
	}
}

// sendReadersToReadView demotes every reader of s to a read view at psn,
// except readers equal to exclude.
func sendReadersToReadView(s *Story, psn uint64, exclude *Transaction) {
	for rt := s.readerHead; rt != nil; rt = rt.nextOnStory {
		if rt.Reader != exclude {
			SendToReadView(rt.Reader, psn)
		}
	}
}
