package mvcc

import (
	"sync"

	"github.com/google/uuid"
)

// Manager is the transaction manager: the owner of the History map, the
// PointHoles hash, the AllStories intrusive list, the ascending-RVPSN
// read-view list, and the incremental GC cursor. It is an explicit,
// constructible value — not a package-level singleton — so that callers
// (txm.Engine) can thread it through as ordinary context.
//
// mu stands in for the single-fiber-at-a-time scheduling model (SPEC_FULL.md
// §5): exactly one statement/transaction operation or GC sweep may run
// inside the manager at once. Callers driving the manager directly (as
// gcsched.Scheduler does for its sweep) must take it explicitly; txm.Engine
// takes it for every operation on behalf of its callers.
type Manager struct {
	mu sync.Mutex

	history    map[*Tuple]*Story
	pointHoles map[pointHoleKey]*pointHoleItem

	allStoriesHead, allStoriesTail *Story
	gcCursor                      *Story
	pendingGCSteps                int

	readViewHead *Transaction

	nextPSN uint64

	txns map[uuid.UUID]*Transaction

	gcStepsSize int
}

// Lock acquires the manager's single mutex. See the Manager doc comment.
func (m *Manager) Lock() { m.mu.Lock() }

// Unlock releases the manager's single mutex.
func (m *Manager) Unlock() { m.mu.Unlock() }

// NewManager constructs an empty manager. gcStepsSize is the number of
// incremental GC steps scheduled by each statement that creates a new story
// (see gc.go); 0 or negative falls back to the spec's default of 2.
func NewManager(gcStepsSize int) *Manager {
	if gcStepsSize <= 0 {
		gcStepsSize = 2
	}
	return &Manager{
		history:     make(map[*Tuple]*Story),
		pointHoles:  make(map[pointHoleKey]*pointHoleItem),
		txns:        make(map[uuid.UUID]*Transaction),
		nextPSN:     MinPSN,
		gcStepsSize: gcStepsSize,
	}
}

func (m *Manager) addToHistory(t *Tuple, s *Story) {
	m.history[t] = s
}

func (m *Manager) removeFromHistory(t *Tuple) {
	delete(m.history, t)
}

// StoryOf returns the story tracking tuple's history, or nil if tuple is
// not dirty.
func (m *Manager) StoryOf(t *Tuple) *Story {
	return m.history[t]
}

func (m *Manager) appendAllStories(s *Story) {
	s.mgrPrev = m.allStoriesTail
	s.mgrNext = nil
	if m.allStoriesTail != nil {
		m.allStoriesTail.mgrNext = s
	} else {
		m.allStoriesHead = s
	}
	m.allStoriesTail = s
}

func (m *Manager) removeFromAllStories(s *Story) {
	if s.mgrPrev != nil {
		s.mgrPrev.mgrNext = s.mgrNext
	} else if m.allStoriesHead == s {
		m.allStoriesHead = s.mgrNext
	}
	if s.mgrNext != nil {
		s.mgrNext.mgrPrev = s.mgrPrev
	} else if m.allStoriesTail == s {
		m.allStoriesTail = s.mgrPrev
	}
	if m.gcCursor == s {
		m.gcCursor = s.mgrNext
	}
	s.mgrPrev = nil
	s.mgrNext = nil
}

func (m *Manager) appendToReadView(t *Transaction) {
	// Insertion point kept simple (append at tail); SendToReadView's bounded
	// backward walk restores ascending order afterward.
	tail := m.readViewHead
	if tail == nil {
		t.rvPrev, t.rvNext = nil, nil
		m.readViewHead = t
		return
	}
	for tail.rvNext != nil {
		tail = tail.rvNext
	}
	tail.rvNext = t
	t.rvPrev = tail
	t.rvNext = nil
}

func (m *Manager) removeFromReadView(t *Transaction) {
	if t.rvPrev != nil {
		t.rvPrev.rvNext = t.rvNext
	} else if m.readViewHead == t {
		m.readViewHead = t.rvNext
	}
	if t.rvNext != nil {
		t.rvNext.rvPrev = t.rvPrev
	}
	t.rvPrev, t.rvNext = nil, nil
}

// swapReadViewNeighbors swaps adjacent read-view list nodes a, b where a is
// currently immediately before b (a.rvNext == b).
func (m *Manager) swapReadViewNeighbors(a, b *Transaction) {
	before := a.rvPrev
	after := b.rvNext

	if before != nil {
		before.rvNext = b
	} else {
		m.readViewHead = b
	}
	b.rvPrev = before
	b.rvNext = a
	a.rvPrev = b
	a.rvNext = after
	if after != nil {
		after.rvPrev = a
	}
}

// lowestReadViewPSN returns the smallest RVPSN among active read-view
// transactions, or nextPSN if there are none — GC treats "no one is in a
// read view" as "the cutoff is the next PSN that will ever be assigned".
func (m *Manager) lowestReadViewPSN() uint64 {
	if m.readViewHead == nil {
		return m.nextPSN
	}
	return m.readViewHead.RVPSN
}

// Close tears the manager down: every story is detached from its chains
// without preserving the chain-head invariant (there is no more index to be
// correct about), and every reader list is simply dropped — trackers are
// plain structs owned by their transactions and are reclaimed by Go's GC
// once unreferenced, per the Open Question resolution in DESIGN.md.
func (m *Manager) Close() {
	for s := m.allStoriesHead; s != nil; {
		next := s.mgrNext
		fullUnlinkOnClose(s)
		s = next
	}
	m.allStoriesHead, m.allStoriesTail = nil, nil
	m.gcCursor = nil
	m.history = make(map[*Tuple]*Story)
	m.pointHoles = make(map[pointHoleKey]*pointHoleItem)
	m.txns = make(map[uuid.UUID]*Transaction)
	m.readViewHead = nil
}

// fullUnlinkOnClose detaches every link a story holds, without the
// incremental GC's care about leaving a valid chain head behind.
func fullUnlinkOnClose(s *Story) {
	for i := range s.link {
		l := &s.link[i]
		l.readGapsHead = nil
		l.readGapsTail = nil
		l.newer = nil
		l.older = nil
		l.inIndex = false
	}
	for rt := s.readerHead; rt != nil; {
		next := rt.nextOnStory
		rt.prevOnStory, rt.nextOnStory = nil, nil
		rt = next
	}
	s.readerHead, s.readerTail = nil, nil
	s.addStmt = nil
	s.delStmt = nil
	s.tuple.dirty = false
}
