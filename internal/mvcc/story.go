package mvcc

// RolledBackPSN marks a story's DelPSN once its adding statement has been
// rolled back all the way to the chain tail: it is strictly below MinPSN so
// no visibility check ever treats it as a real prepare PSN, yet it is
// nonzero so DeleteVisible treats the story as always-deleted.
const RolledBackPSN uint64 = 1

// MinPSN is the first PSN ever handed out by Transaction.Commit; PSN 0 and 1 are
// reserved (0 means "unassigned", 1 means "rolled back").
const MinPSN uint64 = 2

// StoryStatus classifies a story for the garbage collector (see gc.go).
type StoryStatus int

const (
	StoryUnset StoryStatus = iota
	StoryUsed
	StoryReadView
	StoryTrackGap
)

// storyLink is one index's chain slot on a Story: Newer/Older make it a node
// in a doubly linked, newest-to-oldest chain; ReadGaps anchors the inplace
// gap items recorded while this story was (or is) the chain head; InIndex
// is true iff this story's Tuple is the one currently bound in the index.
type storyLink struct {
	newer *Story
	older *Story

	readGapsHead *gapItem
	readGapsTail *gapItem

	inIndex bool
}

// Story is one version record: the spine of the whole engine. A story is
// created either by an INSERT/REPLACE statement or, lazily, the first time
// an already-bound tuple is read under MVCC (see TrackRead).
type Story struct {
	tuple *Tuple
	space *Space

	addStmt *Statement
	delStmt *Statement // head of the in-progress deleter list, via Statement.NextInDelList

	addPSN uint64
	delPSN uint64

	readerHead *ReadTracker
	readerTail *ReadTracker

	link       []storyLink
	indexCount int

	status StoryStatus

	// mgr-intrusive AllStories list.
	mgrPrev *Story
	mgrNext *Story
}

// Tuple returns the row value this version represents.
func (s *Story) Tuple() *Tuple { return s.tuple }

// AddPSN returns the PSN at which this version's insertion became visible
// to new readers (0 while the adding statement is still in-progress).
func (s *Story) AddPSN() uint64 { return s.addPSN }

// DelPSN returns the PSN at which this version's deletion became visible
// (0 if never deleted; RolledBackPSN if its insertion was rolled back).
func (s *Story) DelPSN() uint64 { return s.delPSN }

// NewStory allocates a story for tuple over a space's indexes and marks the
// tuple dirty. It does not link the story into any chain or history map;
// callers (AddStmt, TrackRead) do that.
func NewStory(space *Space, tuple *Tuple) *Story {
	n := space.IndexCount()
	s := &Story{
		tuple:      tuple,
		space:      space,
		indexCount: n,
		link:       make([]storyLink, n),
	}
	tuple.dirty = true
	return s
}

// Delete requires the story to be fully detached from statements, readers
// and chains; it exists as a precondition check the GC calls right before
// dropping its last reference. Any lingering link is an invariant
// violation: something in the engine forgot to unlink before calling this.
func (s *Story) Delete() {
	if s.addStmt != nil || s.delStmt != nil || s.readerHead != nil {
		panic("mvcc: story.Delete called while still referenced by a statement or reader")
	}
	for i := range s.link {
		l := &s.link[i]
		if l.readGapsHead != nil || l.newer != nil || l.older != nil {
			panic("mvcc: story.Delete called while chain links remain")
		}
	}
	s.tuple.dirty = false
}

// link sets story's older pointer on index idx to older, and (if older is
// non-nil) sets older's newer pointer back to story. It does not touch
// story's own newer pointer nor the physical index binding — callers
// (LinkTop, Reorder) compose it with those separately.
func link(story, older *Story, idx int) {
	story.link[idx].older = older
	if older != nil {
		older.link[idx].newer = story
	}
}

// unlink splices story out of the chain at index idx, reconnecting its
// former neighbors, and clears story's own pointers on that index.
func unlink(story *Story, idx int) {
	l := &story.link[idx]
	older := l.older
	newer := l.newer
	if newer != nil {
		newer.link[idx].older = older
	}
	if older != nil {
		older.link[idx].newer = newer
	}
	l.older = nil
	l.newer = nil
}

// migrateReadGaps moves every inplace gap item from the old chain head's
// link to the new chain head's link, preserving invariant 3 ("ReadGaps for
// a chain is accumulated only on the current head").
func migrateReadGaps(from, to *storyLink) {
	if from.readGapsHead == nil {
		return
	}
	for g := from.readGapsHead; g != nil; g = g.nextOnChain {
		g.onLink = to
	}
	if to.readGapsHead == nil {
		to.readGapsHead = from.readGapsHead
		to.readGapsTail = from.readGapsTail
	} else {
		to.readGapsTail.nextOnChain = from.readGapsHead
		from.readGapsHead.prevOnChain = to.readGapsTail
		to.readGapsTail = from.readGapsTail
	}
	from.readGapsHead = nil
	from.readGapsTail = nil
}

// LinkTop attaches newTop as the chain head on index idx. When isNewTuple is
// false (reorder and rollback-to-tail callers), it first performs the
// physical swap index.Replace(oldTop.Tuple, newTop.Tuple, DupReplace) — a
// failure here means the chain-head/index invariant was already broken and
// is fatal. It always migrates ReadGaps from the old head and flips
// inIndex.
func LinkTop(space *Space, newTop, oldTop *Story, idx int, isNewTuple bool) {
	if !isNewTuple {
		var oldTuple *Tuple
		if oldTop != nil {
			oldTuple = oldTop.tuple
		}
		if _, err := space.Indexes[idx].Replace(oldTuple, newTop.tuple, DupReplace); err != nil {
			panic("mvcc: fatal: LinkTop physical replace failed, chain-head invariant violated: " + err.Error())
		}
	}
	if oldTop != nil {
		migrateReadGaps(&oldTop.link[idx], &newTop.link[idx])
		oldTop.link[idx].inIndex = false
	}
	link(newTop, oldTop, idx)
	newTop.link[idx].inIndex = true
}

// Reorder swaps story with its current immediate older neighbor x on index
// idx. If story is currently the chain head, the swap changes which story
// is bound in the index, so it delegates to LinkTop to keep invariants 2
// and 3 intact.
func Reorder(space *Space, story, x *Story, idx int) {
	above := story.link[idx].newer // nil iff story is currently head
	below := x.link[idx].older

	if above == nil {
		x.link[idx].newer = nil
		LinkTop(space, x, story, idx, false)
	} else {
		link(above, x, idx)
		link(x, story, idx)
	}
	link(story, below, idx)
}
