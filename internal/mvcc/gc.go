package mvcc

import "github.com/samber/lo"

// scheduleGC records that GCStepsSize more incremental steps are owed,
// to be drained at the next GC opportunity (not this one). Those steps
// follow the cursor, so they may reach the story that triggered them.
func (m *Manager) scheduleGC() {
	m.pendingGCSteps += m.gcStepsSize
}

// gcOpportunity drains every currently pending step. Statement lifecycle
// entry points (AddStmt, CommitStmt) call this; it is also what "GC step."
// means in SPEC_FULL.md's AddStmt/CommitStmt algorithms.
func (m *Manager) gcOpportunity() {
	steps := m.pendingGCSteps
	m.pendingGCSteps = 0
	for i := 0; i < steps; i++ {
		m.gcStep()
	}
}

// ForceGCSteps runs n steps regardless of pendingGCSteps, for the scheduled
// maintenance sweep (gcsched) to force convergence on a quiescent engine.
// It returns how many stories were actually reclaimed.
func (m *Manager) ForceGCSteps(n int) int {
	reclaimed := 0
	for i := 0; i < n; i++ {
		if m.gcStep() {
			reclaimed++
		}
	}
	return reclaimed
}

// ActiveStoryCount returns the number of stories currently tracked —
// exposed for the scheduler's diagnostic log line.
func (m *Manager) ActiveStoryCount() int {
	count := 0
	for s := m.allStoriesHead; s != nil; s = s.mgrNext {
		count++
	}
	return count
}

// collectibleStatuses is a GC diagnostics helper: given a slice of
// already-classified stories, return just the ones judged unreachable.
// Neither the GC loop nor gcsched calls it.
func collectibleStatuses(statuses []StoryStatus) []StoryStatus {
	return lo.Filter(statuses, func(s StoryStatus, _ int) bool {
		return s == StoryUnset
	})
}

// gcStep runs one step of the incremental, cursor-based collector and
// reports whether it reclaimed a story.
//
// 1. If the cursor is at the AllStories sentinel (nil), advance it to the
//    head and return — an idle tick.
// 2. Otherwise examine the story at the cursor, advance the cursor, and
//    classify it by status priority (earliest wins): USED if still
//    referenced by a statement or a reader; READ_VIEW if either PSN is at
//    or above the lowest active read view; USED if removing it would
//    leave a chain head unbound at the index (no older sibling yet); USED
//    if a secondary-index newer neighbor still has a live adder
//    (prevents losing a committed tuple a prepared sibling still depends
//    on); TRACK_GAP if it still anchors any inplace gaps. Anything left is
//    unreachable and is physically reclaimed.
func (m *Manager) gcStep() bool {
	if m.gcCursor == nil {
		m.gcCursor = m.allStoriesHead
		return false
	}

	s := m.gcCursor
	m.gcCursor = s.mgrNext

	lowestRV := m.lowestReadViewPSN()
	status := classifyStory(s, lowestRV)
	s.status = status

	if status != StoryUnset {
		return false
	}

	m.reclaim(s)
	return true
}

func classifyStory(s *Story, lowestRVPSN uint64) StoryStatus {
	if s.addStmt != nil || s.delStmt != nil || s.readerHead != nil {
		return StoryUsed
	}
	if s.addPSN >= lowestRVPSN || s.delPSN >= lowestRVPSN {
		return StoryReadView
	}
	for i := range s.link {
		l := &s.link[i]
		if l.newer == nil && l.older != nil {
			return StoryUsed
		}
		if i > 0 && l.newer != nil && l.newer.addStmt != nil {
			return StoryUsed
		}
	}
	for i := range s.link {
		if s.link[i].readGapsHead != nil {
			return StoryTrackGap
		}
	}
	return StoryUnset
}

// reclaim physically removes s: for each index where s is the (now
// unreferenced) head, it unbinds the tuple from the index if the deletion
// was committed (DelPSN > 0); otherwise it simply splices s out of the
// chain. Finally it drops s from History, clears its tuple's dirty flag,
// and detaches it from AllStories.
func (m *Manager) reclaim(s *Story) {
	for i := range s.link {
		l := &s.link[i]
		if l.inIndex && s.delPSN > 0 {
			if _, err := s.space.Indexes[i].Replace(s.tuple, nil, DupReplaceOrInsert); err != nil {
				panic("mvcc: fatal: GC failed to unbind a dead chain head: " + err.Error())
			}
			l.inIndex = false
		}
		unlink(s, i)
	}

	m.removeFromHistory(s.tuple)
	m.removeFromAllStories(s)
	s.Delete()
}
