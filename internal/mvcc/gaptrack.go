package mvcc

import "github.com/google/uuid"

// gapItem is an inplace gap: a transaction read a specific chain head and
// found nothing older visible. It lives on two intrusive lists: the chain
// head's ReadGaps (onLink) and the owning transaction's GapList.
type gapItem struct {
	txn *Transaction

	onLink                   *storyLink
	prevOnChain, nextOnChain *gapItem

	prevOnTxn, nextOnTxn *gapItem
}

// AddInplaceGap records that t read the chain whose head owns link and found
// nothing older than that head visible, prepending a gapItem to both the
// link's ReadGaps and t's GapList.
func AddInplaceGap(t *Transaction, link *storyLink) {
	g := &gapItem{txn: t, onLink: link}

	g.nextOnChain = link.readGapsHead
	if link.readGapsHead != nil {
		link.readGapsHead.prevOnChain = g
	} else {
		link.readGapsTail = g
	}
	link.readGapsHead = g

	g.nextOnTxn = t.gapListHead
	if t.gapListHead != nil {
		t.gapListHead.prevOnTxn = g
	}
	t.gapListHead = g
}

func removeGapFromChain(g *gapItem) {
	l := g.onLink
	if g.prevOnChain != nil {
		g.prevOnChain.nextOnChain = g.nextOnChain
	} else if l != nil {
		l.readGapsHead = g.nextOnChain
	}
	if g.nextOnChain != nil {
		g.nextOnChain.prevOnChain = g.prevOnChain
	} else if l != nil {
		l.readGapsTail = g.prevOnChain
	}
	g.prevOnChain = nil
	g.nextOnChain = nil
}

func removeGapFromTxn(t *Transaction, g *gapItem) {
	if g.prevOnTxn != nil {
		g.prevOnTxn.nextOnTxn = g.nextOnTxn
	} else {
		t.gapListHead = g.nextOnTxn
	}
	if g.nextOnTxn != nil {
		g.nextOnTxn.prevOnTxn = g.prevOnTxn
	}
	g.prevOnTxn = nil
	g.nextOnTxn = nil
}

// abortGapReaders aborts-with-conflict every transaction holding an inplace
// gap on link, except exclude.
func abortGapReaders(link *storyLink, exclude *Transaction) {
	for g := link.readGapsHead; g != nil; {
		next := g.nextOnChain
		if g.txn != exclude {
			AbortWithConflict(g.txn)
		}
		g = next
	}
}

// sendGapReadersToReadView demotes every gap reader on link to a read view
// at psn, except exclude.
func sendGapReadersToReadView(link *storyLink, psn uint64, exclude *Transaction) {
	for g := link.readGapsHead; g != nil; g = g.nextOnChain {
		if g.txn != exclude {
			SendToReadView(g.txn, psn)
		}
	}
}

// pointHoleKey identifies an empty-chain probe: a specific key that had
// nothing bound in a specific index at probe time.
type pointHoleKey struct {
	indexID uuid.UUID
	key     int64
}

// pointHoleItem is one transaction's record of having probed an empty slot.
// Multiple transactions probing the same (index, key) share a ring; exactly
// one ring member is the "head" anchored in Manager.pointHoles.
type pointHoleItem struct {
	indexID uuid.UUID
	key     int64
	txn     *Transaction

	ringPrev, ringNext *pointHoleItem
	isHead             bool

	prevOnTxn, nextOnTxn *pointHoleItem
}

func prependPointHoleOnTxn(t *Transaction, item *pointHoleItem) {
	item.nextOnTxn = t.pointHolesHead
	if t.pointHolesHead != nil {
		t.pointHolesHead.prevOnTxn = item
	}
	t.pointHolesHead = item
}

func removePointHoleFromTxn(t *Transaction, item *pointHoleItem) {
	if item.prevOnTxn != nil {
		item.prevOnTxn.nextOnTxn = item.nextOnTxn
	} else {
		t.pointHolesHead = item.nextOnTxn
	}
	if item.nextOnTxn != nil {
		item.nextOnTxn.prevOnTxn = item.prevOnTxn
	}
	item.prevOnTxn = nil
	item.nextOnTxn = nil
}

// RecordPointHole records that t probed (indexID, key) and found it empty.
// Point-hole tracking is skipped for transactions that are not InProgress,
// per spec §4.E.
func (m *Manager) RecordPointHole(t *Transaction, indexID uuid.UUID, key int64) {
	if t.Status != StatusInProgress {
		return
	}
	k := pointHoleKey{indexID, key}
	item := &pointHoleItem{indexID: indexID, key: key, txn: t}

	head, ok := m.pointHoles[k]
	if !ok {
		item.isHead = true
		item.ringPrev = item
		item.ringNext = item
		m.pointHoles[k] = item
	} else {
		item.ringNext = head.ringNext
		item.ringPrev = head
		head.ringNext.ringPrev = item
		head.ringNext = item
	}
	prependPointHoleOnTxn(t, item)
}

// deletePointHole removes item from its ring and, if it is currently the
// hash-anchored head, promotes a ring neighbor (or drops the slot entirely
// if item was alone).
func (m *Manager) deletePointHole(item *pointHoleItem) {
	k := pointHoleKey{item.indexID, item.key}
	removePointHoleFromTxn(item.txn, item)

	if item.ringNext == item {
		if item.isHead {
			delete(m.pointHoles, k)
		}
		return
	}

	item.ringPrev.ringNext = item.ringNext
	item.ringNext.ringPrev = item.ringPrev
	if item.isHead {
		newHead := item.ringNext
		newHead.isHead = true
		m.pointHoles[k] = newHead
	}
	item.ringPrev = nil
	item.ringNext = nil
}

// DrainPointHoles removes every point-hole item recorded for (indexID, key)
// and, for each one's transaction, attaches an inplace gap to newHead's link
// on index idx instead — the probing transactions now have a real chain
// head to anchor their gap against.
func (m *Manager) DrainPointHoles(indexID uuid.UUID, key int64, newHead *Story, idx int) {
	k := pointHoleKey{indexID, key}
	head, ok := m.pointHoles[k]
	if !ok {
		return
	}
	cur := head
	for {
		next := cur.ringNext
		sameNode := next == cur
		AddInplaceGap(cur.txn, &newHead.link[idx])
		removePointHoleFromTxn(cur.txn, cur)
		if sameNode {
			break
		}
		cur = next
	}
	delete(m.pointHoles, k)
}
