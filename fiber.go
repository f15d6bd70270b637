package txm

import "github.com/Astronomax/transaction-manager/internal/mvcc"

// Fiber is a minimal stand-in for the cooperative-fiber scheduling model
// this engine was designed around: a single slot carrying at most one open
// transaction. Go has no true cooperative fibers, so a Fiber is an ordinary
// value a caller creates once (typically one per goroutine or per inbound
// request) and threads through every Engine call.
//
// There is no implicit concurrency between fibers in the logical model —
// the Manager's mutex (see Engine) exists only to let real goroutines stand
// in for fibers safely, not to express genuine parallelism in the
// algorithm (SPEC_FULL.md §5, §9).
type Fiber struct {
	txn *mvcc.Transaction
}

// NewFiber returns a fiber with no open transaction.
func NewFiber() *Fiber {
	return &Fiber{}
}

// Current returns the fiber's open transaction, or nil.
func (f *Fiber) Current() *mvcc.Transaction {
	return f.txn
}
