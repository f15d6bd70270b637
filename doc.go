// Package txm is the public surface of the transaction manager: an
// in-memory, snapshot-isolated row store with secondary indexes built on
// top of internal/mvcc's version-chain engine.
//
// # Basic usage
//
//	eng := txm.NewEngine(txm.DefaultConfig())
//	sp, _ := eng.Catalog().CreateSpace("accounts", primaryKey)
//	fiber := txm.NewFiber()
//
//	eng.Begin(fiber)
//	eng.Insert(fiber, sp, mvcc.NewTuple(42))
//	eng.Commit(fiber)
//
// # Transactions
//
// Every mutating call takes a *Fiber, a small per-caller handle standing in
// for the cooperative-fiber scheduling model the engine was designed
// around (see SPEC_FULL.md §5 and §9). A fiber may have at most one open
// transaction at a time; Begin fails otherwise.
//
// # Background maintenance
//
// txm.Engine does not, by itself, run any goroutines. Pair it with
// internal/gcsched.Scheduler to force periodic garbage-collection sweeps on
// an otherwise quiescent engine.
package txm
