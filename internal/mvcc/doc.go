// Package mvcc implements the transaction history engine described in
// SPEC_FULL.md components A through I: per-tuple version chains ("stories"),
// the in-progress/prepared/committed/rolled-back statement lifecycle,
// visibility rules, read/gap tracking, and an incremental garbage collector.
//
// The package treats a row's payload as opaque (*Tuple) and a secondary
// index as an unordered unique map (*Index). Everything else here is the
// bookkeeping that makes snapshot isolation and conflict detection work on
// top of that map without ever copying the whole table.
//
// None of this package logs; logging lives one layer up, in gcsched and
// cmd/txnserver, matching the teacher's separation between storage internals
// and the binaries that operate them.
package mvcc
