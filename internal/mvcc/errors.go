package mvcc

import "errors"

// Sentinel errors returned by the history engine. Callers should compare
// with errors.Is, since these are wrapped with context via fmt.Errorf.
var (
	// ErrDuplicateKey is returned when a statement would bind a key that is
	// already visibly bound to a different tuple.
	ErrDuplicateKey = errors.New("mvcc: duplicate key")

	// ErrMissingReplace is returned when a replace-only statement finds
	// nothing visible to replace.
	ErrMissingReplace = errors.New("mvcc: nothing to replace")

	// ErrTxnNotContinuable is returned when a new statement is attempted on
	// a transaction that is already Aborted or Committed.
	ErrTxnNotContinuable = errors.New("mvcc: transaction not continuable")

	// ErrTxnNotCompletable is returned when Commit is attempted on a
	// transaction that has already been rolled back or committed.
	ErrTxnNotCompletable = errors.New("mvcc: transaction not completable")

	// ErrTxnConflict marks a transaction aborted by a concurrent committer.
	ErrTxnConflict = errors.New("mvcc: transaction aborted due to conflict")
)
