package txm

import "errors"

// ErrNoTransaction is returned when a statement is attempted on a fiber
// with no open transaction.
var ErrNoTransaction = errors.New("txm: no open transaction on this fiber")

// ErrTransactionOpen is returned by Begin when the fiber already has one.
var ErrTransactionOpen = errors.New("txm: fiber already has an open transaction")

// ErrSpaceExists is returned by Catalog.CreateSpace for a duplicate name.
var ErrSpaceExists = errors.New("txm: space already registered")

// ErrSpaceNotFound names the unregistered-space condition. No function in
// this package returns it; Catalog.Space reports a missing name through its
// boolean result.
var ErrSpaceNotFound = errors.New("txm: space not found")

// ErrKeyNotFound is returned by Delete when the key has no visible binding.
var ErrKeyNotFound = errors.New("txm: key not found")
