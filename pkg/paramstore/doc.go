// Package paramstore provides a typed client for the shared parameter store
// that tracks IDL license state for the Generate workflow.
//
// # Overview
//
// The parameter store is the central shared state between the (external)
// license reservation process, the Generate processing jobs, and this error
// handler. Every parameter is a plain string value under a well-known key;
// integer counters are string-encoded. The store is backed by Redis, and all
// key names follow the contract established by the reservation producer, so
// they must never change shape (see keys.go).
//
// # Error Classification
//
// Callers distinguish three store failure classes:
//
//   - ErrNotFound: the named parameter does not exist. Depending on context
//     this is "zero licenses reserved" or "namespace not provisioned".
//   - ErrTooManyUpdates: another writer modified a counter mid-update. The
//     read-modify-write in Add is optimistic; a concurrent write aborts it.
//   - anything else: transport or server failure, fatal for the invocation.
//
// Use IsNotFound and IsTooManyUpdates rather than comparing errors directly.
//
// # Key Schema
//
// Per-run reservation records: {prefix}-idl-{dataset}-{uniqueId}-{ql|r|floating}
// Dataset pool counter:        {prefix}-idl-{dataset}
// Floating pool counter:       {prefix}-idl-floating
// Reclamation lock flag:       {prefix}-idl-retrieving-license
package paramstore
