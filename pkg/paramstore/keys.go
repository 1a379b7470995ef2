package paramstore

import "fmt"

// Parameter key helpers
//
// Key names are a contract shared with the external reservation producer:
// the process that checks licenses out writes these exact keys before a job
// runs, and the error handler folds them back on failure. Changing any
// pattern here breaks interoperability with already-deployed producers.

// ReservationKey returns the key holding the number of licenses of one kind
// reserved by a single run.
// Pattern: {prefix}-idl-{dataset}-{uniqueId}-{kind}
func ReservationKey(prefix, dataset, uniqueID, kind string) string {
	return fmt.Sprintf("%s-idl-%s-%s-%s", prefix, dataset, uniqueID, kind)
}

// DatasetPoolKey returns the key holding the count of available
// dataset-scoped licenses.
// Pattern: {prefix}-idl-{dataset}
func DatasetPoolKey(prefix, dataset string) string {
	return fmt.Sprintf("%s-idl-%s", prefix, dataset)
}

// FloatingPoolKey returns the key holding the count of available floating
// licenses shared across all datasets under a prefix.
// Pattern: {prefix}-idl-floating
func FloatingPoolKey(prefix string) string {
	return fmt.Sprintf("%s-idl-floating", prefix)
}

// LockKey returns the key holding the "True"/"False" flag that marks a
// reclamation in progress for a prefix. All datasets under the prefix share
// this one flag.
// Pattern: {prefix}-idl-retrieving-license
func LockKey(prefix string) string {
	return fmt.Sprintf("%s-idl-retrieving-license", prefix)
}
