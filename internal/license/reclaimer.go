// Package license implements the reservation return protocol for IDL
// licenses held by failed Generate runs.
//
// A run that checks out licenses records per-run reservation counts in the
// shared parameter store. When the run fails, those counts must be folded
// back into the dataset-scoped and floating pool counters, under a
// cooperative lock shared by every reclaimer working on the same prefix.
package license

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/podaac/generate-error-handler/internal/event"
	"github.com/podaac/generate-error-handler/pkg/paramstore"
)

// Kind identifies one of the three license pools a run can reserve from.
// The string value is the reservation key suffix used in the store.
type Kind string

const (
	// KindQuicklook covers dataset-scoped quicklook processing licenses.
	KindQuicklook Kind = "ql"

	// KindRefined covers dataset-scoped refined processing licenses.
	KindRefined Kind = "r"

	// KindFloating covers the floating pool shared across all datasets.
	KindFloating Kind = "floating"
)

// Lock flag values. These are a contract with the reservation producer,
// which writes the same strings.
const (
	lockHeld = "True"
	lockFree = "False"
)

// Outcome classifies what a reclamation attempt accomplished.
type Outcome string

const (
	// OutcomeReturned means reserved counts were merged back into the
	// pools and the per-run records deleted.
	OutcomeReturned Outcome = "returned"

	// OutcomeNothingToReturn means the run had no reservations on record.
	// No lock was taken and nothing was written.
	OutcomeNothingToReturn Outcome = "nothing_to_return"

	// OutcomeNotTracked means a pool counter or the lock flag was missing
	// from the store: the namespace is not provisioned for license
	// tracking, so there is nothing this handler can reconcile.
	OutcomeNotTracked Outcome = "not_tracked"

	// OutcomeContended means a counter update collided with another
	// concurrent reclaimer. The reservations remain recorded and will be
	// retried on a duplicate delivery or reconciled manually.
	OutcomeContended Outcome = "contended"
)

// Result reports the outcome of one reclamation and the per-kind counts
// actually returned, for audit logging.
type Result struct {
	Outcome   Outcome
	Quicklook int
	Refined   int
	Floating  int
}

// Store is the subset of parameter store operations the protocol needs.
// Implementations must return paramstore.ErrNotFound for missing parameters
// and paramstore.ErrTooManyUpdates for aborted counter updates, since the
// recovery policy is driven by those classifications.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
	GetInt(ctx context.Context, name string) (int, error)
	Put(ctx context.Context, name, value string) error
	PutTTL(ctx context.Context, name, value string, ttl time.Duration) error
	Add(ctx context.Context, name string, delta int) (int, error)
	Delete(ctx context.Context, names ...string) error
}

// Options tune the reclaimer's timing behavior. Zero values take defaults.
type Options struct {
	// PollInterval is how long to sleep between lock polls (default 3s).
	PollInterval time.Duration

	// LockTTL bounds how long a claimed lock can outlive its holder
	// (default 5m). A reclaimer killed mid-protocol leaves the flag to
	// expire instead of wedging the prefix.
	LockTTL time.Duration

	// Sleep is injectable for tests (default time.Sleep).
	Sleep func(time.Duration)
}

// Reclaimer returns reserved license counts to the shared pools.
type Reclaimer struct {
	store        Store
	logger       *log.Logger
	pollInterval time.Duration
	lockTTL      time.Duration
	sleep        func(time.Duration)
}

// NewReclaimer creates a reclaimer over the given store.
func NewReclaimer(store Store, logger *log.Logger, opts Options) *Reclaimer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Reclaimer{
		store:        store,
		logger:       logger,
		pollInterval: opts.PollInterval,
		lockTTL:      opts.LockTTL,
		sleep:        opts.Sleep,
	}
}

// Reclaim looks up the licenses reserved under id, waits for exclusive
// access to the prefix's pool counters, merges the reserved counts back,
// deletes the per-run records, and releases the lock.
//
// A non-nil error is fatal for the invocation. Recoverable store conditions
// (missing pool counters, write contention) are absorbed into the Result's
// Outcome instead.
//
// The lock is advisory and not atomic: observing it free and claiming it
// are two separate store round-trips, so two reclaimers can both get
// through on an unlucky interleaving. Duplicate deliveries and manual
// reconciliation backstop that race.
func (r *Reclaimer) Reclaim(ctx context.Context, id event.RunIdentity) (*Result, error) {
	// Step 1: read the per-run reservation counts. A missing record means
	// zero reserved of that kind, never an error.
	quicklook, err := r.reservedCount(ctx, id, KindQuicklook)
	if err != nil {
		return nil, err
	}
	refined, err := r.reservedCount(ctx, id, KindRefined)
	if err != nil {
		return nil, err
	}
	floating, err := r.reservedCount(ctx, id, KindFloating)
	if err != nil {
		return nil, err
	}

	// Step 2: nothing owed, nothing touched. Skipping the lock entirely
	// keeps no-op invocations from contending with real reclaimers.
	if quicklook == 0 && refined == 0 && floating == 0 {
		r.logger.Printf("[INFO] No licenses to return.")
		return &Result{Outcome: OutcomeNothingToReturn}, nil
	}

	// Steps 3-4: wait until no other reclaimer holds the prefix, then
	// claim it.
	lockKey := paramstore.LockKey(id.Prefix)
	for {
		val, err := r.store.Get(ctx, lockKey)
		if err != nil {
			return r.recover(ctx, "", err)
		}
		if val != lockHeld {
			break
		}
		r.logger.Printf("[INFO] Waiting for license retrieval...")
		if ctx.Err() != nil {
			return nil, fmt.Errorf("cancelled while waiting for license lock: %w", ctx.Err())
		}
		r.sleep(r.pollInterval)
	}

	if err := r.store.PutTTL(ctx, lockKey, lockHeld, r.lockTTL); err != nil {
		return r.recover(ctx, "", err)
	}
	r.logger.Printf("[INFO] Placed a hold on licenses...")

	// Step 5: merge reserved counts back into the pools. Dataset-scoped
	// kinds share one counter; floating has its own.
	datasetKey := paramstore.DatasetPoolKey(id.Prefix, id.Dataset)
	total, err := r.store.Add(ctx, datasetKey, quicklook+refined)
	if err != nil {
		return r.recover(ctx, lockKey, err)
	}
	r.logger.Printf("[INFO] Wrote %d license(s) to %s (now %d).", quicklook+refined, datasetKey, total)

	floatingKey := paramstore.FloatingPoolKey(id.Prefix)
	floatingTotal, err := r.store.Add(ctx, floatingKey, floating)
	if err != nil {
		return r.recover(ctx, lockKey, err)
	}
	r.logger.Printf("[INFO] Wrote %d license(s) to %s (now %d).", floating, floatingKey, floatingTotal)

	// Step 6: clear the per-run records. Absent keys are fine, so a
	// duplicate delivery that raced us deletes nothing.
	reservationKeys := []string{
		paramstore.ReservationKey(id.Prefix, id.Dataset, id.UniqueID, string(KindQuicklook)),
		paramstore.ReservationKey(id.Prefix, id.Dataset, id.UniqueID, string(KindRefined)),
		paramstore.ReservationKey(id.Prefix, id.Dataset, id.UniqueID, string(KindFloating)),
	}
	if err := r.store.Delete(ctx, reservationKeys...); err != nil {
		return r.recover(ctx, lockKey, err)
	}
	if quicklook != 0 {
		r.logger.Printf("[INFO] Deleted parameter: %s", reservationKeys[0])
	}
	if refined != 0 {
		r.logger.Printf("[INFO] Deleted parameter: %s", reservationKeys[1])
	}
	if floating != 0 {
		r.logger.Printf("[INFO] Deleted parameter: %s", reservationKeys[2])
	}

	// Step 7: release the lock.
	if err := r.store.Put(ctx, lockKey, lockFree); err != nil {
		return r.recover(ctx, lockKey, err)
	}
	r.logger.Printf("[INFO] Removed a hold on licenses...")

	return &Result{
		Outcome:   OutcomeReturned,
		Quicklook: quicklook,
		Refined:   refined,
		Floating:  floating,
	}, nil
}

// reservedCount reads the reservation record for one license kind.
// A missing record is zero reserved; any other failure propagates.
func (r *Reclaimer) reservedCount(ctx context.Context, id event.RunIdentity, kind Kind) (int, error) {
	key := paramstore.ReservationKey(id.Prefix, id.Dataset, id.UniqueID, string(kind))
	n, err := r.store.GetInt(ctx, key)
	if paramstore.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read reserved %s licenses: %w", kindLabel(kind), err)
	}
	r.logger.Printf("[INFO] Located %s %s: %d reserved licenses.", kindLabel(kind), key, n)
	return n, nil
}

// recover applies the store failure policy from the middle of the protocol.
// heldLock names the lock key when we claimed it and must release it before
// returning; empty means no lock is held.
//
// Missing parameters at this stage mean the namespace was never provisioned
// for license tracking; write contention means another reclaimer got there
// first. Both are logged and absorbed. Everything else is fatal.
func (r *Reclaimer) recover(ctx context.Context, heldLock string, err error) (*Result, error) {
	if heldLock != "" {
		if relErr := r.store.Put(ctx, heldLock, lockFree); relErr != nil {
			r.logger.Printf("[ERROR] Could not remove a hold on licenses: %v", relErr)
		} else {
			r.logger.Printf("[INFO] Removed a hold on licenses...")
		}
	}

	switch {
	case paramstore.IsNotFound(err):
		r.logger.Printf("[ERROR] %v", err)
		r.logger.Printf("[INFO] No licenses were tracked in the parameter store for this execution.")
		return &Result{Outcome: OutcomeNotTracked}, nil
	case paramstore.IsTooManyUpdates(err):
		r.logger.Printf("[ERROR] %v", err)
		r.logger.Printf("[INFO] Trying to update the parameter store at the same time as another handler.")
		return &Result{Outcome: OutcomeContended}, nil
	default:
		return nil, fmt.Errorf("failed to restore reserved licenses: %w", err)
	}
}

// kindLabel returns the human-readable name for a license kind used in logs.
func kindLabel(kind Kind) string {
	switch kind {
	case KindQuicklook:
		return "quicklook dataset"
	case KindRefined:
		return "refined dataset"
	case KindFloating:
		return "floating"
	default:
		return string(kind)
	}
}
