// Package handler orchestrates one error-handler invocation: interpret the
// failure event, report it, back off, and reclaim the run's licenses.
package handler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/podaac/generate-error-handler/internal/config"
	"github.com/podaac/generate-error-handler/internal/event"
	"github.com/podaac/generate-error-handler/internal/license"
	"github.com/podaac/generate-error-handler/pkg/paramstore"
)

// Notifier is the alerting surface the handler reports failures to.
// Satisfied by *notify.Notifier.
type Notifier interface {
	PublishFailure(ctx context.Context, ev *event.FailureEvent, errorMessage, logStream string) error
}

// Reclaimer is the license return protocol. Satisfied by *license.Reclaimer.
type Reclaimer interface {
	Reclaim(ctx context.Context, id event.RunIdentity) (*license.Result, error)
}

// Options tune handler behavior. Zero values take defaults.
type Options struct {
	// Sleep is injectable for tests (default time.Sleep).
	Sleep func(time.Duration)
}

// Handler processes one failure event end to end.
type Handler struct {
	cfg       *config.Config
	notifier  Notifier
	reclaimer Reclaimer
	logger    *log.Logger
	sleep     func(time.Duration)
}

// New creates a handler.
func New(cfg *config.Config, notifier Notifier, reclaimer Reclaimer, logger *log.Logger, opts Options) *Handler {
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Handler{
		cfg:       cfg,
		notifier:  notifier,
		reclaimer: reclaimer,
		logger:    logger,
		sleep:     opts.Sleep,
	}
}

// Handle runs the full invocation. A non-nil error means the invocation
// must be recorded as failed (process exits non-zero).
//
// Notification delivery does not gate reclamation: a publish failure is
// recorded, reclamation still runs, and the failure surfaces at the end so
// licenses are never stranded by a broken alert topic.
func (h *Handler) Handle(ctx context.Context, ev *event.FailureEvent) error {
	invocation := uuid.New().String()

	interp, err := event.Interpret(ev)
	if err != nil {
		h.logger.Printf("[ERROR] invocation=%s %v", invocation, err)
		return err
	}

	h.logEvent(invocation, ev, interp)

	var publishErr error
	if err := h.notifier.PublishFailure(ctx, ev, interp.ErrorMessage, interp.LogStream); err != nil {
		publishErr = err
		h.logger.Printf("[ERROR] invocation=%s Failed to publish failure notification: %v", invocation, err)
	}

	// Spread out concurrent handlers before they contend on the shared
	// lock. Seeded from the job id, so a duplicate delivery of the same
	// failure backs off identically.
	delay := license.Jitter(ev.Detail.JobID, h.cfg.JitterMin, h.cfg.JitterMax)
	h.logger.Printf("[INFO] invocation=%s Sleeping for %s.", invocation, delay)
	h.sleep(delay)

	result, err := h.reclaimer.Reclaim(ctx, interp.Identity)
	if err != nil {
		h.logger.Printf("[ERROR] invocation=%s %v", invocation, err)
		return err
	}

	h.logFinal(invocation, ev, interp, result)

	if publishErr != nil {
		return fmt.Errorf("failure notification was not delivered: %w", publishErr)
	}
	return nil
}

// logEvent records the interpreted failure, field by field.
func (h *Handler) logEvent(invocation string, ev *event.FailureEvent, interp *event.Interpretation) {
	id := interp.Identity
	h.logger.Printf("[INFO] invocation=%s Failed job environment: %s", invocation, event.Environment(id.Prefix))
	h.logger.Printf("[INFO] invocation=%s Failed job account: %s", invocation, ev.Account)
	h.logger.Printf("[INFO] invocation=%s Failed job queue: %s", invocation, ev.Detail.JobQueue)
	h.logger.Printf("[INFO] invocation=%s Failed job name: %s", invocation, ev.Detail.JobName)
	h.logger.Printf("[INFO] invocation=%s Failed job id: %s", invocation, ev.Detail.JobID)
	if interp.LogStream != "" {
		h.logger.Printf("[INFO] invocation=%s Failed job log stream: %s", invocation, interp.LogStream)
	}
	h.logger.Printf("[INFO] invocation=%s Failed job unique identifier: %s", invocation, id.UniqueID)
	h.logger.Printf("[INFO] invocation=%s Failed job dataset: %s", invocation, h.cfg.DatasetDisplayName(id.Dataset))
	h.logger.Printf("[INFO] invocation=%s Failed job container command: %v", invocation, ev.Detail.Container.Command)
	h.logger.Printf("[INFO] invocation=%s Failed job error message: '%s'", invocation, interp.ErrorMessage)
}

// logFinal emits the single audit line operators grep for: the execution
// summary plus the per-kind license keys and counts actually returned.
func (h *Handler) logFinal(invocation string, ev *event.FailureEvent, interp *event.Interpretation, result *license.Result) {
	id := interp.Identity

	located := func(count int, kind license.Kind) string {
		if count == 0 {
			return "None"
		}
		return paramstore.ReservationKey(id.Prefix, id.Dataset, id.UniqueID, string(kind))
	}

	summary := fmt.Sprintf("failed_job_environment: %s - failed_job_account: %s - failed_job_queue: %s - failed_job_name: %s - failed_job_id: %s - ",
		event.Environment(id.Prefix), ev.Account, ev.Detail.JobQueue, ev.Detail.JobName, ev.Detail.JobID)
	if interp.LogStream != "" {
		summary += fmt.Sprintf("failed_job_logstream: %s - ", interp.LogStream)
	}
	summary += fmt.Sprintf("failed_job_unique_id: %s - failed_job_dataset: %s - failed_job_command: %v - failed_job_error_message: %s",
		id.UniqueID, h.cfg.DatasetDisplayName(id.Dataset), ev.Detail.Container.Command, interp.ErrorMessage)

	summary += fmt.Sprintf(" - reclaim_outcome: %s", result.Outcome)
	summary += fmt.Sprintf(" - floating_idl_located: %s - floating_idl_located_number: %d", located(result.Floating, license.KindFloating), result.Floating)
	summary += fmt.Sprintf(" - dataset_quicklook_idl_located: %s - dataset_quicklook_idl_located_number: %d", located(result.Quicklook, license.KindQuicklook), result.Quicklook)
	summary += fmt.Sprintf(" - dataset_refined_idl_located: %s - dataset_refined_idl_located_number: %d", located(result.Refined, license.KindRefined), result.Refined)

	h.logger.Printf("[INFO] invocation=%s final_log: %s", invocation, summary)
}
