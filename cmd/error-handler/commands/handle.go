package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/podaac/generate-error-handler/internal/config"
	"github.com/podaac/generate-error-handler/internal/event"
	"github.com/podaac/generate-error-handler/internal/handler"
	"github.com/podaac/generate-error-handler/internal/license"
	"github.com/podaac/generate-error-handler/internal/notify"
	"github.com/podaac/generate-error-handler/internal/printer"
	"github.com/podaac/generate-error-handler/pkg/paramstore"
)

var handleEventPath string

var handleCmd = &cobra.Command{
	Use:   "handle",
	Short: "Process one batch-job failure event",
	Long: `Process a single failure event: log it, alert operators, and return
the failed run's license reservations to the shared pools.

The event JSON is read from --event (or stdin with "-"). Connection
settings come from REDIS_URL and TOPIC; optional tunables from a YAML
file named by ERROR_HANDLER_CONFIG.

Examples:
  # Handle an event delivered as a file
  error-handler handle --event /tmp/failure.json

  # Handle an event piped from the event source
  cat failure.json | error-handler handle --event -`,
	RunE: runHandle,
}

func init() {
	handleCmd.Flags().StringVarP(&handleEventPath, "event", "e", "-", `Path to the failure event JSON ("-" reads stdin)`)
	rootCmd.AddCommand(handleCmd)
}

func runHandle(cmd *cobra.Command, args []string) error {
	// The host enforces a wall-clock budget and kills the invocation with
	// a signal; cancelling the context lets the reclaimer stop polling
	// instead of dying mid-sleep.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return printer.Error(
			"configuration error",
			err.Error(),
			[]string{
				"Set REDIS_URL to the parameter store connection string and TOPIC to the alert topic substring.",
				"Point ERROR_HANDLER_CONFIG at a YAML tunables file to override timing defaults.",
			},
		)
	}

	ev, err := readEvent(handleEventPath)
	if err != nil {
		return printer.Error("invalid failure event", err.Error(), nil)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return printer.Error("invalid REDIS_URL", err.Error(), nil)
	}

	store := paramstore.NewClient(redisOpts)
	defer store.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = store.Ping(pingCtx)
	cancel()
	if err != nil {
		return printer.Error("cannot reach parameter store", err.Error(), nil)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	notifier := notify.NewNotifier(store, cfg.Topic, logger)
	reclaimer := license.NewReclaimer(store, logger, license.Options{
		PollInterval: cfg.PollInterval,
		LockTTL:      cfg.LockTTL,
	})

	h := handler.New(cfg, notifier, reclaimer, logger, handler.Options{})
	if err := h.Handle(ctx, ev); err != nil {
		return printer.Error("failure event was not fully handled", err.Error(), nil)
	}

	printer.Success("Failure event handled.\n")
	return nil
}

// readEvent loads and parses the failure event JSON from a file or stdin.
func readEvent(path string) (*event.FailureEvent, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}

	var ev event.FailureEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse event JSON: %w", err)
	}
	return &ev, nil
}
