package handler

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podaac/generate-error-handler/internal/config"
	"github.com/podaac/generate-error-handler/internal/event"
	"github.com/podaac/generate-error-handler/internal/license"
	"github.com/podaac/generate-error-handler/internal/notify"
	"github.com/podaac/generate-error-handler/pkg/paramstore"
)

func testConfig(redisURL string) *config.Config {
	return &config.Config{
		RedisURL:            redisURL,
		Topic:               "alerts",
		PollInterval:        time.Millisecond,
		LockTTL:             time.Minute,
		JitterMin:           2 * time.Second,
		JitterMax:           2 * time.Second,
		Datasets:            event.DefaultDatasetNames,
		FallbackDatasetName: event.FallbackDatasetName,
	}
}

func testEvent() *event.FailureEvent {
	return &event.FailureEvent{
		Account: "123456789012",
		Detail: event.Detail{
			JobName:      "gen-prod-aqua-modis-01",
			JobID:        "9f3c2a1e",
			JobQueue:     "queue-gen-prod-aqua",
			StatusReason: "Essential container in task exited",
			Container: event.Container{
				Command: []string{"proc.sh", "--input", "/data/run_abc123.json"},
			},
		},
	}
}

// setupHandler wires a real store, reclaimer, and notifier over miniredis.
// The returned sleeps slice records every backoff the handler requested.
func setupHandler(t *testing.T, mr *miniredis.Miniredis) (*Handler, *[]time.Duration) {
	store := paramstore.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { store.Close() })

	logger := log.New(io.Discard, "", 0)
	cfg := testConfig("redis://" + mr.Addr())

	var sleeps []time.Duration
	noop := func(time.Duration) {}

	h := New(
		cfg,
		notify.NewNotifier(store, cfg.Topic, logger),
		license.NewReclaimer(store, logger, license.Options{
			PollInterval: cfg.PollInterval,
			LockTTL:      cfg.LockTTL,
			Sleep:        noop,
		}),
		logger,
		Options{Sleep: func(d time.Duration) { sleeps = append(sleeps, d) }},
	)
	return h, &sleeps
}

// subscribeAlerts attaches a live subscriber so the notifier can resolve
// the alert topic, and returns its message channel.
func subscribeAlerts(t *testing.T, mr *miniredis.Miniredis, channel string) <-chan *redis.Message {
	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { sub.Close() })

	pubsub := sub.Subscribe(context.Background(), channel)
	t.Cleanup(func() { pubsub.Close() })
	_, err := pubsub.Receive(context.Background())
	require.NoError(t, err)

	return pubsub.Channel()
}

func seedScenario(t *testing.T, mr *miniredis.Miniredis) {
	require.NoError(t, mr.Set("gen-prod-aqua-idl-aqua-abc123-ql", "2"))
	require.NoError(t, mr.Set("gen-prod-aqua-idl-aqua-abc123-r", "1"))
	require.NoError(t, mr.Set("gen-prod-aqua-idl-aqua", "5"))
	require.NoError(t, mr.Set("gen-prod-aqua-idl-floating", "3"))
	require.NoError(t, mr.Set("gen-prod-aqua-idl-retrieving-license", "False"))
}

func TestHandleEndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	seedScenario(t, mr)
	msgs := subscribeAlerts(t, mr, "generate-alerts-ops")
	h, sleeps := setupHandler(t, mr)

	err := h.Handle(context.Background(), testEvent())
	require.NoError(t, err)

	// Licenses returned: dataset pool 5+2+1, floating untouched.
	datasetVal, err := mr.Get("gen-prod-aqua-idl-aqua")
	require.NoError(t, err)
	assert.Equal(t, "8", datasetVal)

	floatingVal, err := mr.Get("gen-prod-aqua-idl-floating")
	require.NoError(t, err)
	assert.Equal(t, "3", floatingVal)

	lockVal, err := mr.Get("gen-prod-aqua-idl-retrieving-license")
	require.NoError(t, err)
	assert.Equal(t, "False", lockVal)

	assert.False(t, mr.Exists("gen-prod-aqua-idl-aqua-abc123-ql"))
	assert.False(t, mr.Exists("gen-prod-aqua-idl-aqua-abc123-r"))
	assert.False(t, mr.Exists("gen-prod-aqua-idl-aqua-abc123-floating"))

	// Backoff ran once, deterministically seeded (min == max here).
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 2*time.Second, (*sleeps)[0])

	// Operators got the alert.
	select {
	case msg := <-msgs:
		var alert notify.Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &alert))
		assert.Equal(t, "Generate Batch Job Failure: MODIS", alert.Subject)
		assert.Contains(t, alert.Body, "Job name: gen-prod-aqua-modis-01.")
		assert.Contains(t, alert.Body, "'Essential container in task exited'")
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for alert message")
	}
}

func TestHandleDuplicateDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	seedScenario(t, mr)
	subscribeAlerts(t, mr, "generate-alerts-ops")
	h, _ := setupHandler(t, mr)

	require.NoError(t, h.Handle(context.Background(), testEvent()))
	require.NoError(t, h.Handle(context.Background(), testEvent()))

	// The second delivery finds nothing to return and must not
	// double-count.
	datasetVal, err := mr.Get("gen-prod-aqua-idl-aqua")
	require.NoError(t, err)
	assert.Equal(t, "8", datasetVal)
}

func TestHandlePublishFailureDoesNotGateReclamation(t *testing.T) {
	mr := miniredis.RunT(t)
	seedScenario(t, mr)
	// No subscriber: the alert topic cannot be resolved.
	h, _ := setupHandler(t, mr)

	err := h.Handle(context.Background(), testEvent())

	// The invocation is recorded as failed...
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification was not delivered")

	// ...but the licenses were still reclaimed.
	datasetVal, getErr := mr.Get("gen-prod-aqua-idl-aqua")
	require.NoError(t, getErr)
	assert.Equal(t, "8", datasetVal)
	assert.False(t, mr.Exists("gen-prod-aqua-idl-aqua-abc123-ql"))
}

func TestHandleContractViolation(t *testing.T) {
	mr := miniredis.RunT(t)
	h, sleeps := setupHandler(t, mr)

	ev := testEvent()
	ev.Detail.JobName = ""

	err := h.Handle(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract violation")
	assert.Empty(t, *sleeps, "no backoff for an uninterpretable event")
}
