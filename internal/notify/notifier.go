// Package notify delivers batch-failure alerts to the operator topic.
//
// The alert topic is resolved at call time by matching a configured
// substring against the channels that currently have subscribers, so the
// handler does not hard-code the fully-qualified topic name per deployment.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/podaac/generate-error-handler/internal/event"
)

// Transport is the pub/sub surface the notifier needs. Satisfied by
// *paramstore.Client.
type Transport interface {
	Channels(ctx context.Context, pattern string) ([]string, error)
	Publish(ctx context.Context, channel, payload string) error
}

// Message is the JSON payload published to the alert topic.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notifier publishes failure alerts for operator attention.
type Notifier struct {
	transport Transport
	topic     string
	logger    *log.Logger
}

// NewNotifier creates a notifier that resolves its topic by matching the
// given substring against live channels.
func NewNotifier(transport Transport, topic string, logger *log.Logger) *Notifier {
	return &Notifier{transport: transport, topic: topic, logger: logger}
}

// PublishFailure formats and delivers the alert for one failed job.
// Returns an error if no topic matches the configured substring or if
// delivery fails; both are fatal conditions for the invocation.
func (n *Notifier) PublishFailure(ctx context.Context, ev *event.FailureEvent, errorMessage, logStream string) error {
	channel, err := n.resolveTopic(ctx)
	if err != nil {
		return err
	}

	msg := Message{
		Subject: Subject(ev.Detail.JobName),
		Body:    Body(ev, errorMessage, logStream),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal failure alert: %w", err)
	}

	if err := n.transport.Publish(ctx, channel, string(payload)); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", channel, err)
	}
	n.logger.Printf("[INFO] Published error message to: %s.", channel)
	return nil
}

// resolveTopic picks the first live channel containing the configured
// substring.
func (n *Notifier) resolveTopic(ctx context.Context) (string, error) {
	channels, err := n.transport.Channels(ctx, "*")
	if err != nil {
		return "", fmt.Errorf("failed to list alert topics: %w", err)
	}
	for _, ch := range channels {
		if strings.Contains(ch, n.topic) {
			return ch, nil
		}
	}
	return "", fmt.Errorf("no alert topic matches %q", n.topic)
}

// Subject builds the alert subject line from the job name's instrument
// token (second-to-last hyphen token, upper-cased).
func Subject(jobName string) string {
	tokens := strings.Split(jobName, "-")
	instrument := tokens[len(tokens)-1]
	if len(tokens) >= 2 {
		instrument = tokens[len(tokens)-2]
	}
	return fmt.Sprintf("Generate Batch Job Failure: %s", strings.ToUpper(instrument))
}

// Body builds the multi-line alert body: job information, the error
// message, and the recovery instructions operators follow to resubmit the
// affected files.
func Body(ev *event.FailureEvent, errorMessage, logStream string) string {
	var b strings.Builder
	b.WriteString("A Generate batch job has FAILED. Manual intervention required.\n\n")
	b.WriteString("JOB INFORMATION:\n")
	fmt.Fprintf(&b, "Job name: %s.\n", ev.Detail.JobName)
	fmt.Fprintf(&b, "Job identifier: %s.\n", ev.Detail.JobID)
	fmt.Fprintf(&b, "Job queue: %s.\n", ev.Detail.JobQueue)
	if logStream != "" {
		fmt.Fprintf(&b, "Log file: %s\n", logStream)
	}
	fmt.Fprintf(&b, "Container command: %v\n", ev.Detail.Container.Command)
	b.WriteString("\nERROR INFORMATION:\n")
	fmt.Fprintf(&b, "Error message:\n\t'%s'\n\n", errorMessage)
	b.WriteString("\nThis indicates that a job has failed and manual intervention is required to resubmit the files associated with the failure to the Generate workflow.\n\n")
	b.WriteString("Please follow the Generate error detection and recovery runbook to diagnose and recover from the failure.\n")
	return b.String()
}
