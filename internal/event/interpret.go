package event

import (
	"fmt"
	"strings"
)

// RunIdentity names the parameter store namespace for one failed run.
// Prefix and Dataset scope the shared pool counters and lock; UniqueID
// scopes the per-run reservation records.
type RunIdentity struct {
	// Prefix is the workflow+environment namespace: the first three
	// hyphen-separated tokens of the job name (e.g. "gen-prod-aqua").
	Prefix string

	// Dataset is the last hyphen-separated token of the job queue name.
	Dataset string

	// UniqueID identifies the specific run, parsed from the container
	// command line. See UniqueID for the extraction rules.
	UniqueID string
}

// Interpretation is the structured result of reading a failure event.
type Interpretation struct {
	ErrorMessage string
	Identity     RunIdentity
	LogStream    string
}

// Interpret extracts the downstream identifiers from a failure event.
// It is a pure function of its input and performs no I/O.
//
// A missing required field is a contract violation by the event source, not
// a recoverable condition: the returned error should be logged loudly and
// the invocation failed.
func Interpret(ev *FailureEvent) (*Interpretation, error) {
	if ev.Detail.JobName == "" {
		return nil, fmt.Errorf("event contract violation: detail.jobName is missing")
	}
	if ev.Detail.JobID == "" {
		return nil, fmt.Errorf("event contract violation: detail.jobId is missing")
	}
	if ev.Detail.JobQueue == "" {
		return nil, fmt.Errorf("event contract violation: detail.jobQueue is missing")
	}
	if len(ev.Detail.Container.Command) == 0 {
		return nil, fmt.Errorf("event contract violation: detail.container.command is empty")
	}

	out := &Interpretation{
		Identity: RunIdentity{
			Prefix:   Prefix(ev.Detail.JobName),
			Dataset:  Dataset(ev.Detail.JobQueue),
			UniqueID: UniqueID(ev.Detail.Container.Command),
		},
	}

	// Per-attempt detail exists only when the scheduler retried the job;
	// it is more specific than the top-level reason, so it wins.
	if len(ev.Detail.Attempts) > 0 {
		out.ErrorMessage = ev.Detail.Attempts[0].StatusReason
		out.LogStream = ev.Detail.Attempts[0].Container.LogStreamName
	} else {
		out.ErrorMessage = ev.Detail.StatusReason
	}

	return out, nil
}

// Prefix derives the workflow+environment namespace from a job name: the
// first three hyphen-separated tokens, joined back with hyphens. Shorter
// names keep whatever tokens they have.
func Prefix(jobName string) string {
	tokens := strings.Split(jobName, "-")
	if len(tokens) > 3 {
		tokens = tokens[:3]
	}
	return strings.Join(tokens, "-")
}

// Dataset derives the dataset key from a job queue name: its last
// hyphen-separated token.
func Dataset(jobQueue string) string {
	tokens := strings.Split(jobQueue, "-")
	return tokens[len(tokens)-1]
}

// UniqueID parses the run identifier out of a container command line.
//
// Processing jobs carry an input file argument like "/data/run_abc123.json";
// the id is the filename stem's last underscore segment ("abc123"). When
// several arguments contain "json", the last one wins. A command with no
// json-bearing argument is the license-returner utility's own invocation
// shape, and its first token is used verbatim as the id.
func UniqueID(command []string) string {
	id := ""
	for _, arg := range command {
		if strings.Contains(arg, "json") {
			stem := arg
			if i := strings.Index(stem, "."); i >= 0 {
				stem = stem[:i]
			}
			if i := strings.LastIndex(stem, "_"); i >= 0 {
				id = stem[i+1:]
			} else {
				id = stem
			}
		}
	}
	if id == "" {
		id = command[0]
	}
	return id
}

// Environment returns the human-readable environment label for a prefix:
// its last token, upper-cased (e.g. "gen-prod-aqua" -> "AQUA"). Cosmetic,
// used only in log lines and notifications.
func Environment(prefix string) string {
	tokens := strings.Split(prefix, "-")
	return strings.ToUpper(tokens[len(tokens)-1])
}

// DefaultDatasetNames maps the dataset keys this deployment knows about to
// their display names. Anything else is labelled with the generic
// instrument name below. Display names are cosmetic and never feed back
// into reclamation logic.
var DefaultDatasetNames = map[string]string{
	"aqua":  "MODIS Aqua",
	"terra": "MODIS Terra",
	"jpss1": "JPSS1",
}

// FallbackDatasetName labels datasets absent from the display-name table.
const FallbackDatasetName = "VIIRS"
