package event

// Inbound failure event types.
//
// These mirror the JSON shape the batch scheduler emits when a job fails.
// The event is externally owned: this package only reads it, and the field
// names are a contract with the event source.

// FailureEvent is a single batch job failure notification.
type FailureEvent struct {
	Account string `json:"account"`
	Detail  Detail `json:"detail"`
}

// Detail carries the job-level failure information.
type Detail struct {
	JobName      string    `json:"jobName"`
	JobID        string    `json:"jobId"`
	JobQueue     string    `json:"jobQueue"`
	StatusReason string    `json:"statusReason"`
	Attempts     []Attempt `json:"attempts"`
	Container    Container `json:"container"`
}

// Attempt records one retry attempt of the failed job. The scheduler only
// populates attempts when retries occurred; the first attempt carries the
// most useful failure detail.
type Attempt struct {
	StatusReason string           `json:"statusReason"`
	Container    AttemptContainer `json:"container"`
}

// AttemptContainer holds the per-attempt container metadata.
type AttemptContainer struct {
	LogStreamName string `json:"logStreamName"`
}

// Container holds the job's container command line.
type Container struct {
	Command []string `json:"command"`
}
