// Package apify provides an HTTP client for the Apify actor-task API:
// starting task runs, polling run status and reading result datasets.
package apify

// Status represents the status of an Apify actor run.
type Status string

// Actor run statuses as reported by the Apify API.
const (
	StatusReady     Status = "READY"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusTimingOut Status = "TIMING-OUT"
	StatusTimedOut  Status = "TIMED-OUT"
	StatusAborting  Status = "ABORTING"
	StatusAborted   Status = "ABORTED"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusAborted:
		return true
	default:
		return false
	}
}

// Run is a snapshot of an actor run.
type Run struct {
	ID     string
	Status Status
	// DatasetID is the run's default dataset (set once the run exists).
	DatasetID string
	// Error is the service-reported failure detail, if any.
	Error string
}

// Item is one record of a result dataset. Records are free-form JSON objects.
type Item map[string]any

// runEnvelope is the response shape of the run endpoints.
type runEnvelope struct {
	Data runData `json:"data"`
}

type runData struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	StatusMessage    string `json:"statusMessage,omitempty"`
	DefaultDatasetID string `json:"defaultDatasetId"`
	Error            string `json:"error,omitempty"`
}

// errorEnvelope is the shape of Apify error responses.
type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
