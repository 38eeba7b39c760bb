package output

import "driftwatch/internal/drift"

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line):
// - run.started
// - url.result
// - run.finished
//
// JSON mode remains an aggregate of drift.Outcome values.
type Event struct {
	Type  string `json:"type"`
	RunID string `json:"run_id,omitempty"`
	*drift.Outcome
	*RunSummary
	URLs  int    `json:"urls,omitempty"`
	Store string `json:"store,omitempty"`
}

// RunSummary closes a run. Zero counts and exit code 0 are still emitted.
type RunSummary struct {
	Errored  int `json:"errored"`
	Changed  int `json:"changed"`
	ExitCode int `json:"exit_code"`
}

func eventFromOutcome(o drift.Outcome) Event {
	return Event{Type: "url.result", Outcome: &o}
}
