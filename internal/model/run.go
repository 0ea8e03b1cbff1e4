package model

import "time"

// RunResult aggregates every outcome for one scan id.
type RunResult struct {
	ScanID              string           `json:"scan_id"`
	Target              string           `json:"target"`
	Outcomes            []ScannerOutcome `json:"outcomes"`
	AggregateExitFlag   bool             `json:"aggregate_exit_flag"`
	AnyArtifactProduced bool             `json:"any_artifact_produced"`
	StartedAt           time.Time        `json:"started_at"`
	EndedAt             time.Time        `json:"ended_at"`

	// Detection is set when the target was inspected.
	Detection *DetectionReport `json:"detection,omitempty"`
}

// RunStatus is the user-visible status of a whole run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// NewRunResult derives both aggregate flags from the outcomes.
func NewRunResult(scanID, target string, outcomes []ScannerOutcome) RunResult {
	r := RunResult{ScanID: scanID, Target: target, Outcomes: outcomes}
	for _, o := range outcomes {
		if !o.ExitSucceeded {
			r.AggregateExitFlag = true
		}
		if o.OutputArtifactExists {
			r.AnyArtifactProduced = true
		}
	}
	return r
}

// Succeeded follows the terminal rule: any artifact means success, whatever
// the individual exit codes were.
func (r RunResult) Succeeded() bool {
	return r.AnyArtifactProduced
}

// Status is "completed" whenever at least one artifact exists.
func (r RunResult) Status() RunStatus {
	if r.Succeeded() {
		return RunCompleted
	}
	return RunFailed
}

// ExitCode is the process-level exit contract.
func (r RunResult) ExitCode() int {
	if r.Succeeded() {
		return 0
	}
	return 1
}

// Degraded lists outcomes that did not complete cleanly, in run order.
func (r RunResult) Degraded() []ScannerOutcome {
	var out []ScannerOutcome
	for _, o := range r.Outcomes {
		if o.Status() != StatusCompleted {
			out = append(out, o)
		}
	}
	return out
}
