package model

import (
	"encoding/json"
	"time"
)

// Status is the tri-state result of one scanner invocation.
type Status string

const (
	StatusCompleted             Status = "completed"
	StatusCompletedWithWarnings Status = "completed-with-warnings"
	StatusFailedNoOutput        Status = "failed-no-output"
)

// DeriveStatus is the only place a Status is computed. The exit code alone
// never decides it: artifact presence is the ground truth.
func DeriveStatus(exitSucceeded, artifactExists bool) Status {
	switch {
	case !artifactExists:
		return StatusFailedNoOutput
	case exitSucceeded:
		return StatusCompleted
	default:
		return StatusCompletedWithWarnings
	}
}

// FailureReason classifies why an outcome is degraded.
type FailureReason string

const (
	ReasonNone                 FailureReason = ""
	ReasonRuntimeUnavailable   FailureReason = "runtime_unavailable"
	ReasonInvocationFault      FailureReason = "invocation_fault"
	ReasonToolReportedFindings FailureReason = "tool_reported_findings"
	ReasonArtifactMissing      FailureReason = "artifact_missing"
	ReasonTimeout              FailureReason = "timeout"
	ReasonCanceled             FailureReason = "canceled"
	ReasonPanic                FailureReason = "panic"
)

// ScannerOutcome is one scanner invocation (or one CodeQL language).
type ScannerOutcome struct {
	Scanner              ScannerID     `json:"scanner"`
	Language             string        `json:"language,omitempty"`
	ExitSucceeded        bool          `json:"exit_succeeded"`
	ExitCode             int           `json:"exit_code"`
	OutputArtifactExists bool          `json:"output_artifact_exists"`
	OutputArtifactPath   string        `json:"output_artifact_path,omitempty"`
	Reason               FailureReason `json:"reason,omitempty"`
	Detail               string        `json:"detail,omitempty"`
	Warnings             []string      `json:"warnings,omitempty"`
	StartedAt            time.Time     `json:"started_at"`
	Duration             time.Duration `json:"duration_ns"`
	Output               string        `json:"output,omitempty"`
}

// Status derives the tri-state from (ExitSucceeded, OutputArtifactExists).
func (o ScannerOutcome) Status() Status {
	return DeriveStatus(o.ExitSucceeded, o.OutputArtifactExists)
}

// Name is the display name: "codeql:java" for CodeQL languages.
func (o ScannerOutcome) Name() string {
	if o.Language != "" {
		return string(o.Scanner) + ":" + o.Language
	}
	return string(o.Scanner)
}

// Warn appends a warning message.
func (o *ScannerOutcome) Warn(msg string) {
	o.Warnings = append(o.Warnings, msg)
}

// MarshalJSON adds the derived status to the encoded outcome.
func (o ScannerOutcome) MarshalJSON() ([]byte, error) {
	type plain ScannerOutcome
	return json.Marshal(struct {
		plain
		Status Status `json:"status"`
	}{plain(o), o.Status()})
}

// FailedOutcome builds a failed-no-output outcome for a scanner whose command
// was never attempted or could not complete.
func FailedOutcome(id ScannerID, language string, reason FailureReason, detail string) ScannerOutcome {
	return ScannerOutcome{
		Scanner:   id,
		Language:  language,
		ExitCode:  -1,
		Reason:    reason,
		Detail:    detail,
		StartedAt: time.Now().UTC(),
	}
}
