package server

import "encoding/json"

// ExecuteScanRequest starts a scan. Config is a scan configuration object;
// an absent config means auto-detect everything.
type ExecuteScanRequest struct {
	Config json.RawMessage `json:"config" swaggertype:"object"`
	Target string          `json:"target" example:"projects/webapp"`
	ScanID string          `json:"scan_id,omitempty" example:"2f1c9a"`

	// Async returns a job immediately instead of waiting for the run.
	Async bool `json:"async,omitempty"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string `json:"status" example:"healthy"`
	Timestamp string `json:"timestamp" example:"2026-01-01T00:00:00Z"`
}

// PruneResponse reports how many scans were removed.
type PruneResponse struct {
	Pruned int `json:"pruned" example:"3"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
