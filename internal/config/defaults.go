package config

import (
	"github.com/raysh454/secscan/internal/model"
)

const (
	DefaultSemgrepConfig  = "security/semgrep-rules"
	DefaultGitleaksConfig = "security/gitleaks-rules/gitleaks.toml"
	DefaultSyftFormat     = "spdx-json"
	DefaultTrivyScanType  = "fs"
)

// Default generates the configuration used when a caller supplies none. The
// detection report, when present, decides whether the dependency and
// container scanners are switched on.
func Default(kind TargetKind, path string, report *model.DetectionReport) *ScanConfiguration {
	scope := Scope{Kind: ScopeFull, Paths: []string{path}}
	if kind == TargetFile {
		scope = Scope{Kind: ScopeSingleFile, SingleFile: path, Paths: []string{path}}
	}

	hasDeps, hasContainer := true, true
	if report != nil {
		hasDeps = report.HasDependencyManifest
		hasContainer = report.HasContainerManifest
	}

	return &ScanConfiguration{
		Target:     Target{Kind: kind, Path: path},
		Scope:      scope,
		AutoDetect: true,
		Scanners: map[model.ScannerID]ScannerConfig{
			model.Semgrep: {Enabled: true, Options: map[string]any{"config_path": DefaultSemgrepConfig}},
			model.CodeQL: {Enabled: true, Options: map[string]any{
				"languages":  []any{"auto"},
				"build_mode": "auto",
			}},
			model.Gitleaks:   {Enabled: true, Options: map[string]any{"config_path": DefaultGitleaksConfig}},
			model.OSVScanner: {Enabled: hasDeps},
			model.Trivy:      {Enabled: hasContainer, Options: map[string]any{"scan_type": DefaultTrivyScanType}},
			model.Syft:       {Enabled: false, Options: map[string]any{"format": DefaultSyftFormat}},
			model.Noir:       {Enabled: false},
		},
		Output: Output{
			Formats:       []string{"json", "sarif"},
			Storage:       DefaultStorage,
			RetentionDays: DefaultRetentionDays,
		},
	}
}
