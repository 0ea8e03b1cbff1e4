package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ScannerID identifies the tool that produced an outcome or artifact. It is
// the single owner of artifact naming: everything that writes or reads the
// results directory goes through ArtifactName / ParseArtifactName.
type ScannerID string

const (
	Semgrep    ScannerID = "semgrep"
	CodeQL     ScannerID = "codeql"
	Gitleaks   ScannerID = "gitleaks"
	OSVScanner ScannerID = "osv-scanner"
	Trivy      ScannerID = "trivy"
	Syft       ScannerID = "syft"
	Noir       ScannerID = "noir"
	Unknown    ScannerID = "unknown"
)

// DeclaredOrder is the fixed order the coordinator reports scanners in.
var DeclaredOrder = []ScannerID{Semgrep, CodeQL, Gitleaks, OSVScanner, Trivy, Syft, Noir}

// Kind is the security concern a scanner covers.
type Kind string

const (
	KindSAST       Kind = "sast"
	KindSecrets    Kind = "secrets"
	KindDependency Kind = "dependency"
	KindContainer  Kind = "container"
	KindSBOM       Kind = "sbom"
	KindEndpoints  Kind = "endpoints"
)

// Kind reports the concern covered by the scanner.
func (id ScannerID) Kind() Kind {
	switch id {
	case Semgrep, CodeQL:
		return KindSAST
	case Gitleaks:
		return KindSecrets
	case OSVScanner:
		return KindDependency
	case Trivy:
		return KindContainer
	case Syft:
		return KindSBOM
	case Noir:
		return KindEndpoints
	}
	return ""
}

// ConfigKey is the key used under `scanners` in the scan configuration.
func (id ScannerID) ConfigKey() string {
	return strings.ReplaceAll(string(id), "-", "_")
}

// Isolated reports whether the scanner runs inside the container runtime.
// CodeQL is the only one that runs natively.
func (id ScannerID) Isolated() bool {
	return id != CodeQL && id != Unknown && id != ""
}

// WholeTree reports whether the scanner needs directory context rather than
// an individual file.
func (id ScannerID) WholeTree() bool {
	switch id {
	case OSVScanner, Trivy, Syft, Noir:
		return true
	}
	return false
}

// Extension is the artifact file extension without the dot.
func (id ScannerID) Extension() string {
	if id == CodeQL {
		return "sarif"
	}
	return "json"
}

// ParseScannerID accepts both config keys ("osv_scanner") and short names
// ("osv-scanner").
func ParseScannerID(name string) (ScannerID, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "_", "-")
	for _, id := range DeclaredOrder {
		if string(id) == n {
			return id, true
		}
	}
	return Unknown, false
}

// ArtifactName builds `{scanner}-{scanId}.{ext}`, or
// `codeql-{language}-{scanId}.sarif` for CodeQL.
func ArtifactName(id ScannerID, scanID, language string) string {
	if id == CodeQL {
		return fmt.Sprintf("%s-%s-%s.%s", id, language, scanID, id.Extension())
	}
	return fmt.Sprintf("%s-%s.%s", id, scanID, id.Extension())
}

// Artifact is a result file classified by its producer.
type Artifact struct {
	Scanner  ScannerID
	Language string
	ScanID   string
	File     string
}

// ParseArtifactName classifies a results-directory file name. Names that do not
// follow the convention come back with Scanner == Unknown.
func ParseArtifactName(name string) Artifact {
	base := filepath.Base(name)
	a := Artifact{Scanner: Unknown, File: base}

	// Longest prefix first so a future "osv-" style short name cannot shadow
	// "osv-scanner-".
	var match ScannerID
	for _, id := range DeclaredOrder {
		if strings.HasPrefix(base, string(id)+"-") && len(id) > len(match) {
			match = id
		}
	}
	if match == "" {
		return a
	}
	a.Scanner = match

	rest := strings.TrimPrefix(base, string(match)+"-")
	rest = strings.TrimSuffix(rest, filepath.Ext(rest))
	if match == CodeQL {
		lang, scanID, ok := strings.Cut(rest, "-")
		if ok {
			a.Language = lang
			a.ScanID = scanID
		} else {
			a.Language = rest
		}
		return a
	}
	a.ScanID = rest
	return a
}
