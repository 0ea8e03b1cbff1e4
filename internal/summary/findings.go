package summary

import (
	"encoding/json"
	"errors"

	"github.com/raysh454/secscan/internal/model"
)

var errInvalidJSON = errors.New("artifact is not valid JSON")

// semgrep: .results[]
type semgrepReport struct {
	Results []json.RawMessage `json:"results"`
}

// osv-scanner: .results[].packages[].vulnerabilities[]
type osvReport struct {
	Results []struct {
		Packages []struct {
			Vulnerabilities []json.RawMessage `json:"vulnerabilities"`
		} `json:"packages"`
	} `json:"results"`
}

// trivy: .Results[].Vulnerabilities[]
type trivyReport struct {
	Results []struct {
		Vulnerabilities []json.RawMessage `json:"Vulnerabilities"`
	} `json:"Results"`
}

// SARIF: .runs[0].results[]
type sarifReport struct {
	Runs []struct {
		Results []json.RawMessage `json:"results"`
	} `json:"runs"`
}

// CountFindings applies the extraction rule for the scanner family that
// produced data. SBOM, endpoint and unknown artifacts are informational and
// count zero, but must still be valid JSON.
func CountFindings(id model.ScannerID, data []byte) (int, error) {
	switch id {
	case model.Semgrep:
		var r semgrepReport
		if err := json.Unmarshal(data, &r); err != nil {
			return 0, err
		}
		return len(r.Results), nil

	case model.Gitleaks:
		var leaks []json.RawMessage
		if err := json.Unmarshal(data, &leaks); err != nil {
			return 0, err
		}
		return len(leaks), nil

	case model.OSVScanner:
		var r osvReport
		if err := json.Unmarshal(data, &r); err != nil {
			return 0, err
		}
		n := 0
		for _, res := range r.Results {
			for _, p := range res.Packages {
				n += len(p.Vulnerabilities)
			}
		}
		return n, nil

	case model.Trivy:
		var r trivyReport
		if err := json.Unmarshal(data, &r); err != nil {
			return 0, err
		}
		n := 0
		for _, res := range r.Results {
			n += len(res.Vulnerabilities)
		}
		return n, nil

	case model.CodeQL:
		var r sarifReport
		if err := json.Unmarshal(data, &r); err != nil {
			return 0, err
		}
		if len(r.Runs) == 0 {
			return 0, nil
		}
		return len(r.Runs[0].Results), nil
	}

	if !json.Valid(data) {
		return 0, errInvalidJSON
	}
	return 0, nil
}
