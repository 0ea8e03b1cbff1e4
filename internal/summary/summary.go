// Package summary rebuilds the normalized findings summary from the artifacts
// in a results directory.
package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/raysh454/secscan/internal/blobstore"
	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/model"
)

// FileName is the summary document written into the results directory.
const FileName = "summary.json"

// Options labels the document; none of it affects the entries.
type Options struct {
	ScanID string
	Status string

	// Now defaults to time.Now.
	Now func() time.Time

	Logger logging.Logger
}

// Summarize reads every artifact in resultsDir. Unreadable or malformed
// artifacts count zero findings; only an unreadable directory is an error.
// It must not run while a scan is still writing into resultsDir.
func Summarize(resultsDir string, opts Options) (model.SummaryDocument, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Nop{}
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	doc := model.SummaryDocument{
		Metadata: model.SummaryMetadata{
			TimestampUTC: now().UTC().Format(time.RFC3339),
			ScanID:       opts.ScanID,
			Status:       opts.Status,
		},
		Entries: make(map[string]model.SummaryEntry),
	}

	artifacts, err := listArtifacts(resultsDir)
	if err != nil {
		return doc, err
	}

	keys := assignKeys(artifacts)
	for i, a := range artifacts {
		entry := model.SummaryEntry{Scanner: a.Scanner, File: a.File}
		path := filepath.Join(resultsDir, a.File)
		if info, err := os.Stat(path); err == nil {
			entry.SizeBytes = info.Size()
		}

		data, err := os.ReadFile(path)
		if err == nil {
			entry.Findings, err = CountFindings(a.Scanner, data)
		}
		if err != nil {
			log.Warn("artifact unreadable, counting zero findings",
				logging.F("file", a.File),
				logging.Err(err))
			entry.Findings = 0
		}
		doc.Entries[keys[i]] = entry
	}
	return doc, nil
}

// listArtifacts returns result files sorted by name. Hidden files, the
// summary itself and anything that is not .json or .sarif are skipped.
func listArtifacts(dir string) ([]model.Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading results dir: %w", err)
	}
	var out []model.Artifact
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || name == FileName {
			continue
		}
		switch filepath.Ext(name) {
		case ".json", ".sarif":
		default:
			continue
		}
		out = append(out, model.ParseArtifactName(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

// assignKeys names each entry after its scanner. When a scanner has more
// than one artifact every one of its entries gets a qualified key instead,
// so no artifact overwrites another.
func assignKeys(artifacts []model.Artifact) []string {
	perScanner := make(map[model.ScannerID]int)
	for _, a := range artifacts {
		perScanner[a.Scanner]++
	}

	used := make(map[string]bool)
	keys := make([]string, len(artifacts))
	for i, a := range artifacts {
		key := string(a.Scanner)
		if perScanner[a.Scanner] > 1 {
			key = qualifiedKey(a)
		}
		if used[key] {
			key = strings.TrimSuffix(a.File, filepath.Ext(a.File))
		}
		used[key] = true
		keys[i] = key
	}
	return keys
}

func qualifiedKey(a model.Artifact) string {
	switch {
	case a.Scanner == model.CodeQL && a.Language != "":
		return "codeql-" + a.Language
	case a.Scanner == model.Unknown:
		return "unknown-" + strings.TrimSuffix(a.File, filepath.Ext(a.File))
	case a.ScanID != "":
		return string(a.Scanner) + "-" + a.ScanID
	}
	return strings.TrimSuffix(a.File, filepath.Ext(a.File))
}

// Write persists doc as <resultsDir>/summary.json. The document is fully
// encoded first and swapped in atomically so readers never see a partial
// summary.
func Write(resultsDir string, doc model.SummaryDocument) (string, error) {
	data, err := Encode(doc)
	if err != nil {
		return "", err
	}
	path := filepath.Join(resultsDir, FileName)
	if err := blobstore.AtomicWriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing summary: %w", err)
	}
	return path, nil
}

// Encode renders doc as indented JSON. Keys are sorted, so equal documents
// encode to identical bytes.
func Encode(doc model.SummaryDocument) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding summary: %w", err)
	}
	return append(data, '\n'), nil
}

// Load reads a summary document written by Write.
func Load(path string) (model.SummaryDocument, error) {
	var doc model.SummaryDocument
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}
