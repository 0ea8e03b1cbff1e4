package summary

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raysh454/secscan/internal/model"
)

// EntryDelta is the finding count change for one summary key.
type EntryDelta struct {
	Key          string `json:"key"`
	BaseFindings int    `json:"base_findings"`
	HeadFindings int    `json:"head_findings"`
	Delta        int    `json:"delta"`
	Added        bool   `json:"added,omitempty"`
	Removed      bool   `json:"removed,omitempty"`
}

// Chunk is one changed region of the rendered documents.
type Chunk struct {
	Type    string `json:"type"` // "added" | "removed"
	Content string `json:"content"`
}

// Comparison contrasts two scans of the same target.
type Comparison struct {
	BaseScanID string       `json:"base_scan_id"`
	HeadScanID string       `json:"head_scan_id"`
	BaseTotal  int          `json:"base_total"`
	HeadTotal  int          `json:"head_total"`
	Entries    []EntryDelta `json:"entries"`
	Chunks     []Chunk      `json:"chunks"`
}

// Compare lines up two summaries by key. Entries present in only one side
// are marked added or removed. Metadata is ignored.
func Compare(base, head model.SummaryDocument) (Comparison, error) {
	c := Comparison{
		BaseScanID: base.Metadata.ScanID,
		HeadScanID: head.Metadata.ScanID,
		BaseTotal:  base.TotalFindings(),
		HeadTotal:  head.TotalFindings(),
		Entries:    []EntryDelta{},
		Chunks:     []Chunk{},
	}

	keys := make(map[string]bool)
	for k := range base.Entries {
		keys[k] = true
	}
	for k := range head.Entries {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		b, inBase := base.Entries[k]
		h, inHead := head.Entries[k]
		c.Entries = append(c.Entries, EntryDelta{
			Key:          k,
			BaseFindings: b.Findings,
			HeadFindings: h.Findings,
			Delta:        h.Findings - b.Findings,
			Added:        inHead && !inBase,
			Removed:      inBase && !inHead,
		})
	}

	chunks, err := TextDiff(base, head)
	if err != nil {
		return c, err
	}
	c.Chunks = chunks
	return c, nil
}

// TextDiff diffs the rendered entry tables line by line. File names embed
// the scan id, so they are left out of the rendering.
func TextDiff(base, head model.SummaryDocument) ([]Chunk, error) {
	a, err := render(base)
	if err != nil {
		return nil, err
	}
	b, err := render(head)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(ca, cb, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	chunks := make([]Chunk, 0)
	for _, d := range diffs {
		var kind string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = "added"
		case diffmatchpatch.DiffDelete:
			kind = "removed"
		default:
			continue
		}
		if strings.TrimSpace(d.Text) != "" {
			chunks = append(chunks, Chunk{Type: kind, Content: d.Text})
		}
	}
	return chunks, nil
}

func render(doc model.SummaryDocument) (string, error) {
	type row struct {
		Scanner  model.ScannerID `json:"scanner"`
		Findings int             `json:"findings"`
	}
	var sb strings.Builder
	for _, k := range doc.Keys() {
		e := doc.Entries[k]
		line, err := json.Marshal(row{Scanner: e.Scanner, Findings: e.Findings})
		if err != nil {
			return "", fmt.Errorf("rendering %s: %w", k, err)
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
