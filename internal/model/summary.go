package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SummaryEntry describes one artifact in the results directory.
type SummaryEntry struct {
	Scanner   ScannerID `json:"scanner"`
	File      string    `json:"file"`
	Findings  int       `json:"findings"`
	SizeBytes int64     `json:"size_bytes"`
}

// SummaryMetadata is the "metadata" object of a summary document.
type SummaryMetadata struct {
	TimestampUTC string `json:"timestamp"`
	ScanID       string `json:"scan_id"`
	Status       string `json:"status,omitempty"`
}

// SummaryDocument maps an entry key (normally the scanner name) to its entry.
// On the wire the entries sit at the top level next to "metadata".
type SummaryDocument struct {
	Metadata SummaryMetadata
	Entries  map[string]SummaryEntry
}

// Keys returns entry keys in sorted order.
func (d SummaryDocument) Keys() []string {
	keys := make([]string, 0, len(d.Entries))
	for k := range d.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TotalFindings sums findings across all entries.
func (d SummaryDocument) TotalFindings() int {
	total := 0
	for _, e := range d.Entries {
		total += e.Findings
	}
	return total
}

func (d SummaryDocument) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Entries)+1)
	for k, e := range d.Entries {
		out[k] = e
	}
	out["metadata"] = d.Metadata
	return json.Marshal(out)
}

func (d *SummaryDocument) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Entries = make(map[string]SummaryEntry, len(raw))
	for k, v := range raw {
		if k == "metadata" {
			if err := json.Unmarshal(v, &d.Metadata); err != nil {
				return fmt.Errorf("metadata: %w", err)
			}
			continue
		}
		var e SummaryEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("entry %q: %w", k, err)
		}
		d.Entries[k] = e
	}
	return nil
}
