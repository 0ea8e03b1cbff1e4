package summary

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/secscan/internal/model"
	"github.com/raysh454/secscan/internal/testutil"
)

func fixedNow() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func writeResults(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// ─── extraction rules ──────────────────────────────────────────────────

func TestCountFindings(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		id   model.ScannerID
		body string
		want int
	}{
		{"semgrep results", model.Semgrep, `{"results":[{},{},{}],"errors":[]}`, 3},
		{"semgrep no results key", model.Semgrep, `{"errors":[]}`, 0},
		{"gitleaks array", model.Gitleaks, `[{"RuleID":"aws"},{"RuleID":"gcp"}]`, 2},
		{"gitleaks empty", model.Gitleaks, `[]`, 0},
		{"osv nested", model.OSVScanner, `{"results":[{"packages":[{"vulnerabilities":[{},{}]},{"vulnerabilities":[{}]}]},{"packages":[]}]}`, 3},
		{"trivy nested", model.Trivy, `{"Results":[{"Vulnerabilities":[{},{}]},{"Target":"Dockerfile"}]}`, 2},
		{"sarif first run only", model.CodeQL, `{"runs":[{"results":[{},{}]},{"results":[{}]}]}`, 2},
		{"sarif no runs", model.CodeQL, `{"runs":[]}`, 0},
		{"sbom informational", model.Syft, `{"packages":[{},{}]}`, 0},
		{"endpoints informational", model.Noir, `[{"url":"/api"}]`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CountFindings(tc.id, []byte(tc.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("findings = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCountFindings_Malformed(t *testing.T) {
	t.Parallel()
	for _, id := range []model.ScannerID{model.Semgrep, model.Gitleaks, model.Trivy, model.CodeQL, model.Syft, model.Unknown} {
		if n, err := CountFindings(id, []byte("not json {")); err == nil || n != 0 {
			t.Errorf("%s: n=%d err=%v", id, n, err)
		}
	}
	if _, err := CountFindings(model.Gitleaks, []byte(`{"leaks":[]}`)); err == nil {
		t.Error("gitleaks expects a top-level array")
	}
}

// ─── Summarize ─────────────────────────────────────────────────────────

func TestSummarize_SarifScenario(t *testing.T) {
	t.Parallel()
	dir := writeResults(t, map[string]string{
		"codeql-python-123.sarif": `{"runs":[{"results":[{},{}]}]}`,
	})

	doc, err := Summarize(dir, Options{ScanID: "123", Now: fixedNow})
	if err != nil {
		t.Fatal(err)
	}
	e, ok := doc.Entries["codeql"]
	if !ok {
		t.Fatalf("missing codeql entry: %+v", doc.Entries)
	}
	if e.Findings != 2 || e.Scanner != model.CodeQL || e.File != "codeql-python-123.sarif" {
		t.Errorf("entry = %+v", e)
	}
	if e.SizeBytes != int64(len(`{"runs":[{"results":[{},{}]}]}`)) {
		t.Errorf("size = %d", e.SizeBytes)
	}
}

func TestSummarize_CorruptFileCountsZero(t *testing.T) {
	t.Parallel()
	dir := writeResults(t, map[string]string{
		"trivy-9.json":    "<html>502 Bad Gateway</html>",
		"semgrep-9.json":  `{"results":[{}]}`,
		"gitleaks-9.json": `[{},{},{}]`,
	})
	log := &testutil.DummyLogger{}

	doc, err := Summarize(dir, Options{ScanID: "9", Logger: log})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Entries["trivy"].Findings != 0 || doc.Entries["trivy"].File != "trivy-9.json" {
		t.Errorf("trivy = %+v", doc.Entries["trivy"])
	}
	if doc.Entries["semgrep"].Findings != 1 || doc.Entries["gitleaks"].Findings != 3 {
		t.Errorf("other entries affected: %+v", doc.Entries)
	}
	if log.WarnCount() != 1 {
		t.Errorf("corrupt file should be warned about once, got %v", log.Warns)
	}
}

func TestSummarize_SkipsNonArtifacts(t *testing.T) {
	t.Parallel()
	dir := writeResults(t, map[string]string{
		"summary.json":     `{"metadata":{}}`,
		".tmp-12345":       `{}`,
		".hidden.json":     `{}`,
		"notes.txt":        "hello",
		"semgrep-abc.json": `{"results":[]}`,
	})
	if err := os.Mkdir(filepath.Join(dir, "codeql-db.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	doc, err := Summarize(dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if keys := doc.Keys(); len(keys) != 1 || keys[0] != "semgrep" {
		t.Errorf("keys = %v", keys)
	}
}

func TestSummarize_UnknownAndCollisions(t *testing.T) {
	t.Parallel()
	dir := writeResults(t, map[string]string{
		"codeql-java-7.sarif":   `{"runs":[{"results":[{}]}]}`,
		"codeql-python-7.sarif": `{"runs":[{"results":[{},{}]}]}`,
		"custom.json":           `{}`,
		"syft-7.json":           `{"artifacts":[]}`,
	})

	doc, err := Summarize(dir, Options{ScanID: "7"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{"codeql-java": 1, "codeql-python": 2, "unknown": 0, "syft": 0}
	if len(doc.Entries) != len(want) {
		t.Fatalf("entries = %+v", doc.Entries)
	}
	for k, n := range want {
		if e, ok := doc.Entries[k]; !ok || e.Findings != n {
			t.Errorf("%s = %+v (present %v), want %d findings", k, e, ok, n)
		}
	}
	if doc.Entries["unknown"].Scanner != model.Unknown {
		t.Errorf("unknown entry scanner = %s", doc.Entries["unknown"].Scanner)
	}
	if doc.TotalFindings() != 3 {
		t.Errorf("total = %d", doc.TotalFindings())
	}
}

func TestSummarize_EmptyDirectory(t *testing.T) {
	t.Parallel()
	doc, err := Summarize(t.TempDir(), Options{ScanID: "x", Status: "failed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Entries) != 0 || doc.Metadata.Status != "failed" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestSummarize_MissingDirectory(t *testing.T) {
	t.Parallel()
	if _, err := Summarize(filepath.Join(t.TempDir(), "nope"), Options{}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

// ─── Write / Load ──────────────────────────────────────────────────────

func TestWrite_IsIdempotent(t *testing.T) {
	t.Parallel()
	dir := writeResults(t, map[string]string{
		"semgrep-1.json":     `{"results":[{},{}]}`,
		"osv-scanner-1.json": `{"results":[{"packages":[{"vulnerabilities":[{}]}]}]}`,
		"noir-1.json":        `[]`,
	})
	opts := Options{ScanID: "1", Status: "completed", Now: fixedNow}

	first, err := Summarize(dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	path, err := Write(dir, first)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := os.ReadFile(path)

	// summary.json now sits in the directory and must not change the result.
	second, err := Summarize(dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Write(dir, second); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(path)

	if !bytes.Equal(a, b) {
		t.Errorf("summary not idempotent:\n%s\n---\n%s", a, b)
	}
	if !strings.Contains(string(a), `"osv-scanner": {`) || !strings.Contains(string(a), `"timestamp": "2026-03-01T12:00:00Z"`) {
		t.Errorf("unexpected document:\n%s", a)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Entries["semgrep"].Findings != 2 || loaded.Metadata.ScanID != "1" {
		t.Errorf("loaded = %+v", loaded)
	}
}

// ─── Compare ───────────────────────────────────────────────────────────

func TestCompare(t *testing.T) {
	t.Parallel()
	base := model.SummaryDocument{
		Metadata: model.SummaryMetadata{ScanID: "a"},
		Entries: map[string]model.SummaryEntry{
			"semgrep":  {Scanner: model.Semgrep, Findings: 4},
			"gitleaks": {Scanner: model.Gitleaks, Findings: 1},
		},
	}
	head := model.SummaryDocument{
		Metadata: model.SummaryMetadata{ScanID: "b"},
		Entries: map[string]model.SummaryEntry{
			"semgrep": {Scanner: model.Semgrep, Findings: 2},
			"trivy":   {Scanner: model.Trivy, Findings: 5},
		},
	}

	c, err := Compare(base, head)
	if err != nil {
		t.Fatal(err)
	}
	if c.BaseTotal != 5 || c.HeadTotal != 7 {
		t.Errorf("totals = %d/%d", c.BaseTotal, c.HeadTotal)
	}
	byKey := map[string]EntryDelta{}
	for _, e := range c.Entries {
		byKey[e.Key] = e
	}
	if d := byKey["semgrep"]; d.Delta != -2 || d.Added || d.Removed {
		t.Errorf("semgrep = %+v", d)
	}
	if d := byKey["gitleaks"]; !d.Removed || d.Delta != -1 {
		t.Errorf("gitleaks = %+v", d)
	}
	if d := byKey["trivy"]; !d.Added || d.Delta != 5 {
		t.Errorf("trivy = %+v", d)
	}

	var added, removed int
	for _, ch := range c.Chunks {
		switch ch.Type {
		case "added":
			added++
			if !strings.Contains(ch.Content, "trivy") && !strings.Contains(ch.Content, "semgrep") {
				t.Errorf("unexpected added chunk %q", ch.Content)
			}
		case "removed":
			removed++
		}
	}
	if added == 0 || removed == 0 {
		t.Errorf("chunks = %+v", c.Chunks)
	}
}

func TestCompare_IdenticalHasNoChunks(t *testing.T) {
	t.Parallel()
	doc := model.SummaryDocument{Entries: map[string]model.SummaryEntry{"semgrep": {Scanner: model.Semgrep, Findings: 1}}}
	c, err := Compare(doc, doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Chunks) != 0 || c.Entries[0].Delta != 0 {
		t.Errorf("comparison = %+v", c)
	}
}
