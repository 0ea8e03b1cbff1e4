package report_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/secscan/internal/model"
	"github.com/raysh454/secscan/internal/report"
	"github.com/raysh454/secscan/internal/testutil"
)

func sampleData() report.Data {
	run := model.NewRunResult("scan-1", "/src/app", []model.ScannerOutcome{
		{Scanner: model.Semgrep, ExitSucceeded: true, OutputArtifactExists: true},
		{Scanner: model.CodeQL, Language: "java", ExitCode: 1, OutputArtifactExists: true,
			Reason: model.ReasonToolReportedFindings, Warnings: []string{"build <maven> failed"}},
		model.FailedOutcome(model.Trivy, "", model.ReasonRuntimeUnavailable, "docker not found"),
	})
	return report.Data{
		Run: run,
		Summary: model.SummaryDocument{
			Metadata: model.SummaryMetadata{ScanID: "scan-1"},
			Entries: map[string]model.SummaryEntry{
				"semgrep": {Scanner: model.Semgrep, File: "semgrep-scan-1.json", Findings: 3, SizeBytes: 120},
				"codeql":  {Scanner: model.CodeQL, File: "codeql-java-scan-1.sarif", Findings: 2, SizeBytes: 900},
			},
		},
		GeneratedAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
}

// ─── HTML ──────────────────────────────────────────────────────────────

func TestRenderHTML_FindingsTableRoundTrips(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := report.RenderHTML(&buf, sampleData()); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}

	got, err := report.ExtractFindingsTable(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ExtractFindingsTable: %v", err)
	}
	want := []report.Row{
		{Key: "codeql", Scanner: model.CodeQL, File: "codeql-java-scan-1.sarif", Findings: 2, SizeBytes: 900},
		{Key: "semgrep", Scanner: model.Semgrep, File: "semgrep-scan-1.json", Findings: 3, SizeBytes: 120},
	}
	if len(got) != len(want) {
		t.Fatalf("rows = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRenderHTML_StatusAndEscaping(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := report.RenderHTML(&buf, sampleData()); err != nil {
		t.Fatal(err)
	}
	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if s := strings.TrimSpace(doc.Find("#run-status").Text()); s != "completed" {
		t.Errorf("run status = %q", s)
	}
	if s := strings.TrimSpace(doc.Find("#total-findings").Text()); s != "5" {
		t.Errorf("total = %q", s)
	}
	if n := doc.Find("table#outcomes tbody tr").Length(); n != 3 {
		t.Errorf("outcome rows = %d", n)
	}
	if w := doc.Find("ul.warnings li").First().Text(); w != "build <maven> failed" {
		t.Errorf("warning text = %q", w)
	}
	if doc.Find("maven").Length() != 0 {
		t.Error("warning text was not escaped")
	}
}

func TestParseSummary_FromRenderedReport(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := report.RenderHTML(&buf, sampleData()); err != nil {
		t.Fatal(err)
	}

	doc, err := report.ParseSummary(&buf)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if doc.Metadata.ScanID != "scan-1" || doc.Metadata.TimestampUTC != "2026-02-03T04:05:06Z" {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if doc.Metadata.Status != string(sampleData().Run.Status()) {
		t.Errorf("status = %q", doc.Metadata.Status)
	}
	if len(doc.Entries) != 2 || doc.Entries["codeql"].Findings != 2 || doc.TotalFindings() != 5 {
		t.Errorf("entries = %+v", doc.Entries)
	}
}

func TestWriter_ReadSummary(t *testing.T) {
	t.Parallel()
	w := report.NewWriter(t.TempDir(), &testutil.DummyLogger{})
	if _, err := w.ReadSummary("scan-1"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing report err = %v", err)
	}
	if _, err := w.Write(context.Background(), sampleData(), []string{"html"}); err != nil {
		t.Fatal(err)
	}
	doc, err := w.ReadSummary("scan-1")
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if doc.Entries["semgrep"].File != "semgrep-scan-1.json" {
		t.Errorf("entries = %+v", doc.Entries)
	}
}

func TestExtractFindingsTable_Rejects(t *testing.T) {
	t.Parallel()
	if _, err := report.ExtractFindingsTable(strings.NewReader("<html><body>nothing</body></html>")); err == nil {
		t.Error("expected error without a findings table")
	}
	bad := `<table id="findings"><tbody><tr data-key="x"><td class="findings">many</td><td class="size">1</td></tr></tbody></table>`
	if _, err := report.ExtractFindingsTable(strings.NewReader(bad)); err == nil {
		t.Error("expected error for non-numeric findings")
	}
}

// ─── Writer ────────────────────────────────────────────────────────────

func TestWriter_HTMLOnly(t *testing.T) {
	t.Parallel()
	w := report.NewWriter(t.TempDir(), &testutil.DummyLogger{})
	w.PDF = func(context.Context, []byte) ([]byte, error) {
		t.Error("pdf exporter should not run")
		return nil, nil
	}

	files, err := w.Write(context.Background(), sampleData(), []string{"json", "HTML"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "report.html" {
		t.Fatalf("files = %v", files)
	}
	if filepath.Dir(files[0]) != w.Dir("scan-1") {
		t.Errorf("report outside its scan dir: %s", files[0])
	}
}

func TestWriter_NoReportFormats(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	w := report.NewWriter(root, nil)
	files, err := w.Write(context.Background(), sampleData(), []string{"json"})
	if err != nil || len(files) != 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	if _, err := os.Stat(w.Dir("scan-1")); !os.IsNotExist(err) {
		t.Error("report dir should not be created")
	}
}

func TestWriter_PDFFailureKeepsHTML(t *testing.T) {
	t.Parallel()
	log := &testutil.DummyLogger{}
	w := report.NewWriter(t.TempDir(), log)
	w.PDF = func(context.Context, []byte) ([]byte, error) { return nil, errors.New("no chrome") }

	files, err := w.Write(context.Background(), sampleData(), []string{"html", "pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || log.WarnCount() != 1 {
		t.Errorf("files=%v warns=%v", files, log.Warns)
	}
}

func TestWriter_PDFWritten(t *testing.T) {
	t.Parallel()
	w := report.NewWriter(t.TempDir(), nil)
	var seen []byte
	w.PDF = func(_ context.Context, html []byte) ([]byte, error) {
		seen = html
		return []byte("%PDF-1.4 fake"), nil
	}

	files, err := w.Write(context.Background(), sampleData(), []string{"pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "report.pdf" {
		t.Fatalf("files = %v", files)
	}
	if !bytes.Contains(seen, []byte(`id="findings"`)) {
		t.Error("pdf exporter did not receive the rendered html")
	}
	if _, err := os.Stat(filepath.Join(w.Dir("scan-1"), "report.html")); !os.IsNotExist(err) {
		t.Error("html should not be kept when only pdf was requested")
	}
}

func TestWriter_Remove(t *testing.T) {
	t.Parallel()
	w := report.NewWriter(t.TempDir(), nil)
	if _, err := w.Write(context.Background(), sampleData(), []string{"html"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Remove("scan-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(w.Dir("scan-1")); !os.IsNotExist(err) {
		t.Error("report dir still present")
	}
	if err := w.Remove("../x"); err == nil {
		t.Error("expected traversal to be rejected")
	}
}

// ─── Chrome ────────────────────────────────────────────────────────────

func TestRenderPDF_Chrome(t *testing.T) {
	t.Parallel()
	found := false
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			found = true
			break
		}
	}
	if !found {
		t.Skip("no chrome binary available")
	}

	var buf bytes.Buffer
	if err := report.RenderHTML(&buf, sampleData()); err != nil {
		t.Fatal(err)
	}
	pdf, err := report.RenderPDF(context.Background(), buf.Bytes())
	if err != nil {
		t.Skipf("chrome present but not usable here: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("output is not a pdf: %q", pdf[:min(len(pdf), 16)])
	}
}
