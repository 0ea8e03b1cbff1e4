// Package report renders a finished scan as HTML and, optionally, PDF.
//
// Reports are written under their own root, one directory per scan id. The
// results directory belongs to the scanners and is never written here.
package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/secscan/internal/blobstore"
	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/model"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTmpl = template.Must(template.ParseFS(templateFS, "templates/report.html.tmpl"))

const (
	FormatHTML = "html"
	FormatPDF  = "pdf"

	htmlName = "report.html"
	pdfName  = "report.pdf"
)

// Row is one line of the findings table.
type Row struct {
	Key       string          `json:"key"`
	Scanner   model.ScannerID `json:"scanner"`
	File      string          `json:"file"`
	Findings  int             `json:"findings"`
	SizeBytes int64           `json:"size_bytes"`
}

// Data is everything a report shows.
type Data struct {
	Run         model.RunResult
	Summary     model.SummaryDocument
	GeneratedAt time.Time
}

type view struct {
	Run         model.RunResult
	Rows        []Row
	Total       int
	GeneratedAt string
}

func rows(doc model.SummaryDocument) []Row {
	out := make([]Row, 0, len(doc.Entries))
	for _, k := range doc.Keys() {
		e := doc.Entries[k]
		out = append(out, Row{Key: k, Scanner: e.Scanner, File: e.File, Findings: e.Findings, SizeBytes: e.SizeBytes})
	}
	return out
}

// RenderHTML writes the HTML report for d to w.
func RenderHTML(w io.Writer, d Data) error {
	gen := d.GeneratedAt
	if gen.IsZero() {
		gen = time.Now()
	}
	v := view{
		Run:         d.Run,
		Rows:        rows(d.Summary),
		Total:       d.Summary.TotalFindings(),
		GeneratedAt: gen.UTC().Format(time.RFC3339),
	}
	if err := reportTmpl.Execute(w, v); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// ExtractFindingsTable reads the findings table back out of a rendered
// report.
func ExtractFindingsTable(r io.Reader) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return findingsRows(doc)
}

// ParseSummary rebuilds the summary document a report was rendered from.
// The timestamp is the report's generation time.
func ParseSummary(r io.Reader) (model.SummaryDocument, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return model.SummaryDocument{}, fmt.Errorf("parse report: %w", err)
	}
	rows, err := findingsRows(doc)
	if err != nil {
		return model.SummaryDocument{}, err
	}
	scanID, _ := doc.Find("h1#scan").Attr("data-scan-id")
	out := model.SummaryDocument{
		Metadata: model.SummaryMetadata{
			TimestampUTC: strings.TrimSpace(doc.Find("#generated-at").Text()),
			ScanID:       scanID,
			Status:       strings.TrimSpace(doc.Find("#run-status").Text()),
		},
		Entries: make(map[string]model.SummaryEntry, len(rows)),
	}
	for _, row := range rows {
		out.Entries[row.Key] = model.SummaryEntry{Scanner: row.Scanner, File: row.File, Findings: row.Findings, SizeBytes: row.SizeBytes}
	}
	return out, nil
}

func findingsRows(doc *goquery.Document) ([]Row, error) {
	table := doc.Find("table#findings")
	if table.Length() == 0 {
		return nil, fmt.Errorf("report has no findings table")
	}

	var out []Row
	var parseErr error
	table.Find("tbody tr").Each(func(i int, tr *goquery.Selection) {
		if parseErr != nil {
			return
		}
		findings, err := strconv.Atoi(cellText(tr, "td.findings"))
		if err != nil {
			parseErr = fmt.Errorf("row %d: findings: %w", i, err)
			return
		}
		size, err := strconv.ParseInt(cellText(tr, "td.size"), 10, 64)
		if err != nil {
			parseErr = fmt.Errorf("row %d: size: %w", i, err)
			return
		}
		key, _ := tr.Attr("data-key")
		out = append(out, Row{
			Key:       key,
			Scanner:   model.ScannerID(cellText(tr, "td.scanner")),
			File:      cellText(tr, "td.file"),
			Findings:  findings,
			SizeBytes: size,
		})
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

func cellText(tr *goquery.Selection, sel string) string {
	return strings.TrimSpace(tr.Find(sel).First().Text())
}

// PDFFunc converts an HTML document into PDF bytes.
type PDFFunc func(ctx context.Context, html []byte) ([]byte, error)

// Writer writes reports below Root.
type Writer struct {
	Root   string
	PDF    PDFFunc
	logger logging.Logger
}

// NewWriter returns a Writer that exports PDFs through headless Chrome.
func NewWriter(root string, logger logging.Logger) *Writer {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Writer{
		Root:   root,
		PDF:    RenderPDF,
		logger: logger.With(logging.F("component", "report")),
	}
}

// Dir is the report directory of one scan.
func (w *Writer) Dir(scanID string) string {
	return filepath.Join(w.Root, scanID)
}

// Write renders the requested formats and returns the files written. Unknown
// formats are ignored. A PDF failure is logged and does not discard the HTML.
func (w *Writer) Write(ctx context.Context, d Data, formats []string) ([]string, error) {
	wantHTML, wantPDF := false, false
	for _, f := range formats {
		switch strings.ToLower(f) {
		case FormatHTML:
			wantHTML = true
		case FormatPDF:
			wantPDF = true
		}
	}
	if !wantHTML && !wantPDF {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := RenderHTML(&buf, d); err != nil {
		return nil, err
	}
	dir := w.Dir(d.Run.ScanID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	var written []string
	if wantHTML {
		p := filepath.Join(dir, htmlName)
		if err := blobstore.AtomicWriteFile(p, buf.Bytes(), 0o644); err != nil {
			return written, err
		}
		written = append(written, p)
	}

	if wantPDF && w.PDF != nil {
		pdf, err := w.PDF(ctx, buf.Bytes())
		if err != nil {
			w.logger.Warn("pdf export failed", logging.F("scan_id", d.Run.ScanID), logging.Err(err))
			return written, nil
		}
		p := filepath.Join(dir, pdfName)
		if err := blobstore.AtomicWriteFile(p, pdf, 0o644); err != nil {
			return written, err
		}
		written = append(written, p)
	}

	w.logger.Info("report written", logging.F("scan_id", d.Run.ScanID), logging.F("files", len(written)))
	return written, nil
}

// ReadSummary parses the summary back out of a scan's HTML report.
func (w *Writer) ReadSummary(scanID string) (model.SummaryDocument, error) {
	f, err := os.Open(filepath.Join(w.Dir(scanID), htmlName))
	if err != nil {
		return model.SummaryDocument{}, err
	}
	defer f.Close()
	return ParseSummary(f)
}

// Remove deletes the report directory of a scan.
func (w *Writer) Remove(scanID string) error {
	if scanID == "" || strings.ContainsAny(scanID, `/\`) {
		return fmt.Errorf("invalid scan id %q", scanID)
	}
	return os.RemoveAll(w.Dir(scanID))
}
