package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/secscan/internal/blobstore"
	"github.com/raysh454/secscan/internal/config"
	"github.com/raysh454/secscan/internal/dispatch"
	"github.com/raysh454/secscan/internal/history"
	"github.com/raysh454/secscan/internal/inspect"
	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/model"
	"github.com/raysh454/secscan/internal/report"
	"github.com/raysh454/secscan/internal/runner"
	"github.com/raysh454/secscan/internal/summary"
)

var (
	ErrClosed            = errors.New("orchestrator is closed")
	ErrTargetNotFound    = errors.New("scan target not found")
	ErrTargetOutsideBase = errors.New("scan target outside base root")
	ErrInvalidScanID     = errors.New("invalid scan id")
	ErrResultNotFound    = errors.New("result file not found")
	ErrNoHistory         = errors.New("scan history is not enabled")
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress: one settled scanner outcome.
	Processed int                   `json:"processed,omitempty"`
	Total     int                   `json:"total,omitempty"`
	Outcome   *model.ScannerOutcome `json:"outcome,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

type Job struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"` // "scan"
	ScanID    string        `json:"scan_id"`
	Target    string        `json:"target"`
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Events    chan JobEvent `json:"-"`

	Result *ScanReport `json:"result,omitempty"`
}

// ScanRequest describes one scan to run.
type ScanRequest struct {
	Config *config.ScanConfiguration

	// Target overrides Config.Target.Path.
	Target string

	// ScanID is generated when empty.
	ScanID string

	// ResultsDir overrides ResultsRoot/<scan id>.
	ResultsDir string
}

// ScanReport is what a finished scan reports back to its caller.
type ScanReport struct {
	ScanID           string                 `json:"scan_id"`
	Status           model.RunStatus        `json:"status"`
	ExitCode         int                    `json:"exit_code"`
	ResultsDir       string                 `json:"results_dir"`
	ResultsGenerated []string               `json:"results_generated"`
	SummaryPath      string                 `json:"summary_path,omitempty"`
	Summary          model.SummaryDocument  `json:"summary"`
	Degraded         []model.ScannerOutcome `json:"degraded_scanners"`
	Reports          []string               `json:"reports,omitempty"`
	Run              model.RunResult        `json:"run"`
}

// ResultFile is one file in a scan's results directory.
type ResultFile struct {
	Name      string          `json:"name"`
	Scanner   model.ScannerID `json:"scanner"`
	SizeBytes int64           `json:"size_bytes"`
}

type Orchestrator struct {
	cfg     *Config
	history *history.Store
	blobs   *blobstore.Blobstore
	reports *report.Writer
	exec    runner.Executor
	logger  logging.Logger

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	closed     bool
	wg         sync.WaitGroup
}

// NewOrchestrator ties together config, scan history, the process executor
// and logger. hist may be nil, in which case scans are not recorded. exec
// nil means real processes.
func NewOrchestrator(cfg *Config, hist *history.Store, exec runner.Executor, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	if exec == nil {
		exec = runner.NewExecExecutor(logger)
	}
	o := &Orchestrator{
		cfg:     cfg,
		history: hist,
		exec:    exec,
		logger:  logger.With(logging.F("component", "orchestrator")),
	}
	if hist != nil {
		bs, err := blobstore.New(cfg.BlobDir())
		if err != nil {
			o.logger.Warn("summary archive disabled", logging.Err(err))
		} else {
			o.blobs = bs
		}
	}
	if cfg.ReportsRoot != "" {
		o.reports = report.NewWriter(cfg.ReportsRoot, logger)
	}
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() *Config {
	return o.cfg
}

// ─── Scans ────────────────────────────────────────────────────────────

// RunScan runs one scan to completion: dispatch, summary, archive, reports,
// history. A canceled ctx still yields the partial report together with the
// context error.
func (o *Orchestrator) RunScan(ctx context.Context, req ScanRequest, sink dispatch.OutcomeSink) (*ScanReport, error) {
	if req.Config == nil {
		return nil, fmt.Errorf("%w: missing scan configuration", config.ErrConfigInvalid)
	}
	scanID := req.ScanID
	if scanID == "" {
		scanID = uuid.New().String()
	}
	if !validScanID(scanID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScanID, scanID)
	}
	target := req.Target
	if target == "" {
		target = req.Config.Target.Path
	}
	target, err := o.resolveTarget(target)
	if err != nil {
		return nil, err
	}
	if err := o.checkScanIDFree(ctx, scanID); err != nil {
		return nil, err
	}

	log := o.logger.With(logging.F("scan_id", scanID))
	comps, err := NewScanComponents(o.cfg, o.exec, scanID, req.ResultsDir, sink, o.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			log.Warn("cleaning up scan", logging.Err(err))
		}
	}()

	// Bookkeeping outlives a canceled run.
	bg := context.WithoutCancel(ctx)

	if o.history != nil {
		raw, _ := json.Marshal(req.Config)
		err := o.history.Begin(bg, history.Scan{
			ID:            scanID,
			Target:        target,
			ResultsDir:    comps.ResultsDir,
			Config:        string(raw),
			RetentionDays: req.Config.Output.RetentionDays,
		})
		if err != nil {
			return nil, fmt.Errorf("record scan: %w", err)
		}
	}

	run, runErr := comps.Coordinator.Run(ctx, req.Config, target)

	status := string(run.Status())
	if runErr != nil {
		status = history.StatusCanceled
	}

	doc, err := summary.Summarize(comps.ResultsDir, summary.Options{ScanID: scanID, Status: status, Logger: o.logger})
	if err != nil {
		log.Warn("summarizing results", logging.Err(err))
		doc = model.SummaryDocument{
			Metadata: model.SummaryMetadata{TimestampUTC: time.Now().UTC().Format(time.RFC3339), ScanID: scanID, Status: status},
			Entries:  map[string]model.SummaryEntry{},
		}
	}
	summaryPath, err := summary.Write(comps.ResultsDir, doc)
	if err != nil {
		log.Warn("writing summary", logging.Err(err))
		summaryPath = ""
	}

	var blobID string
	if o.blobs != nil {
		if data, err := summary.Encode(doc); err == nil {
			if blobID, err = o.blobs.Put(data); err != nil {
				log.Warn("archiving summary", logging.Err(err))
			}
		}
	}

	var reports []string
	if o.reports != nil {
		reports, err = o.reports.Write(bg, report.Data{Run: run, Summary: doc}, req.Config.Output.Formats)
		if err != nil {
			log.Warn("writing reports", logging.Err(err))
		}
	}

	if o.history != nil {
		histStatus := ""
		if runErr != nil {
			histStatus = history.StatusCanceled
		}
		if err := o.history.Finish(bg, run, histStatus, blobID, doc.TotalFindings()); err != nil {
			log.Warn("recording scan outcome", logging.Err(err))
		}
	}

	rep := &ScanReport{
		ScanID:           scanID,
		Status:           run.Status(),
		ExitCode:         run.ExitCode(),
		ResultsDir:       comps.ResultsDir,
		ResultsGenerated: []string{},
		SummaryPath:      summaryPath,
		Summary:          doc,
		Degraded:         run.Degraded(),
		Reports:          reports,
		Run:              run,
	}
	for _, k := range doc.Keys() {
		rep.ResultsGenerated = append(rep.ResultsGenerated, doc.Entries[k].File)
	}
	sort.Strings(rep.ResultsGenerated)

	log.Info("scan finished",
		logging.F("status", status),
		logging.F("findings", doc.TotalFindings()),
		logging.F("artifacts", len(rep.ResultsGenerated)))
	return rep, runErr
}

// resolveTarget makes target absolute, confines it to BaseRoot when one is
// configured and checks that it exists.
func (o *Orchestrator) resolveTarget(target string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", fmt.Errorf("%w: no target given", ErrTargetNotFound)
	}
	if o.cfg.BaseRoot != "" {
		if !filepath.IsAbs(target) {
			target = filepath.Join(o.cfg.BaseRoot, target)
		}
		rel, err := filepath.Rel(o.cfg.BaseRoot, filepath.Clean(target))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrTargetOutsideBase, target)
		}
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: %s", ErrTargetNotFound, abs)
	}
	return abs, nil
}

// checkScanIDFree rejects an id already in history so a rerun cannot reuse
// (and clobber) an earlier scan's results directory.
func (o *Orchestrator) checkScanIDFree(ctx context.Context, scanID string) error {
	if o.history == nil {
		return nil
	}
	exists, err := o.history.Exists(ctx, scanID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", history.ErrScanExists, scanID)
	}
	return nil
}

func validScanID(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, `/\`+"\x00")
}

// ─── Jobs ─────────────────────────────────────────────────────────────

func (o *Orchestrator) ensureJobMaps() {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if o.jobs == nil {
		o.jobs = make(map[string]*Job)
	}
	if o.jobCancels == nil {
		o.jobCancels = make(map[string]context.CancelFunc)
	}
}

func (o *Orchestrator) newJob(jobType, scanID, target string) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		ScanID:    scanID,
		Target:    target,
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
		Events:    make(chan JobEvent, 32),
	}
}

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	job, ok := o.jobs[jobID]
	o.jobsMu.Unlock()
	if !ok || job == nil || job.Events == nil {
		return
	}

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setJob(job *Job) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if o.jobs == nil {
		o.jobs = make(map[string]*Job)
	}
	o.jobs[job.ID] = job
}

func (o *Orchestrator) setCancel(jobID string, cancel context.CancelFunc) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if o.jobCancels == nil {
		o.jobCancels = make(map[string]context.CancelFunc)
	}
	o.jobCancels[jobID] = cancel
}

func (o *Orchestrator) deleteCancel(jobID string) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	delete(o.jobCancels, jobID)
}

func (o *Orchestrator) getCancel(jobID string) context.CancelFunc {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	return o.jobCancels[jobID]
}

func (o *Orchestrator) setStatus(jobID string, status JobStatus, errMsg string) {
	o.jobsMu.Lock()
	if j, ok := o.jobs[jobID]; ok {
		j.Status = status
		j.Error = errMsg
	}
	o.jobsMu.Unlock()
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: status, Error: errMsg})
}

// progressCallback turns settled outcomes into progress events.
func (o *Orchestrator) progressCallback(jobID string, total int) dispatch.OutcomeSink {
	var processed int
	return func(out model.ScannerOutcome) {
		processed++
		o.emitJobEvent(jobID, JobEvent{
			JobID:     jobID,
			Type:      JobEventProgress,
			Processed: processed,
			Total:     total,
			Outcome:   &out,
		})
	}
}

// StartScanJob runs req in the background. Progress arrives on job.Events,
// which is closed when the job ends.
func (o *Orchestrator) StartScanJob(ctx context.Context, req ScanRequest) (*Job, error) {
	if req.Config == nil {
		return nil, fmt.Errorf("%w: missing scan configuration", config.ErrConfigInvalid)
	}
	if req.ScanID == "" {
		req.ScanID = uuid.New().String()
	}
	if !validScanID(req.ScanID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScanID, req.ScanID)
	}
	target := req.Target
	if target == "" {
		target = req.Config.Target.Path
	}
	resolved, err := o.resolveTarget(target)
	if err != nil {
		return nil, err
	}
	if err := o.checkScanIDFree(ctx, req.ScanID); err != nil {
		return nil, err
	}
	req.Target = resolved

	o.ensureJobMaps()
	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		return nil, ErrClosed
	}
	o.wg.Add(1)
	o.jobsMu.Unlock()

	job := o.newJob("scan", req.ScanID, resolved)
	o.setJob(job)

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.setCancel(job.ID, cancel)

	o.emitJobEvent(job.ID, JobEvent{JobID: job.ID, Type: JobEventStatus, Status: JobPending})

	// Plan size counts CodeQL once even when it reports several languages.
	total := len(dispatch.Plan(req.Config))
	snapshot := *job

	go func() {
		defer o.wg.Done()
		defer func() {
			cancel()
			o.jobsMu.Lock()
			j := o.jobs[job.ID]
			if j != nil {
				j.EndedAt = time.Now().UTC()
			}
			o.jobsMu.Unlock()
			o.deleteCancel(job.ID)

			// Close events channel so websocket loop can terminate cleanly
			if j != nil && j.Events != nil {
				close(j.Events)
			}
			o.scheduleForget(job.ID)
		}()

		o.setStatus(job.ID, JobRunning, "")

		rep, err := o.RunScan(jobCtx, req, o.progressCallback(job.ID, total))
		if rep != nil {
			o.jobsMu.Lock()
			if j, ok := o.jobs[job.ID]; ok {
				j.Result = rep
			}
			o.jobsMu.Unlock()
		}

		select {
		case <-jobCtx.Done():
			if err == nil {
				err = jobCtx.Err()
			}
			o.setStatus(job.ID, JobCanceled, err.Error())
			return
		default:
		}
		if err != nil {
			o.setStatus(job.ID, JobFailed, err.Error())
			return
		}

		final := JobDone
		if rep.Status != model.RunCompleted {
			final = JobFailed
		}
		o.jobsMu.Lock()
		if j, ok := o.jobs[job.ID]; ok {
			j.Status = final
		}
		o.jobsMu.Unlock()
		o.emitJobEvent(job.ID, JobEvent{JobID: job.ID, Type: JobEventResult, Status: final})
	}()

	return &snapshot, nil
}

// scheduleForget drops a finished job from memory after JobRetentionTime.
func (o *Orchestrator) scheduleForget(jobID string) {
	if o.cfg.JobRetentionTime <= 0 {
		return
	}
	time.AfterFunc(o.cfg.JobRetentionTime, func() {
		o.jobsMu.Lock()
		defer o.jobsMu.Unlock()
		delete(o.jobs, jobID)
	})
}

func (o *Orchestrator) CancelJob(jobID string) {
	cancel := o.getCancel(jobID)
	if cancel != nil {
		cancel()
	}
}

// GetJob returns a snapshot of the job, or nil.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

// ListJobs returns known jobs, newest first.
func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	out := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		cp := *j
		out = append(out, &cp)
	}
	o.jobsMu.Unlock()
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out
}

// Close cancels running jobs and waits for them to settle. It is safe to
// call more than once.
func (o *Orchestrator) Close() {
	o.jobsMu.Lock()
	o.closed = true
	cancels := make([]context.CancelFunc, 0, len(o.jobCancels))
	for _, c := range o.jobCancels {
		cancels = append(cancels, c)
	}
	o.jobsMu.Unlock()

	for _, c := range cancels {
		c()
	}
	o.wg.Wait()
}

// DefaultScanConfig inspects target and generates the configuration a scan
// of it would use when the caller supplies none.
func (o *Orchestrator) DefaultScanConfig(target string) (*config.ScanConfiguration, error) {
	resolved, err := o.resolveTarget(target)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTargetNotFound, err)
	}
	if !info.IsDir() {
		return config.Default(config.TargetFile, resolved, nil), nil
	}
	report, err := inspect.New(o.logger).Inspect(resolved)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", resolved, err)
	}
	kind := config.TargetDirectory
	if _, err := os.Stat(filepath.Join(resolved, ".git")); err == nil {
		kind = config.TargetRepository
	}
	return config.Default(kind, resolved, &report), nil
}

// ─── History ──────────────────────────────────────────────────────────

// ScanDetails is a recorded scan with its outcomes.
type ScanDetails struct {
	history.Scan
	Outcomes []model.ScannerOutcome `json:"outcomes"`
}

func (o *Orchestrator) ListScans(ctx context.Context, limit int) ([]history.Scan, error) {
	if o.history == nil {
		return nil, ErrNoHistory
	}
	return o.history.List(ctx, limit)
}

func (o *Orchestrator) GetScan(ctx context.Context, scanID string) (*ScanDetails, error) {
	if o.history == nil {
		return nil, ErrNoHistory
	}
	sc, err := o.history.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}
	outs, err := o.history.Outcomes(ctx, scanID)
	if err != nil {
		return nil, err
	}
	return &ScanDetails{Scan: *sc, Outcomes: outs}, nil
}

// GetSummary returns a scan's summary, preferring the archived copy so the
// document survives cleanup of the results directory.
func (o *Orchestrator) GetSummary(ctx context.Context, scanID string) (model.SummaryDocument, error) {
	sc, err := o.lookup(ctx, scanID)
	if err != nil {
		return model.SummaryDocument{}, err
	}
	if sc.SummaryBlob != "" && o.blobs != nil {
		rc, err := o.blobs.GetReader(sc.SummaryBlob)
		if err == nil {
			var doc model.SummaryDocument
			err = json.NewDecoder(rc).Decode(&doc)
			rc.Close()
			if err == nil {
				return doc, nil
			}
		}
		o.logger.Warn("archived summary unreadable, falling back to results dir",
			logging.F("scan_id", scanID), logging.F("blob", sc.SummaryBlob))
	}
	doc, err := summary.Load(filepath.Join(sc.ResultsDir, summary.FileName))
	if errors.Is(err, os.ErrNotExist) {
		if doc, ok := o.summaryFromReport(sc); ok {
			return doc, nil
		}
		return model.SummaryDocument{}, fmt.Errorf("%w: %s", ErrResultNotFound, summary.FileName)
	}
	return doc, err
}

// summaryFromReport recovers the findings table from the scan's HTML report
// once neither the archive nor the results directory has a summary.
func (o *Orchestrator) summaryFromReport(sc *history.Scan) (model.SummaryDocument, bool) {
	if o.reports == nil || !validScanID(sc.ID) {
		return model.SummaryDocument{}, false
	}
	doc, err := o.reports.ReadSummary(sc.ID)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			o.logger.Warn("reading html report", logging.F("scan_id", sc.ID), logging.Err(err))
		}
		return model.SummaryDocument{}, false
	}
	if sc.Status != "" {
		doc.Metadata.Status = sc.Status
	}
	o.logger.Info("summary rebuilt from html report", logging.F("scan_id", sc.ID), logging.F("entries", len(doc.Entries)))
	return doc, true
}

// ListResults lists the files in a scan's results directory.
func (o *Orchestrator) ListResults(ctx context.Context, scanID string) ([]ResultFile, error) {
	sc, err := o.lookup(ctx, scanID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(sc.ResultsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ResultFile{}, nil
		}
		return nil, err
	}
	out := []ResultFile{}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		rf := ResultFile{Name: e.Name(), SizeBytes: info.Size()}
		if e.Name() != summary.FileName {
			rf.Scanner = model.ParseArtifactName(e.Name()).Scanner
		}
		out = append(out, rf)
	}
	return out, nil
}

// ResultPath resolves one file inside a scan's results directory.
func (o *Orchestrator) ResultPath(ctx context.Context, scanID, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrResultNotFound, name)
	}
	sc, err := o.lookup(ctx, scanID)
	if err != nil {
		return "", err
	}
	p := filepath.Join(sc.ResultsDir, name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrResultNotFound, name)
	}
	return p, nil
}

// Diff compares the summaries of two scans.
func (o *Orchestrator) Diff(ctx context.Context, baseID, headID string) (*summary.Comparison, error) {
	base, err := o.GetSummary(ctx, baseID)
	if err != nil {
		return nil, fmt.Errorf("base %s: %w", baseID, err)
	}
	head, err := o.GetSummary(ctx, headID)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", headID, err)
	}
	c, err := summary.Compare(base, head)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// PruneExpired deletes scans past their retention window: results, reports,
// archived summary and history rows. It returns the number pruned.
func (o *Orchestrator) PruneExpired(ctx context.Context, now time.Time) (int, error) {
	if o.history == nil {
		return 0, ErrNoHistory
	}
	expired, err := o.history.Expired(ctx, now)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, sc := range expired {
		log := o.logger.With(logging.F("scan_id", sc.ID))
		if sc.ResultsDir != "" {
			if err := os.RemoveAll(sc.ResultsDir); err != nil {
				log.Warn("removing results dir", logging.Err(err))
				continue
			}
		}
		if o.reports != nil && validScanID(sc.ID) {
			if err := o.reports.Remove(sc.ID); err != nil {
				log.Warn("removing reports", logging.Err(err))
			}
		}
		if sc.SummaryBlob != "" && o.blobs != nil {
			if err := o.blobs.Delete(sc.SummaryBlob); err != nil {
				log.Warn("removing archived summary", logging.Err(err))
			}
		}
		if err := o.history.Delete(ctx, sc.ID); err != nil {
			log.Warn("removing history row", logging.Err(err))
			continue
		}
		pruned++
	}
	if pruned > 0 {
		o.logger.Info("pruned expired scans", logging.F("count", pruned))
	}
	return pruned, nil
}

func (o *Orchestrator) lookup(ctx context.Context, scanID string) (*history.Scan, error) {
	if o.history == nil {
		return nil, ErrNoHistory
	}
	if !validScanID(scanID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScanID, scanID)
	}
	return o.history.Get(ctx, scanID)
}
