package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raysh454/secscan/internal/config"
	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/model"
	"github.com/raysh454/secscan/internal/scanner"
)

// Module: dispatch
// Resolves which scanners apply and drives each to a settled outcome.

// Invoker runs scanners. *scanner.Engine is the real implementation.
type Invoker interface {
	Invoke(ctx context.Context, id model.ScannerID, target scanner.Target, opts config.ScannerConfig) model.ScannerOutcome
	InvokeMultiLang(ctx context.Context, target scanner.Target, opts config.ScannerConfig, report model.DetectionReport) []model.ScannerOutcome
}

// Inspector classifies a target tree. *inspect.Inspector is the real one.
type Inspector interface {
	Inspect(targetPath string) (model.DetectionReport, error)
}

// OutcomeSink receives each outcome as it settles. Calls are serialized.
type OutcomeSink func(model.ScannerOutcome)

type Options struct {
	ScanID string

	// MaxConcurrency bounds parallel scanner invocations; <= 0 means NumCPU.
	MaxConcurrency int

	Sink OutcomeSink
}

// Coordinator is the run coordinator.
type Coordinator struct {
	invoker   Invoker
	inspector Inspector
	logger    logging.Logger
	opts      Options

	sinkMu sync.Mutex
}

// New creates a Coordinator. inspector may be nil, in which case detection
// reports are always empty.
func New(invoker Invoker, inspector Inspector, logger logging.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = logging.Nop{}
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = runtime.NumCPU()
	}
	return &Coordinator{
		invoker:   invoker,
		inspector: inspector,
		logger:    logger.With(logging.F("component", "dispatch"), logging.F("scan_id", opts.ScanID)),
		opts:      opts,
	}
}

// Plan lists the scanners that will run, in declared order.
func Plan(cfg *config.ScanConfiguration) []model.ScannerID {
	var plan []model.ScannerID
	for _, id := range model.DeclaredOrder {
		if cfg.Enabled(id) {
			plan = append(plan, id)
		}
	}
	return plan
}

// Run invokes every enabled scanner against target and aggregates the
// outcomes. An empty target falls back to cfg.Target.Path. The returned
// error is non-nil only when ctx was canceled; the partial result is still
// returned with the remaining scanners recorded as canceled.
func (c *Coordinator) Run(ctx context.Context, cfg *config.ScanConfiguration, target string) (model.RunResult, error) {
	started := time.Now().UTC()
	if target == "" {
		target = cfg.Target.Path
	}

	plan := Plan(cfg)
	c.logger.Info("run starting",
		logging.F("target", target),
		logging.F("auto_detect", cfg.AutoDetect),
		logging.F("scanners", planNames(plan)))
	if len(plan) == 0 {
		c.logger.Warn("no scanners enabled")
	}

	var detection *model.DetectionReport
	if c.needsDetection(cfg, plan) {
		report := c.detect(target)
		detection = &report
		if cfg.AutoDetect {
			c.logRelevance(plan, report)
		}
	}

	st := scanner.Target{Root: target, Scope: cfg.Scope}
	slots := make([][]model.ScannerOutcome, len(plan))

	var g errgroup.Group
	g.SetLimit(c.opts.MaxConcurrency)
	for i, id := range plan {
		if ctx.Err() != nil {
			slots[i] = c.settle(canceled(id))
			continue
		}
		g.Go(func() error {
			slots[i] = c.invoke(ctx, id, st, cfg.Scanner(id), detection)
			return nil
		})
	}
	_ = g.Wait()

	var outcomes []model.ScannerOutcome
	for _, s := range slots {
		outcomes = append(outcomes, s...)
	}

	result := model.NewRunResult(c.opts.ScanID, target, outcomes)
	result.StartedAt = started
	result.EndedAt = time.Now().UTC()
	result.Detection = detection

	c.logger.Info("run settled",
		logging.F("status", string(result.Status())),
		logging.F("outcomes", len(result.Outcomes)),
		logging.F("degraded", len(result.Degraded())),
		logging.F("any_artifact", result.AnyArtifactProduced),
		logging.F("duration_ms", result.EndedAt.Sub(started).Milliseconds()))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// invoke runs one planned scanner. A panic becomes a failed outcome.
func (c *Coordinator) invoke(ctx context.Context, id model.ScannerID, target scanner.Target, opts config.ScannerConfig, detection *model.DetectionReport) (outs []model.ScannerOutcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("scanner panicked",
				logging.F("scanner", string(id)),
				logging.F("panic", fmt.Sprint(r)),
				logging.F("stack", string(debug.Stack())))
			outs = c.settle(model.FailedOutcome(id, "", model.ReasonPanic, fmt.Sprint(r)))
		}
	}()

	// Checkpoint: the slot may have been acquired after cancellation.
	if ctx.Err() != nil {
		return c.settle(canceled(id))
	}

	if id == model.CodeQL {
		var report model.DetectionReport
		if detection != nil {
			report = *detection
		}
		return c.settle(c.invoker.InvokeMultiLang(ctx, target, opts, report)...)
	}
	return c.settle(c.invoker.Invoke(ctx, id, target, opts))
}

// settle hands outcomes to the sink and returns them.
func (c *Coordinator) settle(outs ...model.ScannerOutcome) []model.ScannerOutcome {
	if c.opts.Sink != nil {
		c.sinkMu.Lock()
		for _, o := range outs {
			c.opts.Sink(o)
		}
		c.sinkMu.Unlock()
	}
	return outs
}

func (c *Coordinator) needsDetection(cfg *config.ScanConfiguration, plan []model.ScannerID) bool {
	if cfg.AutoDetect {
		return true
	}
	for _, id := range plan {
		if id == model.CodeQL && autoLanguages(cfg.Scanner(id)) {
			return true
		}
	}
	return false
}

func (c *Coordinator) detect(target string) model.DetectionReport {
	if c.inspector == nil {
		return model.DetectionReport{}
	}
	report, err := c.inspector.Inspect(target)
	if err != nil {
		c.logger.Warn("inspecting target failed, continuing without detection", logging.Err(err))
		return model.DetectionReport{}
	}
	return report
}

// logRelevance notes auto-enabled scanners with no matching signal in the
// target. Detection never removes a scanner from the plan.
func (c *Coordinator) logRelevance(plan []model.ScannerID, report model.DetectionReport) {
	for _, id := range plan {
		if signal, ok := relevant(id, report); !ok {
			c.logger.Info("scanner auto-enabled without a matching signal",
				logging.F("scanner", string(id)),
				logging.F("expected", signal))
		}
	}
}

func relevant(id model.ScannerID, r model.DetectionReport) (string, bool) {
	switch id {
	case model.Semgrep, model.CodeQL, model.Noir:
		return "source files", len(r.Languages) > 0
	case model.OSVScanner, model.Syft:
		return "dependency manifest", r.HasDependencyManifest
	case model.Trivy:
		return "container or dependency manifest", r.HasContainerManifest || r.HasDependencyManifest
	}
	return "", true
}

func autoLanguages(opts config.ScannerConfig) bool {
	langs := opts.Strings("languages")
	if len(langs) == 0 {
		return true
	}
	for _, l := range langs {
		if strings.EqualFold(l, "auto") {
			return true
		}
	}
	return false
}

func canceled(id model.ScannerID) model.ScannerOutcome {
	return model.FailedOutcome(id, "", model.ReasonCanceled, "run canceled before scanner started")
}

func planNames(plan []model.ScannerID) []string {
	out := make([]string, len(plan))
	for i, id := range plan {
		out[i] = string(id)
	}
	return out
}
