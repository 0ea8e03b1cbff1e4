package app

import (
	"context"
	"errors"
	"time"

	"github.com/raysh454/secscan/internal/cli"
	"github.com/raysh454/secscan/internal/config"
	"github.com/raysh454/secscan/internal/dispatch"
	"github.com/raysh454/secscan/internal/logging"
)

// Exit codes of the dispatcher process.
const (
	ExitOK            = 0
	ExitNoArtifacts   = 1
	ExitConfigInvalid = 2
)

// Scanner is the part of the orchestrator a single CLI run needs. Keep it
// small so tests can provide a stub.
type Scanner interface {
	RunScan(ctx context.Context, req ScanRequest, sink dispatch.OutcomeSink) (*ScanReport, error)

	// Close attempts graceful shutdown.
	Close()
}

// Application is the global runtime state container.
// It holds config, parsed CLI args and the core services that are shared
// across modules (orchestrator, logger). Pass Application into modules that
// need access to the global state rather than using package-level variables.
type Application struct {
	Config *Config
	Args   *cli.CLIArgs

	Logger logging.Logger
	Orch   Scanner

	// internal context for cancellation / lifecycle
	ctx    context.Context
	cancel context.CancelFunc
}

// NewApplication constructs an Application from the provided parts.
// Keep the constructor simple: pass already-constructed parts so this function
// is easy to test and does not import heavy dependencies.
func NewApplication(cfg *Config, args *cli.CLIArgs, logger logging.Logger, orch Scanner) *Application {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = logging.Nop{}
	}

	return &Application{
		Config: cfg,
		Args:   args,
		Logger: logger,
		Orch:   orch,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run loads the scan configuration, runs one scan and maps the outcome to a
// process exit code: 0 when any artifact was produced, 1 when none was, 2
// when the configuration is unusable.
func (a *Application) Run(ctx context.Context) (int, *ScanReport, error) {
	if a == nil || a.Args == nil || a.Orch == nil {
		return ExitConfigInvalid, nil, errors.New("application is not wired")
	}

	scanCfg, err := config.Load(a.Args.ConfigPath)
	if err != nil {
		a.Logger.Error("loading scan configuration", logging.F("path", a.Args.ConfigPath), logging.Err(err))
		return ExitConfigInvalid, nil, err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-a.ctx.Done():
			stop()
		case <-runCtx.Done():
		}
	}()

	a.Logger.Info("application starting",
		logging.F("config", a.Args.ConfigPath),
		logging.F("target", a.Args.Target),
		logging.F("results", a.Args.ResultsDir))

	rep, err := a.Orch.RunScan(runCtx, ScanRequest{
		Config:     scanCfg,
		Target:     a.Args.Target,
		ScanID:     a.Args.ScanID,
		ResultsDir: a.Args.ResultsDir,
	}, nil)
	if rep == nil {
		if err == nil {
			err = errors.New("scan produced no report")
		}
		a.Logger.Error("scan did not run", logging.Err(err))
		if errors.Is(err, config.ErrConfigInvalid) {
			return ExitConfigInvalid, nil, err
		}
		return ExitNoArtifacts, nil, err
	}
	if err != nil {
		a.Logger.Warn("scan interrupted", logging.Err(err))
	}

	for _, d := range rep.Degraded {
		a.Logger.Warn("scanner degraded",
			logging.F("scanner", d.Name()),
			logging.F("status", string(d.Status())),
			logging.F("reason", string(d.Reason)))
	}
	a.Logger.Info("scan complete",
		logging.F("scan_id", rep.ScanID),
		logging.F("status", string(rep.Status)),
		logging.F("summary", rep.SummaryPath),
		logging.F("findings", rep.Summary.TotalFindings()))
	return rep.ExitCode, rep, err
}

// Shutdown attempts a graceful shutdown, delegating to the orchestrator first.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	// cancel internal ctx so an in-flight Run stops its scanners
	a.cancel()

	done := make(chan struct{})
	go func() {
		if a.Orch != nil {
			a.Orch.Close()
		}
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		a.Logger.Warn("orchestrator shutdown timed out")
		return shutdownCtx.Err()
	}
}
