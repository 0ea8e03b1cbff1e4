// Package scanner invokes the external security tools and classifies each
// invocation as a tri-state outcome.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/raysh454/secscan/internal/config"
	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/model"
	"github.com/raysh454/secscan/internal/runner"
)

const (
	containerSrc     = "/src"
	containerResults = "/results"
	containerRules   = "/rules"

	preflightTimeout = 30 * time.Second
	outputTailBytes  = 4096
)

// Settings are fixed for one run.
type Settings struct {
	// Runtime is the container runtime CLI ("docker", "podman").
	Runtime string

	// RuntimeSocket is mounted for trivy image scans.
	RuntimeSocket string

	// ResultsDir is the host directory artifacts are written to.
	ResultsDir string

	ScanID string

	// Images overrides the default image per scanner.
	Images map[model.ScannerID]string

	// Timeout bounds each invocation unless a scanner sets `timeout`.
	Timeout time.Duration

	// CodeQLBinary is the CodeQL CLI executable.
	CodeQLBinary string

	// WorkDir holds CodeQL databases and scratch build output.
	WorkDir string
}

// Target is the filesystem target plus the scope narrowing it.
type Target struct {
	Root  string
	Scope config.Scope
}

// Engine is the scanner invocation engine.
type Engine struct {
	exec     runner.Executor
	settings Settings
	logger   logging.Logger
}

// NewEngine fills unset settings with defaults.
func NewEngine(exec runner.Executor, settings Settings, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Nop{}
	}
	if settings.Runtime == "" {
		settings.Runtime = "docker"
	}
	if settings.RuntimeSocket == "" {
		settings.RuntimeSocket = "/var/run/docker.sock"
	}
	if settings.CodeQLBinary == "" {
		settings.CodeQLBinary = "codeql"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = time.Hour
	}
	if settings.WorkDir == "" {
		settings.WorkDir = os.TempDir()
	}
	return &Engine{exec: exec, settings: settings, logger: logger.With(logging.F("component", "scanner"))}
}

// Settings returns the effective settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

// ArtifactPath is the host path of a scanner's artifact for this run.
func (e *Engine) ArtifactPath(id model.ScannerID, language string) string {
	return filepath.Join(e.settings.ResultsDir, model.ArtifactName(id, e.settings.ScanID, language))
}

// Preflight verifies the container runtime CLI exists and its daemon answers.
func (e *Engine) Preflight(ctx context.Context) error {
	if _, err := e.exec.LookPath(e.settings.Runtime); err != nil {
		return fmt.Errorf("%s not installed: %w", e.settings.Runtime, err)
	}
	res := e.exec.Run(ctx, runner.Command{
		Name:    e.settings.Runtime,
		Args:    []string{"info", "--format", "{{.ServerVersion}}"},
		Timeout: preflightTimeout,
	})
	if !res.Succeeded() {
		return fmt.Errorf("%s daemon unreachable: %s", e.settings.Runtime, tail(res.Output, 512))
	}
	return nil
}

// Invoke runs one isolated-process scanner. It never returns an error: every
// failure is folded into the outcome.
func (e *Engine) Invoke(ctx context.Context, id model.ScannerID, target Target, opts config.ScannerConfig) model.ScannerOutcome {
	log := e.logger.With(logging.F("scanner", string(id)), logging.F("scan_id", e.settings.ScanID))
	spec, ok := specs[id]
	if !ok {
		return model.FailedOutcome(id, "", model.ReasonInvocationFault, "not an isolated-process scanner")
	}

	if err := e.Preflight(ctx); err != nil {
		log.Warn("container runtime unavailable, skipping scanner", logging.Err(err))
		return model.FailedOutcome(id, "", model.ReasonRuntimeUnavailable, err.Error())
	}

	layout, err := resolveLayout(target)
	if err != nil {
		log.Warn("resolving target", logging.Err(err))
		return model.FailedOutcome(id, "", model.ReasonInvocationFault, err.Error())
	}

	artifactName := model.ArtifactName(id, e.settings.ScanID, "")
	hostArtifact := filepath.Join(e.settings.ResultsDir, artifactName)
	if err := removeStaleArtifact(hostArtifact); err != nil {
		log.Warn("removing stale artifact", logging.F("path", hostArtifact), logging.Err(err))
		return model.FailedOutcome(id, "", model.ReasonInvocationFault, err.Error())
	}
	inv := invocation{
		opts:     opts,
		layout:   layout,
		artifact: containerResults + "/" + artifactName,
		socket:   e.settings.RuntimeSocket,
	}
	toolArgs, mounts, err := spec.build(&inv)
	if err != nil {
		log.Warn("building command", logging.Err(err))
		return model.FailedOutcome(id, "", model.ReasonInvocationFault, err.Error())
	}
	for _, n := range inv.notes {
		log.Info(n)
	}
	toolArgs = append(toolArgs, opts.Strings("extra_args")...)

	image := opts.String("image", e.image(id, spec))
	name := containerName(id, e.settings.ScanID)
	args := []string{"run", "--rm", "--name", name,
		"-v", layout.mountRoot + ":" + containerSrc + ":ro",
		"-v", e.settings.ResultsDir + ":" + containerResults,
	}
	for _, m := range mounts {
		v := m.host + ":" + m.container
		if m.readOnly {
			v += ":ro"
		}
		args = append(args, "-v", v)
	}
	args = append(args, image)
	args = append(args, toolArgs...)

	cmd := runner.Command{
		Name:     e.settings.Runtime,
		Args:     args,
		Timeout:  opts.Duration("timeout", e.settings.Timeout),
		KillHook: &runner.Command{Name: e.settings.Runtime, Args: []string{"kill", name}},
	}

	log.Info("invoking scanner", logging.F("image", image), logging.F("target", layout.mountRoot))
	started := time.Now().UTC()
	res := e.exec.Run(ctx, cmd)

	out := classify(id, "", res, hostArtifact)
	out.StartedAt = started
	e.logOutcome(log, out)
	return out
}

// classify turns a process result plus an artifact check into an outcome.
func classify(id model.ScannerID, language string, res runner.Result, hostArtifact string) model.ScannerOutcome {
	out := model.ScannerOutcome{
		Scanner:              id,
		Language:             language,
		ExitSucceeded:        res.Succeeded(),
		ExitCode:             res.ExitCode,
		OutputArtifactExists: artifactExists(hostArtifact),
		OutputArtifactPath:   hostArtifact,
		Duration:             res.Duration,
		Output:               tail(res.Output, outputTailBytes),
	}

	switch {
	case res.TimedOut:
		// A killed process may leave a truncated artifact; it is not trusted.
		out.OutputArtifactExists = false
		out.Reason = model.ReasonTimeout
		out.Detail = "scanner exceeded its timeout and was killed"
	case res.Canceled:
		out.OutputArtifactExists = false
		out.Reason = model.ReasonCanceled
		out.Detail = "run canceled while scanner was running"
	case res.StartFailed:
		out.Reason = model.ReasonInvocationFault
		out.Detail = errString(res.Err)
	case out.ExitSucceeded && !out.OutputArtifactExists:
		out.Reason = model.ReasonArtifactMissing
		out.Detail = "scanner exited cleanly but produced no artifact"
	case !out.ExitSucceeded && out.OutputArtifactExists:
		out.Reason = model.ReasonToolReportedFindings
	case !out.ExitSucceeded:
		out.Reason = model.ReasonInvocationFault
		out.Detail = errString(res.Err)
	}
	if !out.OutputArtifactExists {
		out.OutputArtifactPath = ""
	}
	return out
}

func (e *Engine) logOutcome(log logging.Logger, out model.ScannerOutcome) {
	fields := []logging.Field{
		logging.F("status", string(out.Status())),
		logging.F("exit_code", out.ExitCode),
		logging.F("duration_ms", out.Duration.Milliseconds()),
	}
	if out.Language != "" {
		fields = append(fields, logging.F("language", out.Language))
	}
	switch out.Status() {
	case model.StatusCompleted:
		log.Info("scanner completed", fields...)
	case model.StatusCompletedWithWarnings:
		// Non-zero exit with an artifact is how most of these tools say
		// "findings were found".
		log.Warn("scanner exited non-zero but produced an artifact", fields...)
	default:
		fields = append(fields, logging.F("reason", string(out.Reason)), logging.F("detail", out.Detail))
		log.Warn("scanner produced no artifact", fields...)
	}
}

func (e *Engine) image(id model.ScannerID, spec scannerSpec) string {
	if img, ok := e.settings.Images[id]; ok && img != "" {
		return img
	}
	return spec.image
}

// ─── target layout ───────────────────────────────────────────────────

// layout maps the host target onto container paths.
type layout struct {
	// mountRoot is the host directory mounted read-only at /src.
	mountRoot string

	// fileTargets are container paths for file-oriented scanners.
	fileTargets []string
}

// resolveLayout resolves the target to an absolute path; relative paths do
// not survive the container boundary.
func resolveLayout(t Target) (layout, error) {
	if t.Root == "" {
		return layout{}, errors.New("target path is required")
	}
	abs, err := filepath.Abs(t.Root)
	if err != nil {
		return layout{}, fmt.Errorf("resolving target %s: %w", t.Root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return layout{}, fmt.Errorf("stat target: %w", err)
	}

	if !info.IsDir() {
		return layout{mountRoot: filepath.Dir(abs), fileTargets: []string{containerSrc + "/" + filepath.Base(abs)}}, nil
	}

	switch t.Scope.Kind {
	case config.ScopeSingleFile:
		sf := t.Scope.SingleFile
		if !filepath.IsAbs(sf) {
			sf = filepath.Join(abs, sf)
		}
		sf = filepath.Clean(sf)
		return layout{mountRoot: filepath.Dir(sf), fileTargets: []string{containerSrc + "/" + filepath.Base(sf)}}, nil
	case config.ScopeSparse:
		l := layout{mountRoot: abs}
		for _, p := range t.Scope.Paths {
			if !filepath.IsAbs(p) {
				p = filepath.Join(abs, p)
			}
			rel, err := filepath.Rel(abs, filepath.Clean(p))
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				continue
			}
			l.fileTargets = append(l.fileTargets, containerPath(rel))
		}
		if len(l.fileTargets) == 0 {
			l.fileTargets = []string{containerSrc}
		}
		return l, nil
	}
	return layout{mountRoot: abs, fileTargets: []string{containerSrc}}, nil
}

func containerPath(rel string) string {
	if rel == "." || rel == "" {
		return containerSrc
	}
	return containerSrc + "/" + filepath.ToSlash(rel)
}

// ─── helpers ───────────────────────────────────────────────────────────

var containerNameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

func containerName(id model.ScannerID, scanID string) string {
	return "secscan-" + containerNameUnsafe.ReplaceAllString(string(id)+"-"+scanID, "_")
}

func artifactExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// removeStaleArtifact deletes an artifact left by an earlier run under the
// same scan ID. Only a file written by this invocation may count as output.
func removeStaleArtifact(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("removing previous artifact %s: %w", path, err)
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
