package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/raysh454/secscan/internal/config"
	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/model"
	"github.com/raysh454/secscan/internal/runner"
)

// BuildMode is how CodeQL extracts a language.
type BuildMode string

const (
	// BuildTraced languages need a compile step traced into the database.
	BuildTraced BuildMode = "traced"
	// BuildNone languages are extracted from source.
	BuildNone BuildMode = "none"
)

var languageModes = map[string]BuildMode{
	model.LangJava:       BuildTraced,
	model.LangCPP:        BuildTraced,
	model.LangGo:         BuildTraced,
	model.LangCSharp:     BuildTraced,
	model.LangJavaScript: BuildNone,
	model.LangPython:     BuildNone,
}

var languageAliases = map[string]string{
	"c":                     model.LangCPP,
	"c++":                   model.LangCPP,
	"c-cpp":                 model.LangCPP,
	"c#":                    model.LangCSharp,
	"java-kotlin":           model.LangJava,
	"kotlin":                model.LangJava,
	"typescript":            model.LangJavaScript,
	"javascript-typescript": model.LangJavaScript,
	"golang":                model.LangGo,
}

// NormalizeLanguage maps CodeQL language aliases to the canonical name.
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if canon, ok := languageAliases[lang]; ok {
		return canon
	}
	return lang
}

// ResolveLanguages expands the configured language list. An empty list, or
// "auto", selects only the first detected language.
func ResolveLanguages(configured []string, report model.DetectionReport) []string {
	auto := func() []string {
		if len(report.Languages) == 0 {
			return nil
		}
		return []string{report.Languages[0]}
	}
	if len(configured) == 0 {
		return auto()
	}

	seen := make(map[string]bool)
	var out []string
	for _, l := range configured {
		var expanded []string
		if strings.EqualFold(strings.TrimSpace(l), "auto") {
			expanded = auto()
		} else {
			expanded = []string{NormalizeLanguage(l)}
		}
		for _, x := range expanded {
			if x != "" && !seen[x] {
				seen[x] = true
				out = append(out, x)
			}
		}
	}
	return out
}

// InvokeMultiLang runs CodeQL once per language, sequentially, and returns one
// outcome per language attempted. Unknown languages are skipped with a warning
// and contribute no outcome.
func (e *Engine) InvokeMultiLang(ctx context.Context, target Target, opts config.ScannerConfig, report model.DetectionReport) []model.ScannerOutcome {
	log := e.logger.With(logging.F("scanner", string(model.CodeQL)), logging.F("scan_id", e.settings.ScanID))

	if _, err := e.exec.LookPath(e.settings.CodeQLBinary); err != nil {
		log.Warn("codeql not installed, skipping", logging.Err(err))
		return []model.ScannerOutcome{model.FailedOutcome(model.CodeQL, "", model.ReasonRuntimeUnavailable, err.Error())}
	}

	root, err := sourceRoot(target)
	if err != nil {
		log.Warn("resolving target", logging.Err(err))
		return []model.ScannerOutcome{model.FailedOutcome(model.CodeQL, "", model.ReasonInvocationFault, err.Error())}
	}

	langs := ResolveLanguages(opts.Strings("languages"), report)
	if len(langs) == 0 {
		log.Warn("no codeql language configured or detected")
		return nil
	}

	var outcomes []model.ScannerOutcome
	for _, lang := range langs {
		mode, ok := languageModes[lang]
		if !ok {
			log.Warn("unsupported codeql language, skipping", logging.F("language", lang))
			continue
		}
		if ctx.Err() != nil {
			outcomes = append(outcomes, model.FailedOutcome(model.CodeQL, lang, model.ReasonCanceled, "run canceled before language started"))
			continue
		}
		out := e.analyzeLanguage(ctx, log.With(logging.F("language", lang)), root, lang, mode, opts)
		e.logOutcome(log, out)
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// analyzeLanguage drives one language through create, optional build trace,
// finalize and analyze.
func (e *Engine) analyzeLanguage(ctx context.Context, log logging.Logger, root, lang string, mode BuildMode, opts config.ScannerConfig) model.ScannerOutcome {
	started := time.Now().UTC()
	langCtx, cancel := context.WithTimeout(ctx, opts.Duration("timeout", e.settings.Timeout))
	defer cancel()

	db := filepath.Join(e.settings.WorkDir, "codeql-db-"+lang+"-"+e.settings.ScanID)
	scratch := filepath.Join(e.settings.WorkDir, "codeql-build-"+lang+"-"+e.settings.ScanID)
	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	hostArtifact := e.ArtifactPath(model.CodeQL, lang)
	if err := removeStaleArtifact(hostArtifact); err != nil {
		log.Warn("removing stale sarif", logging.Err(err))
		out := model.FailedOutcome(model.CodeQL, lang, model.ReasonInvocationFault, err.Error())
		out.StartedAt = started
		return out
	}

	var warnings []string
	fail := func(step string, res runner.Result) model.ScannerOutcome {
		reason := model.ReasonInvocationFault
		switch {
		case ctx.Err() != nil:
			reason = model.ReasonCanceled
		case langCtx.Err() != nil || res.TimedOut:
			reason = model.ReasonTimeout
		}
		out := model.FailedOutcome(model.CodeQL, lang, reason, step+" failed: "+lastLine(res))
		out.ExitCode = res.ExitCode
		out.Output = tail(res.Output, outputTailBytes)
		out.Warnings = warnings
		out.StartedAt = started
		out.Duration = time.Since(started)
		return out
	}

	// 1. create
	initArgs := []string{"database", "init", "--overwrite", "--language=" + lang, "--source-root=" + root}
	if mode == BuildNone {
		initArgs = append(initArgs, "--build-mode=none")
	}
	initArgs = append(initArgs, db)
	log.Info("creating codeql database", logging.F("database", db))
	if res := e.codeql(langCtx, root, initArgs...); !res.Succeeded() {
		log.Warn("codeql database creation failed, skipping language", logging.F("exit_code", res.ExitCode))
		return fail("database creation", res)
	}

	// 2. build, traced into the database
	if mode == BuildTraced {
		if err := os.MkdirAll(scratch, 0o755); err != nil {
			warnings = append(warnings, "creating build scratch dir: "+err.Error())
		}
		plan, ok := e.buildPlan(lang, root, scratch, opts)
		if ok {
			log.Info("tracing build", logging.F("build_system", plan.System), logging.F("marker", plan.Marker))
			traceArgs := append([]string{"database", "trace-command", "--working-dir=" + root, db, "--"}, plan.Command...)
			if res := e.codeql(langCtx, root, traceArgs...); !res.Succeeded() {
				if ctx.Err() != nil || langCtx.Err() != nil {
					return fail("build trace", res)
				}
				msg := fmt.Sprintf("build (%s) failed with exit code %d; analysis continues on partial database", plan.System, res.ExitCode)
				log.Warn("codeql build trace failed", logging.F("build_system", plan.System), logging.F("exit_code", res.ExitCode))
				warnings = append(warnings, msg)
			}
		}
	}

	// 3. finalize
	if res := e.codeql(langCtx, root, "database", "finalize", db); !res.Succeeded() {
		log.Warn("codeql database finalize failed", logging.F("exit_code", res.ExitCode))
		return fail("database finalize", res)
	}

	// 4. analyze
	analyzeArgs := []string{"database", "analyze", db}
	analyzeArgs = append(analyzeArgs, opts.Strings("queries")...)
	analyzeArgs = append(analyzeArgs,
		"--format=sarif-latest",
		"--output="+hostArtifact,
		"--threads="+strconv.Itoa(opts.Int("threads", 0)),
	)
	if ram := opts.Int("ram", 0); ram > 0 {
		analyzeArgs = append(analyzeArgs, "--ram="+strconv.Itoa(ram))
	}
	log.Info("analyzing codeql database")
	res := e.codeql(langCtx, root, analyzeArgs...)
	if langCtx.Err() != nil && ctx.Err() == nil {
		res.TimedOut = true
		res.Canceled = false
	}

	out := classify(model.CodeQL, lang, res, hostArtifact)
	out.Warnings = append(warnings, out.Warnings...)
	out.StartedAt = started
	out.Duration = time.Since(started)
	return out
}

func (e *Engine) buildPlan(lang, root, scratch string, opts config.ScannerConfig) (BuildPlan, bool) {
	if custom := opts.String("build_command", ""); custom != "" {
		return BuildPlan{System: "custom", Command: []string{"sh", "-c", custom}}, true
	}
	return DetectBuild(lang, root, scratch)
}

func (e *Engine) codeql(ctx context.Context, dir string, args ...string) runner.Result {
	return e.exec.Run(ctx, runner.Command{Name: e.settings.CodeQLBinary, Args: args, Dir: dir})
}

// sourceRoot is the absolute directory CodeQL extracts from.
func sourceRoot(t Target) (string, error) {
	if t.Root == "" {
		return "", errors.New("target path is required")
	}
	abs, err := filepath.Abs(t.Root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat target: %w", err)
	}
	if !info.IsDir() {
		return filepath.Dir(abs), nil
	}
	return abs, nil
}

func lastLine(res runner.Result) string {
	if out := tail(res.Output, 512); out != "" {
		lines := strings.Split(out, "\n")
		return strings.TrimSpace(lines[len(lines)-1])
	}
	return errString(res.Err)
}
