package inspect

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/model"
)

var (
	defaultExcludeDirs = map[string]struct{}{
		".git":          {},
		".hg":           {},
		".svn":          {},
		"node_modules":  {},
		"venv":          {},
		".venv":         {},
		"__pycache__":   {},
		".mypy_cache":   {},
		".pytest_cache": {},
	}

	containerManifests = map[string]struct{}{
		"Dockerfile":          {},
		"Containerfile":       {},
		"docker-compose.yml":  {},
		"docker-compose.yaml": {},
		"compose.yml":         {},
		"compose.yaml":        {},
	}

	// Checked in order; the first manifest present wins.
	dependencyManifests = []string{
		"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
		"requirements.txt", "Pipfile.lock", "poetry.lock",
		"pom.xml", "build.gradle", "gradle.lockfile",
		"go.mod", "go.sum",
		"Cargo.toml", "Cargo.lock",
		"Gemfile", "Gemfile.lock",
		"composer.lock",
	}

	// Languages in report order, each with the extensions that prove presence.
	languageExtensions = []struct {
		lang string
		exts []string
	}{
		{model.LangJava, []string{".java"}},
		{model.LangCPP, []string{".cpp", ".c", ".h", ".hpp", ".cc", ".cxx"}},
		{model.LangGo, []string{".go"}},
		{model.LangJavaScript, []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs"}},
		{model.LangPython, []string{".py"}},
		{model.LangCSharp, []string{".cs"}},
	}
)

// Inspector walks a target tree read-only and classifies it.
type Inspector struct {
	logger      logging.Logger
	excludeDirs map[string]struct{}
}

// New returns an Inspector. A nil logger discards progress lines.
func New(logger logging.Logger) *Inspector {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Inspector{logger: logger, excludeDirs: defaultExcludeDirs}
}

// Inspect produces a fresh DetectionReport for targetPath. Unreadable
// subdirectories are skipped; only a missing root is an error.
func (in *Inspector) Inspect(targetPath string) (model.DetectionReport, error) {
	report := model.DetectionReport{Languages: []string{}}
	if targetPath == "" {
		return report, errors.New("target path is required")
	}
	absRoot, err := filepath.Abs(targetPath)
	if err != nil {
		return report, err
	}
	if _, err := os.Stat(absRoot); err != nil {
		return report, err
	}

	manifestSeen := map[string]string{}
	langSeen := map[string]bool{}
	extToLang := map[string]string{}
	for _, le := range languageExtensions {
		for _, ext := range le.exts {
			extToLang[ext] = le.lang
		}
	}

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			in.logger.Debug("skipping unreadable path", logging.F("path", path), logging.Err(walkErr))
			if d != nil && d.IsDir() && path != absRoot {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != absRoot {
				if _, skip := in.excludeDirs[d.Name()]; skip {
					return fs.SkipDir
				}
			}
			return nil
		}

		name := d.Name()
		rel, err := filepath.Rel(absRoot, path)
		if err != nil || rel == "." {
			rel = name
		}
		rel = filepath.ToSlash(rel)

		if !report.HasContainerManifest {
			if _, ok := containerManifests[name]; ok {
				report.HasContainerManifest = true
				in.logger.Info("detected container manifest", logging.F("file", rel))
			}
		}
		if _, ok := manifestSeen[name]; !ok && isDependencyManifest(name) {
			manifestSeen[name] = rel
		}
		if lang, ok := extToLang[strings.ToLower(filepath.Ext(name))]; ok && !langSeen[lang] {
			langSeen[lang] = true
			in.logger.Info("detected language", logging.F("language", lang), logging.F("file", rel))
		}
		return nil
	})
	if walkErr != nil {
		return report, walkErr
	}

	for _, manifest := range dependencyManifests {
		if rel, ok := manifestSeen[manifest]; ok {
			report.HasDependencyManifest = true
			report.DependencyFiles = []string{rel}
			in.logger.Info("detected dependency manifest", logging.F("file", rel))
			break
		}
	}
	for _, le := range languageExtensions {
		if langSeen[le.lang] {
			report.Languages = append(report.Languages, le.lang)
		}
	}
	return report, nil
}

func isDependencyManifest(name string) bool {
	for _, m := range dependencyManifests {
		if m == name {
			return true
		}
	}
	return false
}
