package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/raysh454/secscan/internal/config"
	"github.com/raysh454/secscan/internal/model"
)

// invocation is the input to a command builder.
type invocation struct {
	opts   config.ScannerConfig
	layout layout

	// artifact is the container path the tool writes to.
	artifact string

	// socket is the host runtime socket, for scanners that inspect images.
	socket string

	// notes are informational messages the builder wants logged.
	notes []string
}

func (inv *invocation) note(msg string) {
	inv.notes = append(inv.notes, msg)
}

// singleTarget is the one file target when scope narrows to a file, else /src.
func (inv *invocation) singleTarget() string {
	if len(inv.layout.fileTargets) == 1 {
		return inv.layout.fileTargets[0]
	}
	return containerSrc
}

type mount struct {
	host      string
	container string
	readOnly  bool
}

// scannerSpec describes one containerised tool: its default image and how to
// build the arguments passed after the image name.
type scannerSpec struct {
	image string
	build func(inv *invocation) ([]string, []mount, error)
}

var specs = map[model.ScannerID]scannerSpec{
	model.Semgrep:    {image: "semgrep/semgrep:latest", build: semgrepArgs},
	model.Gitleaks:   {image: "zricethezav/gitleaks:latest", build: gitleaksArgs},
	model.OSVScanner: {image: "ghcr.io/google/osv-scanner:latest", build: osvArgs},
	model.Trivy:      {image: "aquasec/trivy:latest", build: trivyArgs},
	model.Syft:       {image: "anchore/syft:latest", build: syftArgs},
	model.Noir:       {image: "ghcr.io/owasp-noir/noir:latest", build: noirArgs},
}

// DefaultImage returns the image used for a scanner when none is configured.
func DefaultImage(id model.ScannerID) string {
	return specs[id].image
}

func semgrepArgs(inv *invocation) ([]string, []mount, error) {
	var mounts []mount
	ruleset := inv.opts.String("config_path", "auto")
	if !registryRuleset(ruleset) {
		host, err := filepath.Abs(ruleset)
		if err == nil {
			_, err = os.Stat(host)
		}
		if err != nil {
			inv.note("semgrep rules " + ruleset + " not found, using registry auto config")
			ruleset = "auto"
		} else {
			mounts = append(mounts, mount{host: host, container: containerRules, readOnly: true})
			ruleset = containerRules
		}
	}

	args := []string{"semgrep", "scan", "--config", ruleset, "--json", "--output", inv.artifact, "--metrics", "off"}
	args = append(args, inv.layout.fileTargets...)
	return args, mounts, nil
}

// registryRuleset reports whether a semgrep --config value names a registry
// ruleset or URL rather than a local path.
func registryRuleset(s string) bool {
	if s == "auto" {
		return true
	}
	for _, p := range []string{"p/", "r/", "s/", "http://", "https://"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func gitleaksArgs(inv *invocation) ([]string, []mount, error) {
	args := []string{"detect", "--no-git", "--source", inv.singleTarget(),
		"--report-format", "json", "--report-path", inv.artifact, "--no-banner"}

	var mounts []mount
	if cfg := inv.opts.String("config_path", ""); cfg != "" {
		host, err := filepath.Abs(cfg)
		if err == nil {
			_, err = os.Stat(host)
		}
		if err != nil {
			inv.note("gitleaks config " + cfg + " not found, using built-in rules")
		} else {
			container := containerRules + "/" + filepath.Base(host)
			mounts = append(mounts, mount{host: host, container: container, readOnly: true})
			args = append(args, "--config", container)
		}
	}
	return args, mounts, nil
}

func osvArgs(inv *invocation) ([]string, []mount, error) {
	return []string{"scan", "source", "--recursive", "--format", "json", "--output", inv.artifact, containerSrc}, nil, nil
}

func trivyArgs(inv *invocation) ([]string, []mount, error) {
	mode := inv.opts.String("scan_type", config.DefaultTrivyScanType)
	var target string
	var mounts []mount
	switch mode {
	case "fs", "config":
		target = containerSrc
	case "image":
		target = inv.opts.String("image_ref", "")
		if target == "" {
			return nil, nil, errors.New("trivy image scan requires image_ref")
		}
		mounts = append(mounts, mount{host: inv.socket, container: "/var/run/docker.sock"})
	default:
		return nil, nil, errors.New("unsupported trivy scan_type " + mode)
	}

	args := []string{mode, "--format", "json", "--output", inv.artifact, "--quiet"}
	if sev := inv.opts.String("severity", ""); sev != "" {
		args = append(args, "--severity", sev)
	}
	return append(args, target), mounts, nil
}

func syftArgs(inv *invocation) ([]string, []mount, error) {
	format := inv.opts.String("format", config.DefaultSyftFormat)
	return []string{"scan", "dir:" + containerSrc, "-o", format + "=" + inv.artifact, "-q"}, nil, nil
}

func noirArgs(inv *invocation) ([]string, []mount, error) {
	return []string{"-b", containerSrc, "-f", "json", "-o", inv.artifact, "--no-log"}, nil, nil
}
