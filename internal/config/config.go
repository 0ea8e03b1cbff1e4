// Package config resolves the declarative scan configuration.
//
// Resolution never fails on a malformed sub-field: every accessor falls back
// to a documented default so that bad input degrades to "not enabled" rather
// than aborting. Only a missing or unparseable document is an error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/idna"
	"gopkg.in/yaml.v3"

	"github.com/raysh454/secscan/internal/model"
)

// ErrConfigInvalid is returned when the configuration is absent or is not
// structured data.
var ErrConfigInvalid = errors.New("config invalid")

type TargetKind string

const (
	TargetRepository TargetKind = "repository"
	TargetFile       TargetKind = "file"
	TargetDirectory  TargetKind = "directory"
	TargetZip        TargetKind = "zip"
)

type ScopeKind string

const (
	ScopeFull       ScopeKind = "full"
	ScopeSingleFile ScopeKind = "single_file"
	ScopeSparse     ScopeKind = "sparse"
)

// Target describes what is being scanned.
type Target struct {
	Kind   TargetKind `json:"type"`
	Path   string     `json:"path"`
	URL    string     `json:"url,omitempty"`
	Branch string     `json:"branch,omitempty"`
}

// Scope narrows a scan within the target.
type Scope struct {
	Kind       ScopeKind `json:"type"`
	SingleFile string    `json:"single_file,omitempty"`
	Paths      []string  `json:"paths,omitempty"`
}

// Output is consumed by the storage/report collaborators, not by the core.
type Output struct {
	Formats       []string `json:"formats"`
	Storage       string   `json:"storage"`
	RetentionDays int      `json:"retention_days"`
}

// ScannerConfig is the per-scanner block under `scanners`.
type ScannerConfig struct {
	Enabled bool           `json:"enabled"`
	Options map[string]any `json:"options,omitempty"`
}

// ScanConfiguration is parsed once per run and never mutated afterwards.
type ScanConfiguration struct {
	Target     Target                            `json:"target"`
	Scope      Scope                             `json:"scan_scope"`
	AutoDetect bool                              `json:"auto_detect"`
	Scanners   map[model.ScannerID]ScannerConfig `json:"scanners"`
	Output     Output                            `json:"output"`
}

const (
	DefaultRetentionDays = 30
	DefaultStorage       = "local"
)

// Load reads and resolves the configuration file at path.
func Load(path string) (*ScanConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrConfigInvalid, path, err)
	}
	return Resolve(data)
}

// Resolve parses raw YAML or JSON and applies per-field defaults.
func Resolve(raw []byte) (*ScanConfiguration, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrConfigInvalid)
	}
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	root, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrConfigInvalid)
	}

	cfg := &ScanConfiguration{
		Target:   resolveTarget(mapAt(root, "target")),
		Scanners: resolveScanners(mapAt(root, "scanners")),
		Output:   resolveOutput(mapAt(root, "output")),
	}
	cfg.Scope = resolveScope(mapAt(root, "scan_scope"), cfg.Target)

	// auto_detect absent: on for an empty scanner selection, off otherwise.
	if v, ok := boolAt(root, "auto_detect"); ok {
		cfg.AutoDetect = v
	} else {
		cfg.AutoDetect = len(cfg.Scanners) == 0
	}
	return cfg, nil
}

func resolveTarget(m map[string]any) Target {
	t := Target{
		Kind:   TargetKind(strings.ToLower(stringAt(m, "type"))),
		Path:   stringAt(m, "path"),
		URL:    canonicalURL(stringAt(m, "url")),
		Branch: stringAt(m, "branch"),
	}
	switch t.Kind {
	case TargetRepository, TargetFile, TargetDirectory, TargetZip:
	default:
		t.Kind = TargetDirectory
	}
	return t
}

func resolveScope(m map[string]any, target Target) Scope {
	s := Scope{
		Kind:       ScopeKind(strings.ToLower(stringAt(m, "type"))),
		SingleFile: stringAt(m, "single_file"),
		Paths:      stringsAt(m, "paths"),
	}
	switch s.Kind {
	case ScopeFull, ScopeSparse:
	case ScopeSingleFile:
		if s.SingleFile == "" && target.Kind == TargetFile {
			s.SingleFile = target.Path
		}
		// A single file outside the target is not scannable; fall back to full.
		if s.SingleFile == "" || !within(target.Path, s.SingleFile) {
			s.Kind = ScopeFull
			s.SingleFile = ""
		}
	default:
		s.Kind = ScopeFull
	}
	return s
}

func resolveScanners(m map[string]any) map[model.ScannerID]ScannerConfig {
	out := make(map[model.ScannerID]ScannerConfig, len(m))
	for name, v := range m {
		id, ok := model.ParseScannerID(name)
		if !ok {
			continue
		}
		block, _ := v.(map[string]any)
		enabled, _ := boolAt(block, "enabled")
		opts := make(map[string]any, len(block))
		for k, ov := range block {
			if k == "enabled" {
				continue
			}
			opts[k] = ov
		}
		// A nested `options:` mapping is accepted as well as inline keys.
		if nested := mapAt(block, "options"); nested != nil {
			delete(opts, "options")
			for k, ov := range nested {
				opts[k] = ov
			}
		}
		out[id] = ScannerConfig{Enabled: enabled, Options: opts}
	}
	return out
}

func resolveOutput(m map[string]any) Output {
	o := Output{
		Formats:       stringsAt(m, "formats"),
		Storage:       stringAt(m, "storage"),
		RetentionDays: DefaultRetentionDays,
	}
	if len(o.Formats) == 0 {
		o.Formats = []string{"json"}
	}
	if o.Storage == "" {
		o.Storage = DefaultStorage
	}
	if n, ok := intAt(m, "retention_days"); ok && n > 0 {
		o.RetentionDays = n
	}
	return o
}

// Scanner returns the block for id; absent scanners are disabled with no options.
func (c *ScanConfiguration) Scanner(id model.ScannerID) ScannerConfig {
	if c == nil || c.Scanners == nil {
		return ScannerConfig{}
	}
	return c.Scanners[id]
}

// Enabled applies the enable rule: explicit enable OR auto-detect. Auto-detect
// overrides an explicit `enabled: false`.
func (c *ScanConfiguration) Enabled(id model.ScannerID) bool {
	if c == nil {
		return false
	}
	return c.Scanner(id).Enabled || c.AutoDetect
}

// HasFormat reports whether output.formats lists f.
func (c *ScanConfiguration) HasFormat(f string) bool {
	for _, v := range c.Output.Formats {
		if strings.EqualFold(v, f) {
			return true
		}
	}
	return false
}

// String reads a string option, falling back to def.
func (s ScannerConfig) String(key, def string) string {
	if v := stringAt(s.Options, key); v != "" {
		return v
	}
	return def
}

// Strings reads a list-of-strings option. A scalar string is a one-element list.
func (s ScannerConfig) Strings(key string) []string {
	return stringsAt(s.Options, key)
}

// Int reads an integer option, falling back to def.
func (s ScannerConfig) Int(key string, def int) int {
	if v, ok := intAt(s.Options, key); ok {
		return v
	}
	return def
}

// Duration reads a Go duration ("15m") or a number of seconds.
func (s ScannerConfig) Duration(key string, def time.Duration) time.Duration {
	if n, ok := intAt(s.Options, key); ok && n > 0 {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(stringAt(s.Options, key)); err == nil && d > 0 {
		return d
	}
	return def
}

// canonicalURL lower-cases the scheme and punycodes the host. Anything that
// does not parse degrades to "".
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	} else {
		return ""
	}
	if port := u.Port(); port != "" {
		host = host + ":" + port
	}
	u.Host = host
	return u.String()
}

// within reports whether p is target or lies under it. Relative single files
// are taken relative to the target.
func within(target, p string) bool {
	if target == "" {
		return true
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(target, p)
	}
	rel, err := filepath.Rel(filepath.Clean(target), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ─── tree accessors ───────────────────────────────────────────────────

func mapAt(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

func stringAt(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case int, int64, float64:
		return fmt.Sprint(v)
	}
	return ""
}

func stringsAt(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func boolAt(m map[string]any, key string) (bool, bool) {
	if m == nil {
		return false, false
	}
	v, ok := m[key].(bool)
	return v, ok
}

func intAt(m map[string]any, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
