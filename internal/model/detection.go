package model

// Language tags reported by the repository inspector, in detection order.
const (
	LangJava       = "java"
	LangCPP        = "cpp"
	LangGo         = "go"
	LangJavaScript = "javascript"
	LangPython     = "python"
	LangCSharp     = "csharp"
)

// DetectionReport classifies a target tree. It is computed fresh for every
// run and never persisted.
type DetectionReport struct {
	Languages             []string `json:"languages"`
	HasContainerManifest  bool     `json:"has_dockerfile"`
	HasDependencyManifest bool     `json:"has_dependencies"`
	DependencyFiles       []string `json:"dependency_files,omitempty"`
}

// HasLanguage reports whether lang was detected.
func (d DetectionReport) HasLanguage(lang string) bool {
	for _, l := range d.Languages {
		if l == lang {
			return true
		}
	}
	return false
}
