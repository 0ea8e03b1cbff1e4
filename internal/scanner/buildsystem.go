package scanner

import (
	"os"
	"path/filepath"

	"github.com/raysh454/secscan/internal/model"
)

// BuildPlan is the build command CodeQL traces for a compiled language.
type BuildPlan struct {
	System  string
	Marker  string
	Command []string
}

// buildRule matches when any of its markers exists in the source root. A rule
// without markers is the fallback and always matches.
type buildRule struct {
	system  string
	markers []string
	command func(root, marker, scratch string) []string
}

// buildRules are evaluated in order; the first match wins.
var buildRules = map[string][]buildRule{
	model.LangJava: {
		{system: "maven", markers: []string{"pom.xml"}, command: func(root, _, _ string) []string {
			if exists(filepath.Join(root, "mvnw")) {
				return []string{"./mvnw", "-B", "-q", "-DskipTests", "package"}
			}
			return []string{"mvn", "-B", "-q", "-DskipTests", "package"}
		}},
		{system: "gradle", markers: []string{"build.gradle", "build.gradle.kts"}, command: func(root, _, _ string) []string {
			if exists(filepath.Join(root, "gradlew")) {
				return []string{"./gradlew", "--no-daemon", "-q", "assemble"}
			}
			return []string{"gradle", "--no-daemon", "-q", "assemble"}
		}},
		{system: "javac", command: func(_, _, scratch string) []string {
			return []string{"sh", "-c", "find . -name '*.java' > " + scratch + "/sources.txt && javac -d " + scratch + "/classes @" + scratch + "/sources.txt"}
		}},
	},
	model.LangCPP: {
		{system: "cmake", markers: []string{"CMakeLists.txt"}, command: func(_, _, scratch string) []string {
			return []string{"sh", "-c", "cmake -S . -B " + scratch + "/build && cmake --build " + scratch + "/build"}
		}},
		{system: "make", markers: []string{"Makefile", "makefile", "GNUmakefile"}, command: func(_, _, _ string) []string {
			return []string{"make"}
		}},
		{system: "cc", command: func(_, _, _ string) []string {
			return []string{"sh", "-c", `for f in $(find . -name '*.c' -o -name '*.cc' -o -name '*.cpp'); do case "$f" in *.c) cc -c "$f" -o /dev/null ;; *) c++ -c "$f" -o /dev/null ;; esac; done`}
		}},
	},
	model.LangGo: {
		{system: "go-modules", markers: []string{"go.mod", "go.work"}, command: func(_, _, _ string) []string {
			return []string{"go", "build", "./..."}
		}},
		{system: "make", markers: []string{"Makefile", "makefile", "GNUmakefile"}, command: func(_, _, _ string) []string {
			return []string{"make"}
		}},
		{system: "go", command: func(_, _, _ string) []string {
			return []string{"go", "build", "./..."}
		}},
	},
	model.LangCSharp: {
		{system: "dotnet-solution", markers: []string{"*.sln"}, command: func(_, marker, _ string) []string {
			return []string{"dotnet", "build", marker}
		}},
		{system: "dotnet-project", markers: []string{"*.csproj"}, command: func(_, marker, _ string) []string {
			return []string{"dotnet", "build", marker}
		}},
		{system: "dotnet", command: func(_, _, _ string) []string {
			return []string{"dotnet", "build"}
		}},
	},
}

// DetectBuild picks the build for a compiled language by evaluating its rules
// in order against the source root. ok is false for languages that are not
// built.
func DetectBuild(language, root, scratch string) (BuildPlan, bool) {
	rules, ok := buildRules[language]
	if !ok {
		return BuildPlan{}, false
	}
	for _, r := range rules {
		if len(r.markers) == 0 {
			return BuildPlan{System: r.system, Command: r.command(root, "", scratch)}, true
		}
		for _, m := range r.markers {
			if hit := firstMatch(root, m); hit != "" {
				return BuildPlan{System: r.system, Marker: hit, Command: r.command(root, hit, scratch)}, true
			}
		}
	}
	return BuildPlan{}, false
}

func firstMatch(root, pattern string) string {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return filepath.Base(matches[0])
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
