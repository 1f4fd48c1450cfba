// Package project inspects a workspace to find its languages and its root.
package project

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"lspclient/src/internal/constants"
	"lspclient/src/internal/gitignore"
)

// scanDepth limits how many directories deep detection looks
const scanDepth = 3

// DetectedLanguage is a language found in a workspace with the evidence for it
type DetectedLanguage struct {
	Language   string
	Confidence int
	Indicators []string
}

// markerWeights score project files that identify a language
var markerWeights = map[string]struct {
	language string
	weight   int
}{
	"go.mod":           {"go", 25},
	"go.sum":           {"go", 15},
	"tsconfig.json":    {"typescript", 30},
	"setup.py":         {"python", 25},
	"requirements.txt": {"python", 20},
	"pyproject.toml":   {"python", 20},
	"pom.xml":          {"java", 30},
	"build.gradle":     {"java", 25},
	"build.gradle.kts": {"java", 25},
	"Cargo.toml":       {"rust", 30},
	"Cargo.lock":       {"rust", 15},
	"CMakeLists.txt":   {"cpp", 20},
}

// rootMarkers identify the top of a project when walking up from a file
var rootMarkers = []string{
	"go.work", "go.mod", "Cargo.toml", "package.json", "tsconfig.json",
	"pyproject.toml", "setup.py", "pom.xml", "build.gradle", "build.gradle.kts",
	"compile_commands.json", ".git",
}

// Detect scans dir, honoring .gitignore files, and returns the languages found
// ordered by confidence
func Detect(dir string) ([]DetectedLanguage, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("failed to scan %s: not a directory", dir)
	}

	detected := make(map[string]*DetectedLanguage)
	err = gitignore.Walk(dir, scanDepth, func(path string, d fs.DirEntry, err error) error {
		if !d.IsDir() {
			analyzeFile(path, detected)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	result := make([]DetectedLanguage, 0, len(detected))
	for _, d := range detected {
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Confidence != result[j].Confidence {
			return result[i].Confidence > result[j].Confidence
		}
		return result[i].Language < result[j].Language
	})
	return result, nil
}

// DetectLanguages returns the language names found in dir, most likely first
func DetectLanguages(dir string) ([]string, error) {
	detected, err := Detect(dir)
	if err != nil {
		return nil, err
	}
	languages := make([]string, len(detected))
	for i, d := range detected {
		languages[i] = d.Language
	}
	return languages, nil
}

func analyzeFile(path string, detected map[string]*DetectedLanguage) {
	name := filepath.Base(path)
	if language := constants.LanguageForPath(path); language != "" {
		addDetection(detected, language, 10, "*"+filepath.Ext(name)+" file: "+name)
	}

	if m, ok := markerWeights[name]; ok {
		addDetection(detected, m.language, m.weight, name+" file")
		return
	}
	if name == "package.json" {
		if usesTypeScript(path) {
			addDetection(detected, "typescript", 25, "package.json with TypeScript")
		} else {
			addDetection(detected, "javascript", 25, "package.json file")
		}
	}
}

// usesTypeScript checks a package.json for a sibling tsconfig, a typescript
// dependency, @types packages or tsc scripts
func usesTypeScript(packageJSON string) bool {
	if _, err := os.Stat(filepath.Join(filepath.Dir(packageJSON), "tsconfig.json")); err == nil {
		return true
	}
	data, err := os.ReadFile(packageJSON)
	if err != nil || !gjson.ValidBytes(data) {
		return false
	}
	pkg := gjson.ParseBytes(data)
	if pkg.Get("dependencies.typescript").Exists() || pkg.Get("devDependencies.typescript").Exists() {
		return true
	}

	found := false
	pkg.Get("dependencies").ForEach(func(key, _ gjson.Result) bool {
		found = strings.HasPrefix(key.String(), "@types/")
		return !found
	})
	if found {
		return true
	}
	pkg.Get("scripts").ForEach(func(_, script gjson.Result) bool {
		s := script.String()
		found = strings.HasPrefix(s, "tsc") || strings.Contains(s, " tsc")
		return !found
	})
	return found
}

func addDetection(detected map[string]*DetectedLanguage, language string, confidence int, indicator string) {
	if existing, ok := detected[language]; ok {
		existing.Confidence += confidence
		existing.Indicators = append(existing.Indicators, indicator)
		return
	}
	detected[language] = &DetectedLanguage{
		Language:   language,
		Confidence: confidence,
		Indicators: []string{indicator},
	}
}

// FindRoot walks up from path to the nearest directory holding a project
// marker. It returns "" when none is found.
func FindRoot(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	dir := abs
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
