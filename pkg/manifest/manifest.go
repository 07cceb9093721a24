// Package manifest scans the annotated project's source tree for component
// declarations so the in-page inspector can map a component class name back
// to its source and template files.
package manifest

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"annotated/pkg/logger"
)

// Entry maps a component class to its source file, and optionally its
// external template file, both relative to the project root.
type Entry struct {
	Component string `json:"component"`
	Template  string `json:"template,omitempty"`
}

var (
	classRe    = regexp.MustCompile(`export\s+class\s+(\w+)`)
	templateRe = regexp.MustCompile("templateUrl\\s*:\\s*['\"`]([^'\"`]+)['\"`]")
)

// Build walks <projectRoot>/src and returns a className→Entry map for every
// .ts file carrying a @Component marker. Spec files are skipped. A missing
// src directory yields an empty manifest, not an error: the manifest is
// advisory.
func Build(projectRoot string) map[string]Entry {
	out := map[string]Entry{}
	srcDir := filepath.Join(projectRoot, "src")
	if _, err := os.Stat(srcDir); err != nil {
		return out
	}

	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".ts") || strings.HasSuffix(name, ".spec.ts") {
			return nil
		}
		code, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if !strings.Contains(string(code), "@Component") {
			return nil
		}
		m := classRe.FindSubmatch(code)
		if m == nil {
			return nil
		}
		className := string(m[1])

		rel, rerr := filepath.Rel(projectRoot, path)
		if rerr != nil {
			return nil
		}
		entry := Entry{Component: filepath.ToSlash(rel)}

		if tm := templateRe.FindSubmatch(code); tm != nil {
			abs := filepath.Join(filepath.Dir(path), string(tm[1]))
			if trel, terr := filepath.Rel(projectRoot, abs); terr == nil {
				entry.Template = filepath.ToSlash(trel)
			}
		}
		out[className] = entry
		return nil
	})
	if err != nil {
		logger.Warn("manifest_scan_failed", "root", projectRoot, "error", err)
	}
	return out
}
