// Package resource packs a directory of web assets into a zipped static
// resource and upserts it to the org.
package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"forcecode/internal/apperrors"
)

// Type tells where a bundle's sources live.
type Type string

const (
	TypeResourceBundle Type = "resource-bundle"
	TypeSPA            Type = "SPA"
)

const (
	bundlesDir     = "resource-bundles"
	spaDir         = "spa"
	bundleSuffix   = ".resource"
	staticResource = "src/staticresources"
)

// DefaultExcludes are skipped when packing. Patterns without a slash match
// a file's base name; the rest match the path relative to the bundle root.
var DefaultExcludes = []string{
	".gitignore",
	".DS_Store",
	".org_metadata",
	".log",
	"node_modules/**",
	"bower_modules/**",
}

// Bundle is one packable directory.
type Bundle struct {
	Name string
	Type Type
	Root string
}

// List returns every bundle under projectRoot, resource bundles first, each
// group sorted by name. Missing source directories are not an error.
func List(projectRoot string) ([]Bundle, error) {
	bundles, err := listDirs(filepath.Join(projectRoot, bundlesDir), TypeResourceBundle)
	if err != nil {
		return nil, err
	}
	spas, err := listDirs(filepath.Join(projectRoot, spaDir), TypeSPA)
	if err != nil {
		return nil, err
	}
	return append(bundles, spas...), nil
}

func listDirs(dir string, typ Type) ([]Bundle, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Bundle
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if typ == TypeResourceBundle {
			name, _, _ = strings.Cut(name, bundleSuffix)
		}
		out = append(out, Bundle{Name: name, Type: typ, Root: filepath.Join(dir, e.Name())})
	}
	slices.SortFunc(out, func(a, b Bundle) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Find returns the bundle called name. Resource bundles shadow SPAs.
func Find(projectRoot, name string) (Bundle, error) {
	bundles, err := List(projectRoot)
	if err != nil {
		return Bundle{}, err
	}
	for _, b := range bundles {
		if b.Name == name {
			return b, nil
		}
	}
	return Bundle{}, apperrors.NotFound("resource bundle", name)
}

// Files lists the files under root that no exclude pattern matches, as
// slash-separated paths relative to root, sorted.
func Files(root string, excludes []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	for _, p := range excludes {
		if !doublestar.ValidatePattern(p) {
			return nil, apperrors.Validation("excludes", fmt.Sprintf("invalid exclude pattern %q", p))
		}
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if prunedDir(rel, excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || excluded(rel, excludes) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

func excluded(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, p := range patterns {
		name := rel
		if !strings.Contains(p, "/") {
			name = base
		}
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// prunedDir reports whether a "dir/**" pattern covers the whole directory.
func prunedDir(rel string, patterns []string) bool {
	for _, p := range patterns {
		dir, ok := strings.CutSuffix(p, "/**")
		if !ok {
			continue
		}
		if matched, _ := doublestar.Match(dir, rel); matched {
			return true
		}
	}
	return false
}
