package stager

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	cp "github.com/otiai10/copy"

	"github.com/oshokin/app-release/internal/fsglob"
)

// workspacePackage is one folder under the packages dir that carries a manifest.
type workspacePackage struct {
	// Dir is the folder name, e.g. "server".
	Dir string
	// Path is the absolute source folder.
	Path string
	// Manifest is the decoded package.json.
	Manifest manifest
}

// discoverPackages lists workspace packages sorted by folder name, skipping ignored ones.
func discoverPackages(packagesRoot string, ignore []string) ([]workspacePackage, error) {
	entries, err := os.ReadDir(packagesRoot)
	if err != nil {
		return nil, fmt.Errorf("list workspace packages: %w", err)
	}

	packages := make([]workspacePackage, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() || slices.Contains(ignore, entry.Name()) {
			continue
		}

		dir := filepath.Join(packagesRoot, entry.Name())

		m, err := readManifest(filepath.Join(dir, manifestFilename))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, err
		}

		packages = append(packages, workspacePackage{
			Dir:      entry.Name(),
			Path:     dir,
			Manifest: m,
		})
	}

	return packages, nil
}

// cleanPattern normalizes a package-relative pattern. It returns false for
// patterns that are empty or point outside the package.
func cleanPattern(raw string) (string, bool) {
	pattern := path.Clean(strings.TrimPrefix(filepath.ToSlash(raw), "./"))
	if raw == "" || pattern == "." || pattern == ".." || strings.HasPrefix(pattern, "../") {
		return "", false
	}

	return pattern, true
}

// copyPatterns returns the relative patterns to copy besides the manifest:
// declared files, the main entry and the configured build outputs.
func (p workspacePackage) copyPatterns(buildOutputs []string) []string {
	seen := make(map[string]struct{})
	patterns := make([]string, 0)

	add := func(raw string) {
		if strings.HasPrefix(raw, "!") {
			return
		}

		pattern, ok := cleanPattern(raw)
		if !ok {
			return
		}

		if _, dup := seen[pattern]; dup {
			return
		}

		seen[pattern] = struct{}{}
		patterns = append(patterns, pattern)
	}

	for _, file := range p.Manifest.stringList("files") {
		add(file)
	}

	add(p.Manifest.str("main"))

	for _, output := range buildOutputs {
		add(output)
	}

	return patterns
}

// excludePatterns returns the negated "files" entries without their "!",
// each also excluding everything below a matched folder.
func (p workspacePackage) excludePatterns() []string {
	excludes := make([]string, 0)

	for _, raw := range p.Manifest.stringList("files") {
		if !strings.HasPrefix(raw, "!") {
			continue
		}

		pattern, ok := cleanPattern(strings.TrimPrefix(raw, "!"))
		if !ok {
			continue
		}

		excludes = append(excludes, pattern, pattern+"/**")
	}

	return excludes
}

// copyTo copies the manifest and every matched pattern into dst, leaving out
// paths matched by a negated "files" entry.
// Symlinks are copied as links; the stripper rewrites requires that depend on them.
func (p workspacePackage) copyTo(dst string, buildOutputs []string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	excludes := p.excludePatterns()
	options := cp.Options{
		OnSymlink: func(string) cp.SymlinkAction {
			return cp.Shallow
		},
		Skip: func(_ os.FileInfo, src, _ string) (bool, error) {
			rel, err := filepath.Rel(p.Path, src)
			if err != nil {
				return false, err
			}

			return fsglob.MatchesAny(filepath.ToSlash(rel), excludes)
		},
	}

	if err := cp.Copy(filepath.Join(p.Path, manifestFilename), filepath.Join(dst, manifestFilename), options); err != nil {
		return fmt.Errorf("copy %s manifest: %w", p.Dir, err)
	}

	for _, pattern := range p.copyPatterns(buildOutputs) {
		matches, err := fsglob.Match(p.Path, pattern, excludes...)
		if err != nil {
			return fmt.Errorf("expand %s pattern %q: %w", p.Dir, pattern, err)
		}

		for _, match := range matches {
			src := filepath.Join(p.Path, filepath.FromSlash(match))
			target := filepath.Join(dst, filepath.FromSlash(match))

			if err = cp.Copy(src, target, options); err != nil {
				return fmt.Errorf("copy %s/%s: %w", p.Dir, match, err)
			}
		}
	}

	return nil
}
