package stripper

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/oshokin/app-release/internal/fsglob"
)

// requirePattern matches module specifiers in require(), require.resolve(),
// import(), bare side-effect imports and import/export ... from.
// Group 1 is everything up to the opening quote, group 2 the quote, group 3 the specifier.
var requirePattern = regexp.MustCompile(
	`((?:\brequire(?:\.resolve)?|\bimport)\s*\(\s*|\bfrom\s+|\bimport\s+)(['"])([^'"\n]+)(['"])`)

// requireRewriter turns scoped workspace specifiers into relative paths.
type requireRewriter struct {
	// distDir is the staging root.
	distDir string
	// packagesDir is the staged packages folder relative to distDir.
	packagesDir string
	// scope is the workspace npm scope, e.g. "@packages/".
	scope string
}

// rewriteTree rewrites every script outside node_modules and returns the changed files.
func (r requireRewriter) rewriteTree(patterns []string) ([]string, error) {
	changed := make([]string, 0)

	for _, pattern := range patterns {
		files, err := fsglob.Match(r.distDir, pattern, vendoredPattern)
		if err != nil {
			return changed, err
		}

		for _, rel := range files {
			ok, err := r.rewriteFile(rel)
			if err != nil {
				return changed, err
			}

			if ok {
				changed = append(changed, rel)
			}
		}
	}

	return changed, nil
}

// rewriteFile rewrites one slash-separated file path under distDir and reports whether it changed.
func (r requireRewriter) rewriteFile(rel string) (bool, error) {
	abs := filepath.Join(r.distDir, filepath.FromSlash(rel))

	info, err := os.Lstat(abs)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", rel, err)
	}

	if !info.Mode().IsRegular() {
		return false, nil
	}

	contents, err := os.ReadFile(abs)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rel, err)
	}

	rewritten, err := r.rewriteSource(path.Dir(rel), string(contents))
	if err != nil {
		return false, fmt.Errorf("rewrite %s: %w", rel, err)
	}

	if rewritten == string(contents) {
		return false, nil
	}

	if err = os.WriteFile(abs, []byte(rewritten), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("write %s: %w", rel, err)
	}

	return true, nil
}

// rewriteSource replaces scoped specifiers in src, a file located in fileDir
// (slash-separated, relative to distDir). The first specifier that cannot be
// made relative fails the whole file.
func (r requireRewriter) rewriteSource(fileDir, src string) (string, error) {
	var firstErr error

	out := requirePattern.ReplaceAllStringFunc(src, func(match string) string {
		groups := requirePattern.FindStringSubmatch(match)
		prefix, openQuote, specifier, closeQuote := groups[1], groups[2], groups[3], groups[4]

		if firstErr != nil || openQuote != closeQuote || !strings.HasPrefix(specifier, r.scope) {
			return match
		}

		rel, err := r.relativeSpecifier(fileDir, specifier)
		if err != nil {
			firstErr = err

			return match
		}

		return prefix + openQuote + rel + closeQuote
	})
	if firstErr != nil {
		return "", firstErr
	}

	return out, nil
}

// relativeSpecifier maps "@packages/server/lib/x" seen from fileDir to "../../server/lib/x".
func (r requireRewriter) relativeSpecifier(fileDir, specifier string) (string, error) {
	target := path.Join(r.packagesDir, strings.TrimPrefix(specifier, r.scope))

	rel, err := filepath.Rel(filepath.FromSlash(fileDir), filepath.FromSlash(target))
	if err != nil {
		return "", fmt.Errorf("resolve %q from %s: %w", specifier, fileDir, err)
	}

	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}

	return rel, nil
}
