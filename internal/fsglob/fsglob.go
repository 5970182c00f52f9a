package fsglob

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Match returns the slash-separated paths under root matching pattern, sorted.
// Matches for which any exclude pattern also matches are dropped. Symlinked
// directories are not descended into.
func Match(root, pattern string, excludes ...string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithNoFollow())
	if err != nil {
		return nil, fmt.Errorf("expand pattern %q: %w", pattern, err)
	}

	out := make([]string, 0, len(matches))

	for _, match := range matches {
		excluded, err := MatchesAny(match, excludes)
		if err != nil {
			return nil, err
		}

		if !excluded {
			out = append(out, match)
		}
	}

	sort.Strings(out)

	return out, nil
}

// Remove deletes every path under root matching any pattern and not matching
// an exclude, and returns the removed paths in removal order.
func Remove(root string, patterns []string, excludes ...string) ([]string, error) {
	removed := make([]string, 0)

	for _, pattern := range patterns {
		matches, err := Match(root, pattern, excludes...)
		if err != nil {
			return removed, err
		}

		for _, match := range matches {
			if err = os.RemoveAll(filepath.Join(root, filepath.FromSlash(match))); err != nil {
				return removed, fmt.Errorf("remove %s: %w", match, err)
			}

			removed = append(removed, match)
		}
	}

	return removed, nil
}

// MatchesAny reports whether the slash-separated name matches any of patterns.
func MatchesAny(name string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			return false, fmt.Errorf("match exclude %q: %w", pattern, err)
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}
