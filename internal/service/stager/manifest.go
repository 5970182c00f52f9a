package stager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oshokin/app-release/internal/config"
)

// manifestFilename is the npm package manifest.
const manifestFilename = "package.json"

// manifest is a decoded package.json. Unknown fields are preserved.
type manifest map[string]any

func readManifest(path string) (manifest, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err = json.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}

	return m, nil
}

func writeManifest(path string, m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest %s: %w", path, err)
	}

	data = append(data, '\n')

	if err = os.WriteFile(path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

// without returns a shallow copy of m lacking the given keys.
func (m manifest) without(keys ...string) manifest {
	drop := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		drop[key] = struct{}{}
	}

	out := make(manifest, len(m))

	for key, value := range m {
		if _, skip := drop[key]; !skip {
			out[key] = value
		}
	}

	return out
}

func (m manifest) str(key string) string {
	v, _ := m[key].(string)

	return v
}

// stringList returns a string array field, ignoring non-string entries.
func (m manifest) stringList(key string) []string {
	raw, _ := m[key].([]any)
	out := make([]string, 0, len(raw))

	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}

	return out
}

// dependency looks a name up in dependencies, then devDependencies.
func (m manifest) dependency(name string) (string, bool) {
	for _, field := range []string{"dependencies", "devDependencies"} {
		deps, _ := m[field].(map[string]any)
		if v, ok := deps[name].(string); ok {
			return v, true
		}
	}

	return "", false
}

// scopedDependencies returns the sorted dependency names that carry scope.
func (m manifest) scopedDependencies(scope string) []string {
	deps, _ := m["dependencies"].(map[string]any)
	names := make([]string, 0, len(deps))

	for name := range deps {
		if strings.HasPrefix(name, scope) {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}
