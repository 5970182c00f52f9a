package release

// DevelopmentFields are removed from the root manifest before staging.
//
//nolint:gochecknoglobals // Read-only list shared by the stager and its tests.
var DevelopmentFields = []string{"scripts", "devDependencies", "lint-staged", "engines"}

// StagedManifest is the root package.json written into the staging directory.
type StagedManifest struct {
	// Fields holds the stripped original manifest merged with the release fields.
	Fields map[string]any
	// Path is where the manifest was written.
	Path string
	// Visited lists the staged manifests reached while pinning local references.
	Visited []string
}

// Name returns the manifest "name" field.
func (m *StagedManifest) Name() string {
	return m.str("name")
}

// Version returns the manifest "version" field.
func (m *StagedManifest) Version() string {
	return m.str("version")
}

// RuntimeVersion returns the bundler runtime version recorded in the manifest.
func (m *StagedManifest) RuntimeVersion() string {
	return m.str("electronVersion")
}

func (m *StagedManifest) str(key string) string {
	if m == nil {
		return ""
	}

	v, _ := m.Fields[key].(string)

	return v
}
