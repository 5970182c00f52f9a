package release

// BuildContext is the read-only description of one pipeline run.
// It is created once by the pipeline driver and passed by value to every stage.
type BuildContext struct {
	// RunID identifies the run in logs and in the release report.
	RunID string
	// Platform is the target platform; always equal to the host platform.
	Platform PlatformID
	// Version is the application version being released.
	Version string
	// Arch is the host CPU architecture in GOARCH terms.
	Arch string
	// ProductName is the user-facing application name used in bundle paths.
	ProductName string
	// RootDir is the workspace root holding the root manifest and packages/.
	RootDir string
	// DistDir is the staging directory, dist/<platform>.
	DistDir string
	// BuildDir is the bundler output root, build/.
	BuildDir string
}
