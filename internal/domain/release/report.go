package release

import "time"

// Report is the record of one successful pipeline run.
type Report struct {
	// RunID identifies the run.
	RunID string `yaml:"run_id"`
	// Platform is the platform that was built.
	Platform PlatformID `yaml:"platform"`
	// Version is the released version.
	Version string `yaml:"version"`
	// Arch is the host CPU architecture.
	Arch string `yaml:"arch"`
	// RuntimeVersion is the bundled runtime version.
	RuntimeVersion string `yaml:"runtime_version"`
	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	// Outcome is the packaging status.
	Outcome PackStatus `yaml:"outcome"`
	// Warning holds the downgraded packaging failure, if any.
	Warning string `yaml:"warning,omitempty"`
	// StagedManifests are the manifests whose local references were pinned.
	StagedManifests []string `yaml:"staged_manifests,omitempty"`
	// Executable is the verified launchable binary.
	Executable string `yaml:"executable"`
	// PromotedTo is the release folder copy of Executable, if promotion ran.
	PromotedTo string `yaml:"promoted_to,omitempty"`
	// Checksum is the base64 SHA-512 of the promoted executable.
	Checksum string `yaml:"checksum,omitempty"`
	// Sizes is the per-subpackage disk usage, absent on win32.
	Sizes DiskUsageReport `yaml:"sizes,omitempty"`
}
