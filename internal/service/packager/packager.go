package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/oshokin/app-release/internal/command"
	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
	"github.com/oshokin/app-release/internal/logger"
)

// StageName identifies this stage in errors and logs.
const StageName = "pack"

// errMissingRuntimeVersion indicates that the staged manifest carries no runtime version.
var errMissingRuntimeVersion = errors.New("runtime version is empty")

// Request contains inputs for one bundler run.
type Request struct {
	// Build describes the run.
	Build release.BuildContext
	// AppDir is the staged application folder handed to the bundler.
	AppDir string
	// OutputDir is the bundler output root.
	OutputDir string
	// ListDir is the per-platform output folder listed after packing.
	ListDir string
	// IconPath is the platform icon.
	IconPath string
	// RuntimeVersion is the bundled runtime version, e.g. "27.1.3".
	RuntimeVersion string
}

// Packager invokes the bundler on a staged tree.
type Packager struct {
	cfg    *config.Config
	runner command.Runner
}

// New returns a Packager configured by cfg.
func New(cfg *config.Config, runner command.Runner) *Packager {
	return &Packager{
		cfg:    cfg,
		runner: runner,
	}
}

// Pack runs the bundler. A bundler failure does not abort the run: it is
// reported as PackagedWithWarning with an ErrPackaging cause.
func (p *Packager) Pack(ctx context.Context, req Request) release.PackOutcome {
	ctx = logger.WithKV(ctx, "stage", StageName)

	if err := p.pack(ctx, req); err != nil {
		return release.PackOutcome{
			Status: release.PackagedWithWarning,
			Cause:  release.NewStageError(StageName, req.Build.Platform, release.ErrPackaging, err),
		}
	}

	p.logListing(ctx, req.ListDir)

	return release.PackOutcome{Status: release.Packed}
}

func (p *Packager) pack(ctx context.Context, req Request) error {
	if req.RuntimeVersion == "" {
		return errMissingRuntimeVersion
	}

	if _, err := os.Stat(req.AppDir); err != nil {
		return fmt.Errorf("staged application: %w", err)
	}

	tool := p.cfg.Tools.Bundler
	spec := command.Spec{
		Name:    tool.Name,
		Args:    append(append([]string(nil), tool.Args...), Args(req)...),
		Env:     tool.Env,
		Dir:     req.Build.RootDir,
		Timeout: p.cfg.Timeouts.Command,
		Stream:  true,
	}

	logger.InfoKV(ctx, "Packing application", "command", spec.String())

	_, err := command.Check(ctx, p.runner, spec)

	return err
}

// Args returns the bundler flags for req.
func Args(req Request) []string {
	return []string{
		"--publish=never",
		"--c.electronVersion=" + req.RuntimeVersion,
		"--c.directories.app=" + req.AppDir,
		"--c.directories.output=" + req.OutputDir,
		"--c.icon=" + req.IconPath,
		// Keep the tree unpacked so the verifier can inspect files.
		"--c.asar=false",
	}
}

// logListing logs the entries of dir for inspection.
func (p *Packager) logListing(ctx context.Context, dir string) {
	if dir == "" {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.WarnKV(ctx, "Cannot list build folder", "path", dir, "error", err)

		return
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	sort.Strings(names)

	logger.InfoKV(ctx, "Build folder contents", "path", dir, "entries", strings.Join(names, ", "))
}
