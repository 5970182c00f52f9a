package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/app-release/internal/command"
	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
	"github.com/oshokin/app-release/internal/logger"
	"github.com/oshokin/app-release/internal/platform"
	"github.com/oshokin/app-release/internal/repository/report"
	"github.com/oshokin/app-release/internal/service/packager"
	"github.com/oshokin/app-release/internal/service/promoter"
	"github.com/oshokin/app-release/internal/service/sizereport"
	"github.com/oshokin/app-release/internal/service/stager"
	"github.com/oshokin/app-release/internal/service/stripper"
	"github.com/oshokin/app-release/internal/service/verifier"
)

// Stage names owned by the pipeline itself.
const (
	// StageConfigure names the checks performed before any work starts.
	StageConfigure = "configure"
	// StageReport names persisting the release report.
	StageReport = "report"
)

var (
	// errEmptyVersion is returned when no release version is provided.
	errEmptyVersion = errors.New("version must be provided")
	// errEmptyRuntimeVersion is returned when staging produced no runtime version.
	errEmptyRuntimeVersion = errors.New("staged manifest has no runtime version")
	// errStagedVersion is returned when the staged manifest carries another version.
	errStagedVersion = errors.New("staged manifest version differs from the release version")
)

// Options contains inputs for one pipeline run.
type Options struct {
	// Platform is the requested target platform; it must be the host platform.
	Platform string
	// Version is the application version being released.
	Version string
	// RootDir is the workspace root; empty means the current directory.
	RootDir string
	// Config holds release settings; nil means defaults.
	Config *config.Config
	// Runner executes subprocesses; nil means the os/exec runner.
	Runner command.Runner
	// HostOS and Arch describe the host; empty means runtime.GOOS and runtime.GOARCH.
	HostOS string
	Arch   string
	// VerifierOptions customize the verification gates.
	VerifierOptions []verifier.Option
}

// pipeline wires the stages of one run. It is unexported; callers use BuildApp.
type pipeline struct {
	cfg      *config.Config
	bc       release.BuildContext
	resolver platform.Resolver

	stager     *stager.Stager
	stripper   *stripper.Stripper
	packager   *packager.Packager
	verifier   *verifier.Verifier
	reporter   *sizereport.Reporter
	promoter   *promoter.Promoter
	repository report.Repository
}

// BuildApp stages, packs and verifies the application for the host platform
// and returns the persisted release report. Stages run strictly in order and
// the first fatal failure aborts the run with a *release.StageError.
func BuildApp(ctx context.Context, opts *Options) (*release.Report, error) {
	p, err := newPipeline(opts)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithName(ctx, "app-release")
	ctx = logger.WithFields(ctx, "run_id", p.bc.RunID, "platform", p.bc.Platform)

	return p.run(ctx)
}

func newPipeline(opts *Options) (*pipeline, error) {
	if opts == nil {
		opts = new(Options)
	}

	target, err := release.ParsePlatform(opts.Platform)
	if err != nil {
		return nil, release.NewStageError(StageConfigure, release.PlatformID(opts.Platform), release.ErrConfiguration, err)
	}

	if err = checkHost(target, opts.HostOS); err != nil {
		return nil, release.NewStageError(StageConfigure, target, release.ErrPlatformMismatch, err)
	}

	version := strings.TrimSpace(opts.Version)
	if version == "" {
		return nil, release.NewStageError(StageConfigure, target, release.ErrConfiguration, errEmptyVersion)
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	if err = config.Validate(cfg); err != nil {
		return nil, release.NewStageError(StageConfigure, target, release.ErrConfiguration, err)
	}

	root, err := filepath.Abs(valueOr(opts.RootDir, "."))
	if err != nil {
		return nil, release.NewStageError(StageConfigure, target, release.ErrConfiguration, err)
	}

	bc := release.BuildContext{
		RunID:       uuid.NewString(),
		Platform:    target,
		Version:     version,
		Arch:        valueOr(opts.Arch, runtime.GOARCH),
		ProductName: cfg.ProductName,
		RootDir:     root,
	}

	resolver := platform.NewResolver(bc)
	bc.BuildDir = resolver.BuildRoot()

	if bc.DistDir, err = resolver.DistDir(target); err != nil {
		return nil, release.NewStageError(StageConfigure, target, release.ErrConfiguration, err)
	}

	runner := opts.Runner
	if runner == nil {
		runner = command.NewExecRunner(cfg.Timeouts.Command)
	}

	return &pipeline{
		cfg:        cfg,
		bc:         bc,
		resolver:   resolver,
		stager:     stager.New(cfg, runner),
		stripper:   stripper.New(cfg),
		packager:   packager.New(cfg, runner),
		verifier:   verifier.New(cfg, runner, opts.VerifierOptions...),
		reporter:   sizereport.New(cfg, runner),
		promoter:   promoter.New(cfg.PromoteDir, root),
		repository: report.NewFileRepository(filepath.Join(bc.BuildDir, cfg.ReportFilename())),
	}, nil
}

// checkHost rejects a target that differs from the host platform.
func checkHost(target release.PlatformID, hostOS string) error {
	host, err := release.HostPlatform(valueOr(hostOS, runtime.GOOS))
	if err != nil {
		return err
	}

	if host != target {
		return fmt.Errorf("cannot build %s on a %s host", target, host)
	}

	return nil
}

//nolint:cyclop,funlen // Linear sequence of stages; each one returns early on failure.
func (p *pipeline) run(ctx context.Context) (*release.Report, error) {
	bc := p.bc
	rep := &release.Report{
		RunID:     bc.RunID,
		Platform:  bc.Platform,
		Version:   bc.Version,
		Arch:      bc.Arch,
		StartedAt: time.Now().UTC(),
	}

	logger.InfoKV(ctx, "Building application", "version", bc.Version, "arch", bc.Arch, "root", bc.RootDir)

	logger.InfoKV(ctx, "Starting stage", "stage", stager.StageName, "dist", bc.DistDir)

	staged, err := p.stager.Stage(ctx, bc)
	if err != nil {
		return nil, err
	}

	rep.RuntimeVersion = staged.RuntimeVersion()
	rep.StagedManifests = staged.Visited

	if rep.RuntimeVersion == "" {
		return nil, release.NewStageError(stager.StageName, bc.Platform, release.ErrStaging, errEmptyRuntimeVersion)
	}

	if staged.Version() != bc.Version {
		return nil, release.NewStageError(stager.StageName, bc.Platform, release.ErrStaging,
			fmt.Errorf("%w: %q", errStagedVersion, staged.Version()))
	}

	logger.InfoKV(ctx, "Staged release manifest",
		"name", staged.Name(), "version", staged.Version(), "electron", rep.RuntimeVersion)

	logger.InfoKV(ctx, "Starting stage", "stage", stripper.StageName)

	if _, err = p.stripper.Strip(ctx, bc); err != nil {
		return nil, err
	}

	paths, err := p.resolvePaths()
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Starting stage", "stage", packager.StageName, "output", bc.BuildDir)

	outcome := p.packager.Pack(ctx, packager.Request{
		Build:          bc,
		AppDir:         bc.DistDir,
		OutputDir:      bc.BuildDir,
		ListDir:        paths.buildDir,
		IconPath:       paths.icon,
		RuntimeVersion: rep.RuntimeVersion,
	})

	rep.Outcome = outcome.Status
	if outcome.HasWarning() {
		rep.Warning = outcome.Cause.Error()
		logger.WarnKV(ctx, "PACKAGING FAILED, continuing to verification", "stage", packager.StageName, "error", outcome.Cause)
	}

	logger.InfoKV(ctx, "Starting stage", "stage", "verify", "app", paths.appDir)

	err = p.verifier.Verify(ctx, verifier.Request{
		Build:      bc,
		DistDir:    bc.DistDir,
		AppDir:     paths.appDir,
		Executable: paths.executable,
		ZipDir:     paths.zipDir,
	})
	if err != nil {
		return nil, err
	}

	rep.Executable = paths.executable

	if bc.Platform == release.Windows {
		logger.InfoKV(ctx, "Skipping size report", "stage", sizereport.StageName)
	} else {
		p.reportSizes(ctx, paths.appDir, rep)
	}

	if p.promoter.Enabled() {
		logger.InfoKV(ctx, "Starting stage", "stage", promoter.StageName)

		var promotion *promoter.Promotion

		if promotion, err = p.promoter.Promote(ctx, bc, paths.executable); err != nil {
			return nil, err
		}

		rep.PromotedTo = promotion.Target
		rep.Checksum = promotion.Checksum
	}

	rep.FinishedAt = time.Now().UTC()

	if err = p.repository.Save(ctx, rep); err != nil {
		return nil, release.NewStageError(StageReport, bc.Platform, release.ErrReport, err)
	}

	logger.InfoKV(ctx, "Saved release report", "stage", StageReport, "path", p.repository.Path())

	logger.InfoKV(ctx, "Application built",
		"outcome", rep.Outcome,
		"executable", rep.Executable,
		"duration", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Second).String(),
	)

	return rep, nil
}

// reportSizes records subpackage sizes; a failure is logged and does not abort the run.
func (p *pipeline) reportSizes(ctx context.Context, appDir string, rep *release.Report) {
	logger.InfoKV(ctx, "Starting stage", "stage", sizereport.StageName)

	sizes, err := p.reporter.Report(ctx, appDir)
	if err != nil {
		logger.WarnKV(ctx, "Cannot measure package sizes", "stage", sizereport.StageName, "error", err)

		return
	}

	rep.Sizes = sizes
}

// artifactPaths are the packed artifact locations for the run's platform.
type artifactPaths struct {
	buildDir   string
	appDir     string
	executable string
	zipDir     string
	icon       string
}

func (p *pipeline) resolvePaths() (*artifactPaths, error) {
	var (
		target = p.bc.Platform
		paths  = new(artifactPaths)
		err    error
	)

	if paths.buildDir, err = p.resolver.BuildDir(target); err != nil {
		return nil, release.NewStageError(StageConfigure, target, release.ErrConfiguration, err)
	}

	if paths.appDir, err = p.resolver.AppDir(target); err != nil {
		return nil, release.NewStageError(StageConfigure, target, release.ErrConfiguration, err)
	}

	if paths.executable, err = p.resolver.Executable(target); err != nil {
		return nil, release.NewStageError(StageConfigure, target, release.ErrConfiguration, err)
	}

	if paths.zipDir, err = p.resolver.ZipDir(target); err != nil {
		return nil, release.NewStageError(StageConfigure, target, release.ErrConfiguration, err)
	}

	if paths.icon, err = p.resolver.Icon(target, p.cfg.IconDir); err != nil {
		return nil, release.NewStageError(StageConfigure, target, release.ErrConfiguration, err)
	}

	return paths, nil
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
