package verifier

import (
	"context"
	"os"
	"path/filepath"

	"github.com/oshokin/app-release/internal/command"
	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
	"github.com/oshokin/app-release/internal/logger"
)

// Stage names of the individual gates.
const (
	StageVersion   = "verify-version"
	StageStatic    = "verify-static"
	StageIntegrity = "verify-integrity"
	StageSmoke     = "verify-smoke"
)

// Request lists the artifacts to verify.
type Request struct {
	// Build describes the run; Build.Version is the expected version.
	Build release.BuildContext
	// DistDir is the staged application folder.
	DistDir string
	// AppDir is the packed application resources folder.
	AppDir string
	// Executable is the packed launchable binary.
	Executable string
	// ZipDir is the folder whose signature is checked on darwin.
	ZipDir string
}

// Verifier checks packed artifacts. Every gate is fatal.
type Verifier struct {
	cfg    *config.Config
	runner command.Runner

	// newDisplay creates the virtual display used by the smoke test.
	newDisplay func(tool config.Tool) VirtualDisplay
	// getenv reads the host environment.
	getenv func(key string) string
	// reap kills processes the smoke test left in its process group.
	reap func(pgid int) ([]int, error)
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithDisplayFactory replaces the Xvfb display used by the smoke test.
func WithDisplayFactory(factory func(tool config.Tool) VirtualDisplay) Option {
	return func(v *Verifier) {
		v.newDisplay = factory
	}
}

// WithEnv replaces the lookup used to detect a physical display.
func WithEnv(getenv func(key string) string) Option {
	return func(v *Verifier) {
		v.getenv = getenv
	}
}

// WithReaper replaces the cleanup of processes left behind by the smoke test.
// reap receives the process group of the smoke test run.
func WithReaper(reap func(pgid int) ([]int, error)) Option {
	return func(v *Verifier) {
		v.reap = reap
	}
}

// New returns a Verifier configured by cfg.
func New(cfg *config.Config, runner command.Runner, opts ...Option) *Verifier {
	v := &Verifier{
		cfg:    cfg,
		runner: runner,
		newDisplay: func(tool config.Tool) VirtualDisplay {
			return NewXvfbDisplay(tool)
		},
		getenv: os.Getenv,
		reap:   terminateProcessGroup,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Verify runs the gates in order: version, static assets, integrity, smoke test.
// The first failing gate aborts verification.
func (v *Verifier) Verify(ctx context.Context, req Request) error {
	platform := req.Build.Platform

	if err := v.VerifyVersion(ctx, req.DistDir, req.Build.Version); err != nil {
		return release.NewStageError(StageVersion, platform, release.ErrVersionMismatch, err)
	}

	if err := v.VerifyVersion(ctx, req.AppDir, req.Build.Version); err != nil {
		return release.NewStageError(StageVersion, platform, release.ErrVersionMismatch, err)
	}

	if err := VerifyStaticAssets(req.AppDir, v.cfg.StaticAssets); err != nil {
		return release.NewStageError(StageStatic, platform, release.ErrStaticAssets, err)
	}

	logger.InfoKV(ctx, "Static assets are present", "count", len(v.cfg.StaticAssets))

	if err := v.VerifyIntegrity(ctx, platform, req.ZipDir); err != nil {
		return release.NewStageError(StageIntegrity, platform, release.ErrIntegrity, err)
	}

	if err := v.SmokeTest(ctx, platform, req.Executable); err != nil {
		return release.NewStageError(StageSmoke, platform, release.ErrSmokeTest, err)
	}

	return nil
}

// SmokeTest launches the packed executable and requires a clean exit. On a
// linux host without DISPLAY it runs inside a virtual display.
func (v *Verifier) SmokeTest(ctx context.Context, platform release.PlatformID, executable string) error {
	ctx = logger.WithKV(ctx, "stage", StageSmoke)

	var pgid int

	run := func(env []string) error {
		logger.InfoKV(ctx, "Running smoke test", "executable", executable)

		result, err := command.Check(ctx, v.runner, command.Spec{
			Name:    executable,
			Args:    v.cfg.SmokeArgs,
			Env:     env,
			Dir:     filepath.Dir(executable),
			Timeout: v.cfg.Timeouts.Smoke,
			Stream:  true,
		})
		if result != nil {
			pgid = result.Pid
		}

		return err
	}

	var err error
	if v.needsDisplay(platform) {
		err = withVirtualDisplay(ctx, v.newDisplay(v.cfg.Tools.Display), run)
	} else {
		err = run(nil)
	}

	if pgid > 0 {
		v.reapStrays(ctx, pgid)
	}

	return err
}

func (v *Verifier) needsDisplay(platform release.PlatformID) bool {
	return platform == release.Linux && v.getenv("DISPLAY") == ""
}

// reapStrays kills what the smoke test left running in its process group.
func (v *Verifier) reapStrays(ctx context.Context, pgid int) {
	killed, err := v.reap(pgid)
	if err != nil {
		logger.WarnKV(ctx, "Cannot clean up leftover processes", "pgid", pgid, "error", err)

		return
	}

	if len(killed) > 0 {
		logger.InfoKV(ctx, "Killed leftover processes", "pgid", pgid, "pids", killed)
	}
}
