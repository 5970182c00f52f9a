package verifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/app-release/internal/command"
	"github.com/oshokin/app-release/internal/command/commandtest"
	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
)

type fakeDisplay struct {
	starts   int
	stops    int
	startErr error
}

func (d *fakeDisplay) Start(context.Context) ([]string, error) {
	d.starts++
	if d.startErr != nil {
		return nil, d.startErr
	}

	return []string{"DISPLAY=:99"}, nil
}

func (d *fakeDisplay) Stop() error {
	d.stops++

	return nil
}

type fixture struct {
	req     Request
	runner  *commandtest.Runner
	display *fakeDisplay
	env     map[string]string
	reaped  []int
}

// smokePid is the process group reported by the fake smoke test run.
const smokePid = 4242

func newFixture(t *testing.T, platform release.PlatformID) *fixture {
	t.Helper()

	root := t.TempDir()
	distDir := filepath.Join(root, "dist", string(platform))
	appDir := filepath.Join(root, "build", "app")

	require.NoError(t, os.MkdirAll(distDir, 0o755))

	for _, asset := range config.Default().StaticAssets {
		path := filepath.Join(appDir, filepath.FromSlash(asset))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("asset"), 0o644))
	}

	return &fixture{
		req: Request{
			Build: release.BuildContext{
				Platform: platform,
				Version:  "10.3.0",
				RootDir:  root,
			},
			DistDir:    distDir,
			AppDir:     appDir,
			Executable: filepath.Join(root, "build", "Cypress"),
			ZipDir:     filepath.Join(root, "build", "mac", "Cypress.app"),
		},
		runner:  commandtest.New().Stdout("node", "10.3.0\n", 0),
		display: new(fakeDisplay),
		env:     map[string]string{},
	}
}

func (f *fixture) verifier() *Verifier {
	return New(config.Default(), f.runner,
		WithDisplayFactory(func(config.Tool) VirtualDisplay { return f.display }),
		WithEnv(func(key string) string { return f.env[key] }),
		WithReaper(func(pgid int) ([]int, error) {
			f.reaped = append(f.reaped, pgid)

			return nil, nil
		}),
	)
}

func requireStageError(t *testing.T, err error, stage string, kind error) {
	t.Helper()

	require.Error(t, err)
	require.ErrorIs(t, err, kind)

	var stageErr *release.StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, stage, stageErr.Stage)
}

func TestCheckVersionOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		output   string
		expected error
	}{
		{name: "exact match", output: "10.3.0\n", expected: nil},
		{name: "no trailing newline", output: "10.3.0", expected: nil},
		{name: "windows newline", output: "10.3.0\r\n", expected: nil},
		{name: "other version", output: "10.3.1\n", expected: errUnexpectedVersion},
		{name: "empty", output: "", expected: errEmptyVersion},
		{name: "newline only", output: "\n", expected: errEmptyVersion},
		{name: "leading space", output: " 10.3.0\n", expected: errUnexpectedVersion},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := CheckVersionOutput(tt.output, "10.3.0")
			if tt.expected == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestVerify_AllGatesPass(t *testing.T) {
	t.Parallel()

	f := newFixture(t, release.Linux)
	f.env["DISPLAY"] = ":0"
	f.runner.Handle(f.req.Executable, func(command.Spec) (*command.Result, error) {
		return &command.Result{Pid: smokePid}, nil
	})

	require.NoError(t, f.verifier().Verify(context.Background(), f.req))

	versionCalls := f.runner.CallsTo("node")
	require.Len(t, versionCalls, 2)
	require.Equal(t, f.req.DistDir, versionCalls[0].Dir)
	require.Equal(t, f.req.AppDir, versionCalls[1].Dir)
	require.Equal(t, []string{"index.js", "--version"}, versionCalls[0].Args)

	smokeCalls := f.runner.CallsTo(f.req.Executable)
	require.Len(t, smokeCalls, 1)
	require.Empty(t, smokeCalls[0].Args)
	require.Equal(t, []int{smokePid}, f.reaped)
	require.Zero(t, f.display.starts)
}

func TestVerify_VersionMismatch(t *testing.T) {
	t.Parallel()

	for _, output := range []string{"10.3.1\n", ""} {
		f := newFixture(t, release.Linux)
		f.runner.Stdout("node", output, 0)

		err := f.verifier().Verify(context.Background(), f.req)
		requireStageError(t, err, StageVersion, release.ErrVersionMismatch)
		require.Empty(t, f.runner.CallsTo(f.req.Executable))
	}
}

func TestVerify_PackedVersionMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, release.Linux)
	f.runner.Handle("node", func(spec command.Spec) (*command.Result, error) {
		if spec.Dir == f.req.AppDir {
			return &command.Result{Stdout: "10.2.9\n"}, nil
		}

		return &command.Result{Stdout: "10.3.0\n"}, nil
	})

	err := f.verifier().Verify(context.Background(), f.req)
	requireStageError(t, err, StageVersion, release.ErrVersionMismatch)
	require.Contains(t, err.Error(), "10.2.9")
}

func TestVerify_MissingStaticAsset(t *testing.T) {
	t.Parallel()

	f := newFixture(t, release.Linux)
	require.NoError(t, os.Remove(filepath.Join(f.req.AppDir, "packages/runner/dist/runner.css")))

	err := f.verifier().Verify(context.Background(), f.req)
	requireStageError(t, err, StageStatic, release.ErrStaticAssets)
	require.Contains(t, err.Error(), "packages/runner/dist/runner.css")
}

func TestVerify_IntegrityOnlyOnDarwin(t *testing.T) {
	t.Parallel()

	t.Run("darwin failure", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, release.Darwin)
		f.runner.Exit("spctl", 3, "rejected")

		err := f.verifier().Verify(context.Background(), f.req)
		requireStageError(t, err, StageIntegrity, release.ErrIntegrity)

		calls := f.runner.CallsTo("spctl")
		require.Len(t, calls, 1)
		require.Equal(t, []string{"-a", "-vvvv", f.req.ZipDir}, calls[0].Args)
		require.Empty(t, f.runner.CallsTo(f.req.Executable))
	})

	t.Run("darwin success", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, release.Darwin)

		require.NoError(t, f.verifier().Verify(context.Background(), f.req))
		require.Len(t, f.runner.CallsTo("spctl"), 1)
	})

	for _, platform := range []release.PlatformID{release.Linux, release.Windows} {
		platform := platform
		t.Run(string(platform), func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, platform)
			f.runner.Exit("spctl", 3, "rejected")

			require.NoError(t, f.verifier().Verify(context.Background(), f.req))
			require.Empty(t, f.runner.CallsTo("spctl"))
		})
	}
}

func TestSmokeTest_VirtualDisplay(t *testing.T) {
	t.Parallel()

	t.Run("released after success", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, release.Linux)

		require.NoError(t, f.verifier().SmokeTest(context.Background(), release.Linux, f.req.Executable))
		require.Equal(t, 1, f.display.starts)
		require.Equal(t, 1, f.display.stops)

		calls := f.runner.CallsTo(f.req.Executable)
		require.Len(t, calls, 1)
		require.Equal(t, []string{"DISPLAY=:99"}, calls[0].Env)
	})

	t.Run("released after failure", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, release.Linux)
		f.runner.Handle(f.req.Executable, func(command.Spec) (*command.Result, error) {
			return &command.Result{ExitCode: 1, Stderr: "segfault", Pid: smokePid}, nil
		})

		err := f.verifier().Verify(context.Background(), f.req)
		requireStageError(t, err, StageSmoke, release.ErrSmokeTest)
		require.Equal(t, 1, f.display.stops)
		require.Equal(t, []int{smokePid}, f.reaped)
	})

	t.Run("released after panic", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, release.Linux)
		f.runner.Handle(f.req.Executable, func(command.Spec) (*command.Result, error) {
			panic("runner crashed")
		})

		v := f.verifier()

		require.Panics(t, func() {
			_ = v.SmokeTest(context.Background(), release.Linux, f.req.Executable)
		})
		require.Equal(t, 1, f.display.stops)
	})

	t.Run("start failure", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, release.Linux)
		f.display.startErr = errDisplayNotReady

		err := f.verifier().SmokeTest(context.Background(), release.Linux, f.req.Executable)
		require.ErrorIs(t, err, errDisplayNotReady)
		require.Zero(t, f.display.stops)
		require.Empty(t, f.runner.CallsTo(f.req.Executable))
	})

	t.Run("not needed with display", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, release.Linux)
		f.env["DISPLAY"] = ":0"

		require.NoError(t, f.verifier().SmokeTest(context.Background(), release.Linux, f.req.Executable))
		require.Zero(t, f.display.starts)
	})

	for _, platform := range []release.PlatformID{release.Darwin, release.Windows} {
		platform := platform
		t.Run("not needed on "+string(platform), func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, platform)

			require.NoError(t, f.verifier().SmokeTest(context.Background(), platform, f.req.Executable))
			require.Zero(t, f.display.starts)
		})
	}
}

func TestWithVirtualDisplay_StopsOnce(t *testing.T) {
	t.Parallel()

	display := new(fakeDisplay)
	errBoom := errors.New("boom")

	err := withVirtualDisplay(context.Background(), display, func(env []string) error {
		require.Equal(t, []string{"DISPLAY=:99"}, env)

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, 1, display.starts)
	require.Equal(t, 1, display.stops)
}

func TestSmokeTest_SkipsCleanupWithoutProcess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, release.Darwin)
	f.runner.Handle(f.req.Executable, func(command.Spec) (*command.Result, error) {
		return nil, errors.New("exec format error")
	})

	err := f.verifier().SmokeTest(context.Background(), release.Darwin, f.req.Executable)
	require.Error(t, err)
	require.Empty(t, f.reaped)
}
