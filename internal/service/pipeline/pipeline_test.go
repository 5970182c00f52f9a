package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/app-release/internal/command"
	"github.com/oshokin/app-release/internal/command/commandtest"
	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
	"github.com/oshokin/app-release/internal/platform"
	"github.com/oshokin/app-release/internal/repository/report"
	"github.com/oshokin/app-release/internal/service/verifier"
)

const testVersion = "10.3.0"

var hostOS = map[release.PlatformID]string{
	release.Darwin:  "darwin",
	release.Linux:   "linux",
	release.Windows: "windows",
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o755))
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	writeFile(t, path, string(data))
}

// newWorkspace lays out a minimal monorepo and returns its root.
func newWorkspace(t *testing.T) string {
	t.Helper()

	root := t.TempDir()

	writeJSON(t, filepath.Join(root, "package.json"), map[string]any{
		"name":            "app-monorepo",
		"description":     "Desktop test runner",
		"devDependencies": map[string]any{"lerna": "^8"},
		"dependencies":    map[string]any{"@packages/server": "0.0.0-development"},
	})
	writeFile(t, filepath.Join(root, "yarn.lock"), "# lockfile\n")

	writeJSON(t, filepath.Join(root, "packages/server/package.json"), map[string]any{
		"name":         "@packages/server",
		"main":         "index.js",
		"dependencies": map[string]any{"@packages/electron": "0.0.0-development"},
	})
	writeFile(t, filepath.Join(root, "packages/server/index.js"), "require('@packages/electron')\n")
	writeFile(t, filepath.Join(root, "packages/server/index.ts"), "import '@packages/electron'\n")

	writeJSON(t, filepath.Join(root, "packages/electron/package.json"), map[string]any{
		"name":            "@packages/electron",
		"main":            "index.js",
		"devDependencies": map[string]any{"electron": "^27.1.3"},
	})
	writeFile(t, filepath.Join(root, "packages/electron/index.js"), "module.exports = {}\n")

	return root
}

// writePackedApp creates what the bundler would produce for p.
func writePackedApp(t *testing.T, root string, p release.PlatformID) {
	t.Helper()

	resolver := platform.NewResolver(release.BuildContext{RootDir: root, ProductName: "Cypress", Arch: "amd64"})

	appDir, err := resolver.AppDir(p)
	require.NoError(t, err)

	writeFile(t, filepath.Join(appDir, "index.js"), "// packed\n")

	for _, asset := range config.Default().StaticAssets {
		writeFile(t, filepath.Join(appDir, filepath.FromSlash(asset)), "asset")
	}

	executable, err := resolver.Executable(p)
	require.NoError(t, err)
	writeFile(t, executable, "#!/bin/sh\n")
}

type harness struct {
	root   string
	runner *commandtest.Runner
	opts   *Options
}

func newHarness(t *testing.T, p release.PlatformID) *harness {
	t.Helper()

	root := newWorkspace(t)

	runner := commandtest.New().
		Stdout("electron", "18.17.1\n", 0).
		Stdout("du", "120\t/x/packages\n40\t/x/packages/electron\n15\t/x/packages/server\n", 0).
		Handle("electron-builder", func(command.Spec) (*command.Result, error) {
			writePackedApp(t, root, p)

			return &command.Result{}, nil
		}).
		Handle("node", func(spec command.Spec) (*command.Result, error) {
			if _, err := os.Stat(filepath.Join(spec.Dir, "index.js")); err != nil {
				return &command.Result{ExitCode: 1, Stderr: "Cannot find module 'index.js'"}, nil
			}

			return &command.Result{Stdout: testVersion + "\n"}, nil
		})

	return &harness{
		root:   root,
		runner: runner,
		opts: &Options{
			Platform: string(p),
			Version:  testVersion,
			RootDir:  root,
			Config:   config.Default(),
			Runner:   runner,
			HostOS:   hostOS[p],
			Arch:     "amd64",
			VerifierOptions: []verifier.Option{
				verifier.WithEnv(func(string) string { return ":0" }),
				verifier.WithReaper(func(int) ([]int, error) { return nil, nil }),
			},
		},
	}
}

func TestBuildApp_Platforms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		platform     release.PlatformID
		gatekeeper   int
		diskUsage    int
		expectsSizes bool
	}{
		{platform: release.Darwin, gatekeeper: 1, diskUsage: 1, expectsSizes: true},
		{platform: release.Linux, gatekeeper: 0, diskUsage: 1, expectsSizes: true},
		{platform: release.Windows, gatekeeper: 0, diskUsage: 0, expectsSizes: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.platform), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, tt.platform)

			rep, err := BuildApp(context.Background(), h.opts)
			require.NoError(t, err)

			require.Equal(t, release.Packed, rep.Outcome)
			require.Empty(t, rep.Warning)
			require.Equal(t, "27.1.3", rep.RuntimeVersion)
			require.NotEmpty(t, rep.RunID)
			require.Len(t, h.runner.CallsTo("spctl"), tt.gatekeeper)
			require.Len(t, h.runner.CallsTo("du"), tt.diskUsage)
			require.Len(t, h.runner.CallsTo("node"), 2)
			require.Len(t, h.runner.CallsTo(rep.Executable), 1)

			if tt.expectsSizes {
				require.Equal(t, release.DiskUsageReport{
					{Name: "server", SizeKB: 15},
					{Name: "electron", SizeKB: 40},
				}, rep.Sizes)
			} else {
				require.Empty(t, rep.Sizes)
			}

			distDir := filepath.Join(h.root, "dist", string(tt.platform))
			require.NoFileExists(t, filepath.Join(distDir, "packages/server/index.ts"))

			saved, err := report.NewFileRepository(filepath.Join(h.root, "build", config.DefaultReportFilename)).
				Load(context.Background())
			require.NoError(t, err)
			require.Equal(t, rep.RunID, saved.RunID)
			require.Equal(t, tt.platform, saved.Platform)
		})
	}
}

func TestBuildApp_PackagingFailureIsDowngraded(t *testing.T) {
	t.Parallel()

	h := newHarness(t, release.Linux)
	h.runner.Handle("electron-builder", func(command.Spec) (*command.Result, error) {
		// The bundler wrote the app and then failed on a later step.
		writePackedApp(t, h.root, release.Linux)

		return &command.Result{ExitCode: 1, Stderr: "publisher failed"}, nil
	})

	rep, err := BuildApp(context.Background(), h.opts)
	require.NoError(t, err)
	require.Equal(t, release.PackagedWithWarning, rep.Outcome)
	require.Contains(t, rep.Warning, "publisher failed")
}

func TestBuildApp_PackagingFailureCaughtByVerifier(t *testing.T) {
	t.Parallel()

	h := newHarness(t, release.Linux)
	h.runner.Exit("electron-builder", 1, "out of disk space")

	_, err := BuildApp(context.Background(), h.opts)
	require.ErrorIs(t, err, release.ErrVersionMismatch)
	require.NoFileExists(t, filepath.Join(h.root, "build", config.DefaultReportFilename))
}

func TestBuildApp_IntegrityFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, release.Darwin)
	h.runner.Exit("spctl", 3, "rejected")

	_, err := BuildApp(context.Background(), h.opts)
	require.ErrorIs(t, err, release.ErrIntegrity)
	require.Empty(t, h.runner.CallsTo("du"))
}

func TestBuildApp_Promotes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, release.Linux)
	h.opts.Config.PromoteDir = "releases"

	rep, err := BuildApp(context.Background(), h.opts)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(h.root, "releases", "linux", "Cypress"), rep.PromotedTo)
	require.NotEmpty(t, rep.Checksum)
	require.FileExists(t, rep.PromotedTo)
}

func TestBuildApp_ReportFailureCarriesStage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, release.Linux)

	// A folder in place of the report file makes the write fail.
	require.NoError(t, os.MkdirAll(filepath.Join(h.root, "build", config.DefaultReportFilename), 0o755))

	_, err := BuildApp(context.Background(), h.opts)
	require.ErrorIs(t, err, release.ErrReport)

	var stageErr *release.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, StageReport, stageErr.Stage)
	require.Equal(t, release.Linux, stageErr.Platform)
}

func TestBuildApp_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*Options)
		expected error
	}{
		{
			name:     "platform mismatch",
			mutate:   func(o *Options) { o.HostOS = "darwin" },
			expected: release.ErrPlatformMismatch,
		},
		{
			name:     "unknown platform",
			mutate:   func(o *Options) { o.Platform = "solaris" },
			expected: release.ErrConfiguration,
		},
		{
			name:     "unsupported host",
			mutate:   func(o *Options) { o.HostOS = "plan9" },
			expected: release.ErrConfiguration,
		},
		{
			name:     "empty version",
			mutate:   func(o *Options) { o.Version = " " },
			expected: release.ErrConfiguration,
		},
		{
			name:     "invalid config",
			mutate:   func(o *Options) { o.Config.ProductName = "" },
			expected: release.ErrConfiguration,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, release.Linux)
			tt.mutate(h.opts)

			_, err := BuildApp(context.Background(), h.opts)
			require.ErrorIs(t, err, tt.expected)
			require.ErrorIs(t, err, release.ErrConfiguration)
			require.Empty(t, h.runner.Calls())
		})
	}
}
