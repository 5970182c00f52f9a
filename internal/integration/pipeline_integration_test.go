//go:build !windows

package integration

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
	"github.com/oshokin/app-release/internal/platform"
	"github.com/oshokin/app-release/internal/repository/report"
	"github.com/oshokin/app-release/internal/service/pipeline"
	"github.com/oshokin/app-release/internal/service/verifier"
)

// writeScript creates an executable shell script named name in dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))

	return path
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

// newWorkspace creates a two-package workspace and returns its root.
func newWorkspace(t *testing.T) string {
	t.Helper()

	root := t.TempDir()

	writeFile(t, filepath.Join(root, "package.json"),
		`{"name":"mono","description":"Test runner","scripts":{"build":"x"},"dependencies":{"@packages/server":"0.0.0"}}`)
	writeFile(t, filepath.Join(root, "yarn.lock"), "# lockfile\n")
	writeFile(t, filepath.Join(root, "packages/server/package.json"),
		`{"name":"@packages/server","main":"index.js","dependencies":{"@packages/electron":"0.0.0"}}`)
	writeFile(t, filepath.Join(root, "packages/server/index.js"), "module.exports = require('@packages/electron')\n")
	writeFile(t, filepath.Join(root, "packages/server/lib/html/error.html"), "<html/>\n")
	writeFile(t, filepath.Join(root, "packages/electron/package.json"),
		`{"name":"@packages/electron","main":"index.js","files":["lib"],"devDependencies":{"electron":"27.1.3"}}`)
	writeFile(t, filepath.Join(root, "packages/electron/index.js"), "module.exports = {}\n")
	writeFile(t, filepath.Join(root, "packages/electron/lib/launch.ts"), "export {}\n")

	return root
}

// TestPipeline_BuildsWithRealCommands runs the whole pipeline through os/exec against scripted tools.
//
//nolint:funlen // Integration test requires comprehensive setup and verification.
func TestPipeline_BuildsWithRealCommands(t *testing.T) {
	t.Parallel()

	host, err := release.HostPlatform(runtime.GOOS)
	if err != nil {
		t.Skipf("host is not a build platform: %v", err)
	}

	root := newWorkspace(t)
	bin := t.TempDir()

	resolver := platform.NewResolver(release.BuildContext{RootDir: root, ProductName: "Cypress", Arch: runtime.GOARCH})

	appDir, err := resolver.AppDir(host)
	require.NoError(t, err)

	executable, err := resolver.Executable(host)
	require.NoError(t, err)

	distDir, err := resolver.DistDir(host)
	require.NoError(t, err)

	// The bundler copies the staged tree and drops a launcher that exits cleanly.
	bundler := writeScript(t, bin, "electron-builder", strings.Join([]string{
		`mkdir -p "` + appDir + `" "` + filepath.Dir(executable) + `"`,
		`cp -R "` + distDir + `/." "` + appDir + `/"`,
		`printf '#!/bin/sh\nexit 0\n' > "` + executable + `"`,
		`chmod +x "` + executable + `"`,
	}, "\n"))

	// The interpreter answers --version with the version of the manifest next to index.js.
	interpreter := writeScript(t, bin, "node",
		`[ -f "$1" ] || exit 1
sed -n 's/^  "version": "\(.*\)",*$/\1/p' package.json`)

	cfg := config.Default()
	cfg.StaticAssets = []string{"packages/server/index.js"}
	cfg.PromoteDir = "releases"
	cfg.Tools.Build = config.Tool{Name: writeScript(t, bin, "build", "exit 0")}
	cfg.Tools.Install = config.Tool{Name: writeScript(t, bin, "install", "mkdir -p node_modules/image-q/demo")}
	cfg.Tools.RuntimeProbe = config.Tool{Name: writeScript(t, bin, "electron", "echo 18.17.1")}
	cfg.Tools.Bundler = config.Tool{Name: bundler}
	cfg.Tools.Interpreter = config.Tool{Name: interpreter}
	cfg.Tools.Gatekeeper = config.Tool{Name: writeScript(t, bin, "spctl", "exit 0")}
	cfg.Tools.DiskUsage = config.Tool{Name: writeScript(t, bin, "du",
		`printf '120\t%s\n40\t%s/electron\n15\t%s/server\n' "$1" "$1" "$1"`)}
	cfg.Timeouts.Command = time.Minute

	cfgPath := filepath.Join(root, config.DefaultConfigFilename)
	require.NoError(t, config.Save(cfgPath, cfg))

	loaded, err := config.Load(cfgPath)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rep, err := pipeline.BuildApp(ctx, &pipeline.Options{
		Platform: string(host),
		Version:  "10.3.0",
		RootDir:  root,
		Config:   loaded,
		VerifierOptions: []verifier.Option{
			verifier.WithEnv(func(string) string { return ":0" }),
		},
	})
	require.NoError(t, err)
	require.Equal(t, release.Packed, rep.Outcome)
	require.Equal(t, executable, rep.Executable)

	// Development content is gone and workspace requires are relative.
	require.NoFileExists(t, filepath.Join(appDir, "packages/electron/lib/launch.ts"))
	require.NoDirExists(t, filepath.Join(appDir, "node_modules/image-q/demo"))

	serverIndex, err := os.ReadFile(filepath.Join(appDir, "packages/server/index.js"))
	require.NoError(t, err)
	require.Equal(t, "module.exports = require('../electron')\n", string(serverIndex))

	if host != release.Windows {
		require.Contains(t, rep.Sizes, release.PackageSize{Name: "server", SizeKB: 15})
	}

	require.FileExists(t, filepath.Join(root, "releases", string(host), filepath.Base(executable)))

	saved, err := report.NewFileRepository(filepath.Join(root, "build", config.DefaultReportFilename)).
		Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, rep.RunID, saved.RunID)
	require.Equal(t, "27.1.3", saved.RuntimeVersion)
}
