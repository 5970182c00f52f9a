package stager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cp "github.com/otiai10/copy"

	"github.com/oshokin/app-release/internal/command"
	"github.com/oshokin/app-release/internal/config"
	"github.com/oshokin/app-release/internal/domain/release"
	"github.com/oshokin/app-release/internal/fsglob"
	"github.com/oshokin/app-release/internal/logger"
)

// StageName identifies this stage in errors and logs.
const StageName = "stage"

// bootstrapFilename is the entry point written into the staging directory.
const bootstrapFilename = "index.js"

var (
	errMissingLocalPackage = errors.New("local package referenced but not staged")
	errRuntimeVersion      = errors.New("bundler runtime version not found")
	errRuntimeNodeVersion  = errors.New("bundler runtime reported no interpreter version")
)

// Stager assembles the staging directory from the workspace.
type Stager struct {
	cfg    *config.Config
	runner command.Runner
}

// New returns a Stager using cfg for layout and tools and runner for subprocesses.
func New(cfg *config.Config, runner command.Runner) *Stager {
	return &Stager{
		cfg:    cfg,
		runner: runner,
	}
}

// Stage clears the staging directory, builds and copies the workspace packages,
// pins local references, installs production dependencies, prunes large
// vendored subtrees and writes the release manifest and bootstrap.
// Any failure is fatal and reported as release.ErrStaging.
func (s *Stager) Stage(ctx context.Context, bc release.BuildContext) (*release.StagedManifest, error) {
	ctx = logger.WithKV(ctx, "stage", StageName)

	m, err := s.stage(ctx, bc)
	if err != nil {
		return nil, release.NewStageError(StageName, bc.Platform, release.ErrStaging, err)
	}

	return m, nil
}

//nolint:cyclop // Linear sequence of steps; each one returns early on failure.
func (s *Stager) stage(ctx context.Context, bc release.BuildContext) (*release.StagedManifest, error) {
	logger.InfoKV(ctx, "Cleaning staging directory", "dist", bc.DistDir)

	if err := os.RemoveAll(bc.DistDir); err != nil {
		return nil, fmt.Errorf("clean staging directory: %w", err)
	}

	logger.Info(ctx, "Building workspace packages")

	if err := s.run(ctx, s.cfg.Tools.Build, bc.RootDir); err != nil {
		return nil, fmt.Errorf("build packages: %w", err)
	}

	if err := s.copyPackages(ctx, bc); err != nil {
		return nil, err
	}

	root, err := s.stageRootManifest(bc)
	if err != nil {
		return nil, err
	}

	visited, err := s.pinLocalReferences(bc.DistDir)
	if err != nil {
		return nil, fmt.Errorf("pin local references: %w", err)
	}

	logger.InfoKV(ctx, "Pinned local package references", "manifests", len(visited))

	if err = s.removeUnreferencedPackages(ctx, bc.DistDir, visited); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Installing production dependencies")

	if err = s.run(ctx, s.cfg.Tools.Install, bc.DistDir); err != nil {
		return nil, fmt.Errorf("install production dependencies: %w", err)
	}

	removed, err := fsglob.Remove(bc.DistDir, s.cfg.ExtraDirPatterns)
	if err != nil {
		return nil, fmt.Errorf("remove extra directories: %w", err)
	}

	logger.InfoKV(ctx, "Deleted excess directories", "count", len(removed))

	staged, err := s.writeReleaseManifest(ctx, bc, root)
	if err != nil {
		return nil, err
	}

	staged.Visited = visited

	if err = s.writeBootstrap(bc.DistDir); err != nil {
		return nil, err
	}

	return staged, nil
}

func (s *Stager) run(ctx context.Context, tool config.Tool, dir string) error {
	_, err := command.Check(ctx, s.runner, command.Spec{
		Name:    tool.Name,
		Args:    tool.Args,
		Env:     tool.Env,
		Dir:     dir,
		Timeout: s.cfg.Timeouts.Command,
		Stream:  true,
	})

	return err
}

// copyPackages copies every workspace package into dist/<packages dir>/<name>.
func (s *Stager) copyPackages(ctx context.Context, bc release.BuildContext) error {
	packages, err := discoverPackages(filepath.Join(bc.RootDir, s.cfg.PackagesDir), s.cfg.IgnorePackages)
	if err != nil {
		return err
	}

	for _, pkg := range packages {
		logger.DebugKV(ctx, "Copying package", "package", pkg.Dir)

		if err = pkg.copyTo(filepath.Join(bc.DistDir, s.cfg.PackagesDir, pkg.Dir), s.cfg.BuildOutputs); err != nil {
			return err
		}
	}

	logger.InfoKV(ctx, "Copied workspace packages", "count", len(packages))

	return nil
}

// stageRootManifest writes the root manifest without development fields and copies the lockfile.
func (s *Stager) stageRootManifest(bc release.BuildContext) (manifest, error) {
	root, err := readManifest(filepath.Join(bc.RootDir, manifestFilename))
	if err != nil {
		return nil, err
	}

	stripped := root.without(release.DevelopmentFields...)

	if err = writeManifest(filepath.Join(bc.DistDir, manifestFilename), stripped); err != nil {
		return nil, err
	}

	if err = cp.Copy(filepath.Join(bc.RootDir, s.cfg.Lockfile), filepath.Join(bc.DistDir, s.cfg.Lockfile)); err != nil {
		return nil, fmt.Errorf("copy lockfile: %w", err)
	}

	return root, nil
}

// pinLocalReferences rewrites every scoped dependency, starting at the root
// manifest, into a file: reference relative to the referencing package and
// returns the manifests visited on the way.
func (s *Stager) pinLocalReferences(distDir string) ([]string, error) {
	visited := make(map[string]struct{})

	var visit func(rel string) error

	visit = func(rel string) error {
		manifestPath := filepath.Join(distDir, rel, manifestFilename)
		visited[manifestPath] = struct{}{}

		m, err := readManifest(manifestPath)
		if err != nil {
			return err
		}

		names := m.scopedDependencies(s.cfg.WorkspaceScope)
		if len(names) == 0 {
			return nil
		}

		deps, _ := m["dependencies"].(map[string]any)

		for _, name := range names {
			localRel := filepath.Join(s.cfg.PackagesDir, strings.TrimPrefix(name, s.cfg.WorkspaceScope))
			localManifest := filepath.Join(distDir, localRel, manifestFilename)

			if _, err = os.Stat(localManifest); err != nil {
				return fmt.Errorf("%s -> %s: %w", manifestPath, name, errMissingLocalPackage)
			}

			relative, err := filepath.Rel(filepath.Join(distDir, rel), filepath.Join(distDir, localRel))
			if err != nil {
				return err
			}

			deps[name] = "file:" + filepath.ToSlash(relative)

			if _, seen := visited[localManifest]; !seen {
				if err = visit(localRel); err != nil {
					return err
				}
			}
		}

		return writeManifest(manifestPath, m)
	}

	if err := visit("."); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(visited))
	for path := range visited {
		out = append(out, path)
	}

	sort.Strings(out)

	return out, nil
}

// removeUnreferencedPackages deletes staged packages no visited manifest refers to.
func (s *Stager) removeUnreferencedPackages(ctx context.Context, distDir string, visited []string) error {
	keep := make(map[string]struct{}, len(visited))
	for _, path := range visited {
		keep[filepath.Dir(path)] = struct{}{}
	}

	packagesRoot := filepath.Join(distDir, s.cfg.PackagesDir)

	entries, err := os.ReadDir(packagesRoot)
	if err != nil {
		return fmt.Errorf("list staged packages: %w", err)
	}

	for _, entry := range entries {
		dir := filepath.Join(packagesRoot, entry.Name())
		if _, ok := keep[dir]; ok {
			continue
		}

		logger.InfoKV(ctx, "Removing unreferenced local package", "package", entry.Name())

		if err = os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove local package %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// writeReleaseManifest overlays the release fields on the staged root manifest.
func (s *Stager) writeReleaseManifest(
	ctx context.Context,
	bc release.BuildContext,
	original manifest,
) (*release.StagedManifest, error) {
	runtimeVersion, err := s.runtimeVersion(bc.RootDir)
	if err != nil {
		return nil, err
	}

	runtimeNodeVersion, err := s.runtimeNodeVersion(ctx, bc.RootDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(bc.DistDir, manifestFilename)

	staged, err := readManifest(path)
	if err != nil {
		return nil, err
	}

	staged = staged.without(release.DevelopmentFields...)
	staged["name"] = s.cfg.PackageName
	staged["productName"] = s.cfg.ProductName
	staged["description"] = original.str("description")
	staged["version"] = bc.Version
	staged["electronVersion"] = runtimeVersion
	staged["electronNodeVersion"] = runtimeNodeVersion
	staged["main"] = bootstrapFilename
	staged["scripts"] = map[string]any{}
	staged["env"] = "production"

	if err = writeManifest(path, staged); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Created root package",
		"version", bc.Version, "electron", runtimeVersion, "electron_node", runtimeNodeVersion)

	return &release.StagedManifest{
		Fields: staged,
		Path:   path,
	}, nil
}

// runtimeVersion returns the configured runtime version or the one pinned by the runtime package.
func (s *Stager) runtimeVersion(rootDir string) (string, error) {
	if s.cfg.RuntimeVersion != "" {
		return s.cfg.RuntimeVersion, nil
	}

	m, err := readManifest(filepath.Join(rootDir, s.cfg.RuntimePackage, manifestFilename))
	if err != nil {
		return "", fmt.Errorf("read runtime package: %w", err)
	}

	v, ok := m.dependency(s.cfg.RuntimeDependency)
	if !ok {
		return "", fmt.Errorf("%s in %s: %w", s.cfg.RuntimeDependency, s.cfg.RuntimePackage, errRuntimeVersion)
	}

	return strings.TrimLeft(strings.TrimSpace(v), "^~=v"), nil
}

// runtimeNodeVersion returns the configured interpreter version or probes the runtime for it.
func (s *Stager) runtimeNodeVersion(ctx context.Context, rootDir string) (string, error) {
	if s.cfg.RuntimeNodeVersion != "" {
		return s.cfg.RuntimeNodeVersion, nil
	}

	probe := s.cfg.Tools.RuntimeProbe

	result, err := command.Check(ctx, s.runner, command.Spec{
		Name:    probe.Name,
		Args:    probe.Args,
		Env:     probe.Env,
		Dir:     rootDir,
		Timeout: s.cfg.Timeouts.Version,
	})
	if err != nil {
		return "", fmt.Errorf("probe runtime interpreter version: %w", err)
	}

	v := strings.TrimSpace(result.Stdout)
	if v == "" {
		return "", errRuntimeNodeVersion
	}

	return v, nil
}

// writeBootstrap writes index.js, which defaults the environment to production
// and requires the server entry point.
func (s *Stager) writeBootstrap(distDir string) error {
	contents := fmt.Sprintf("process.env.%[1]s = process.env.%[1]s || 'production'\nrequire('%[2]s')\n",
		s.cfg.EnvVariable, s.cfg.ServerEntry)

	if err := os.WriteFile(filepath.Join(distDir, bootstrapFilename), []byte(contents), config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write bootstrap: %w", err)
	}

	return nil
}
