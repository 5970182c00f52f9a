package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Tool is an external command template: program name, fixed arguments and extra environment.
type Tool struct {
	// Name is the program name or path.
	Name string `yaml:"name"`
	// Args are the fixed leading arguments.
	Args []string `yaml:"args,omitempty"`
	// Env is appended to the inherited environment.
	Env []string `yaml:"env,omitempty"`
}

// Tools lists every external command the pipeline invokes.
type Tools struct {
	// Build runs the workspace-wide production build.
	Build Tool `yaml:"build"`
	// Install installs production dependencies inside the staging directory.
	Install Tool `yaml:"install"`
	// RuntimeProbe prints the interpreter version embedded in the bundler runtime.
	RuntimeProbe Tool `yaml:"runtime_probe"`
	// Bundler packs and signs the staged tree.
	Bundler Tool `yaml:"bundler"`
	// Interpreter runs the staged bootstrap for the version check.
	Interpreter Tool `yaml:"interpreter"`
	// Gatekeeper verifies the code signature on darwin.
	Gatekeeper Tool `yaml:"gatekeeper"`
	// DiskUsage measures subpackage sizes.
	DiskUsage Tool `yaml:"disk_usage"`
	// Display starts a virtual X display for the smoke test.
	Display Tool `yaml:"display"`
}

// Timeouts bounds external commands.
type Timeouts struct {
	// Command is the default for any command without a dedicated timeout.
	Command time.Duration `yaml:"command"`
	// Version bounds each version check.
	Version time.Duration `yaml:"version"`
	// Smoke bounds the smoke test run.
	Smoke time.Duration `yaml:"smoke"`
}

// Config holds release settings for one workspace.
type Config struct {
	// ProductName is the user-facing application name used in bundle paths.
	ProductName string `yaml:"product_name"`
	// PackageName is the "name" written into the staged root manifest.
	PackageName string `yaml:"package_name"`
	// PackagesDir is the workspace folder holding the internal packages.
	PackagesDir string `yaml:"packages_dir"`
	// WorkspaceScope is the npm scope that marks internal packages.
	WorkspaceScope string `yaml:"workspace_scope"`
	// IgnorePackages are workspace packages that are neither built nor staged.
	IgnorePackages []string `yaml:"ignore_packages"`
	// BuildOutputs are folders copied from every package besides its declared files.
	BuildOutputs []string `yaml:"build_outputs"`
	// ServerEntry is required by the staged index.js bootstrap.
	ServerEntry string `yaml:"server_entry"`
	// EnvVariable is set to "production" by the bootstrap unless already defined.
	EnvVariable string `yaml:"env_variable"`
	// Lockfile is copied into the staging directory for a consistent install.
	Lockfile string `yaml:"lockfile"`
	// IconDir holds the per-platform icon files.
	IconDir string `yaml:"icon_dir"`
	// RuntimePackage is the workspace package whose manifest pins the bundler runtime.
	RuntimePackage string `yaml:"runtime_package"`
	// RuntimeDependency is the dependency name of the bundler runtime.
	RuntimeDependency string `yaml:"runtime_dependency"`
	// RuntimeVersion overrides the runtime version read from RuntimePackage.
	RuntimeVersion string `yaml:"runtime_version,omitempty"`
	// RuntimeNodeVersion overrides the probed interpreter version.
	RuntimeNodeVersion string `yaml:"runtime_node_version,omitempty"`
	// ExtraDirPatterns are large vendored subtrees deleted after install.
	ExtraDirPatterns []string `yaml:"extra_dir_patterns"`
	// PrunePatterns are development-only paths deleted before packing.
	PrunePatterns []string `yaml:"prune_patterns"`
	// StaticAssets must exist inside the packed app.
	StaticAssets []string `yaml:"static_assets"`
	// SmokeArgs are passed to the packed executable during the smoke test.
	SmokeArgs []string `yaml:"smoke_args,omitempty"`
	// PromoteDir receives the verified executable; empty disables promotion.
	PromoteDir string `yaml:"promote_dir,omitempty"`
	// ReportFile is the release report name inside the build root.
	ReportFile string `yaml:"report_file"`
	// Tools are the external commands.
	Tools Tools `yaml:"tools"`
	// Timeouts bound the external commands.
	Timeouts Timeouts `yaml:"timeouts"`
}

const (
	// DefaultConfigFilename is looked up in the workspace root.
	DefaultConfigFilename = "app-release.yaml"

	// DefaultReportFilename is written into the build root after a successful run.
	DefaultReportFilename = "release-report.yaml"

	// DefaultCommandTimeout bounds builds, installs and packing.
	DefaultCommandTimeout = 30 * time.Minute

	// DefaultVersionTimeout bounds each version check.
	DefaultVersionTimeout = time.Minute

	// DefaultSmokeTimeout bounds the smoke test.
	DefaultSmokeTimeout = 5 * time.Minute

	// DefaultFilePermissions is used for files written by the pipeline.
	DefaultFilePermissions = 0o644
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errProductNameRequired is returned when no product name is configured.
	errProductNameRequired = errors.New("product name must be provided")
	// errToolNameRequired is returned for a tool without a program name.
	errToolNameRequired = errors.New("tool name must be provided")
	// errNegativeTimeout is returned for negative timeouts.
	errNegativeTimeout = errors.New("timeout must not be negative")
)

// Default returns the settings of a Cypress-style electron workspace.
func Default() *Config {
	return &Config{
		ProductName:       "Cypress",
		PackageName:       "cypress",
		PackagesDir:       "packages",
		WorkspaceScope:    "@packages/",
		IgnorePackages:    []string{"cli"},
		BuildOutputs:      []string{"dist", "build"},
		ServerEntry:       "./packages/server",
		EnvVariable:       "CYPRESS_INTERNAL_ENV",
		Lockfile:          "yarn.lock",
		IconDir:           "packages/icons/dist/icons",
		RuntimePackage:    "packages/electron",
		RuntimeDependency: "electron",
		ExtraDirPatterns: []string{
			"**/image-q/demo",
			"**/gifwrap/test",
			"**/pixelmatch/test",
			"**/@jimp/tiff/test",
			"**/@cypress/icons/**/*.{ai,eps}",
			"**/esprima/test",
			"**/bmp-js/test",
			"**/exif-parser/test",
		},
		PrunePatterns: []string{
			"node_modules/.bin",
			"packages/*/node_modules/.bin",
			"packages/server/.cy",
			"packages/electron/dist",
		},
		StaticAssets: []string{
			"packages/runner/dist/runner.js",
			"packages/runner/dist/runner.css",
			"packages/desktop-gui/dist/index.html",
			"packages/server/lib/html/non_proxied_error.html",
		},
		ReportFile: DefaultReportFilename,
		Tools: Tools{
			Build:        Tool{Name: "yarn", Args: []string{"lerna", "run", "build-prod", "--stream", "--ignore", "cli"}},
			Install:      Tool{Name: "yarn", Args: []string{"--production"}},
			RuntimeProbe: Tool{Name: "electron", Args: []string{"-p", "process.versions.node"}, Env: []string{"ELECTRON_RUN_AS_NODE=1"}},
			Bundler:      Tool{Name: "electron-builder"},
			Interpreter:  Tool{Name: "node"},
			Gatekeeper:   Tool{Name: "spctl", Args: []string{"-a", "-vvvv"}},
			DiskUsage:    Tool{Name: "du", Args: []string{"-k", "-d", "1"}},
			Display:      Tool{Name: "Xvfb", Args: []string{"-screen", "0", "1280x1024x24"}},
		},
		Timeouts: Timeouts{
			Command: DefaultCommandTimeout,
			Version: DefaultVersionTimeout,
			Smoke:   DefaultSmokeTimeout,
		},
	}
}

// Load reads the configuration at path on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, Validate(cfg)
	case err != nil:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills defaults for empty optional ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ProductName == "" {
		return errProductNameRequired
	}

	defaults := Default()

	fillString(&cfg.PackageName, defaults.PackageName)
	fillString(&cfg.PackagesDir, defaults.PackagesDir)
	fillString(&cfg.WorkspaceScope, defaults.WorkspaceScope)
	fillString(&cfg.ServerEntry, defaults.ServerEntry)
	fillString(&cfg.EnvVariable, defaults.EnvVariable)
	fillString(&cfg.Lockfile, defaults.Lockfile)
	fillString(&cfg.IconDir, defaults.IconDir)
	fillString(&cfg.RuntimePackage, defaults.RuntimePackage)
	fillString(&cfg.RuntimeDependency, defaults.RuntimeDependency)
	fillString(&cfg.ReportFile, defaults.ReportFilename())

	tools := map[string]Tool{
		"build":         cfg.Tools.Build,
		"install":       cfg.Tools.Install,
		"runtime_probe": cfg.Tools.RuntimeProbe,
		"bundler":       cfg.Tools.Bundler,
		"interpreter":   cfg.Tools.Interpreter,
		"gatekeeper":    cfg.Tools.Gatekeeper,
		"disk_usage":    cfg.Tools.DiskUsage,
		"display":       cfg.Tools.Display,
	}
	for key, tool := range tools {
		if tool.Name == "" {
			return fmt.Errorf("tools.%s: %w", key, errToolNameRequired)
		}
	}

	for key, timeout := range map[string]*time.Duration{
		"command": &cfg.Timeouts.Command,
		"version": &cfg.Timeouts.Version,
		"smoke":   &cfg.Timeouts.Smoke,
	} {
		if *timeout < 0 {
			return fmt.Errorf("timeouts.%s: %w", key, errNegativeTimeout)
		}
	}

	fillDuration(&cfg.Timeouts.Command, DefaultCommandTimeout)
	fillDuration(&cfg.Timeouts.Version, DefaultVersionTimeout)
	fillDuration(&cfg.Timeouts.Smoke, DefaultSmokeTimeout)

	return nil
}

// ReportFilename returns the configured report name or the default.
func (c *Config) ReportFilename() string {
	if c.ReportFile == "" {
		return DefaultReportFilename
	}

	return c.ReportFile
}

func fillString(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}

func fillDuration(dst *time.Duration, fallback time.Duration) {
	if *dst == 0 {
		*dst = fallback
	}
}
