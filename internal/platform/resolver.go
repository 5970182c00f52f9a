package platform

import (
	"path/filepath"
	"strings"

	"github.com/oshokin/app-release/internal/domain/release"
)

const (
	// BuildRootName is the bundler output folder under the workspace root.
	BuildRootName = "build"
	// DistRootName is the staging folder under the workspace root.
	DistRootName = "dist"
)

// Resolver derives every platform path from the workspace root, the product
// name and the CPU architecture. It performs no filesystem access.
type Resolver struct {
	// Root is the absolute workspace root.
	Root string
	// Product is the application product name, e.g. "Cypress".
	Product string
	// Arch is a GOARCH value.
	Arch string
}

// NewResolver returns a resolver for the given BuildContext.
func NewResolver(bc release.BuildContext) Resolver {
	return Resolver{
		Root:    bc.RootDir,
		Product: bc.ProductName,
		Arch:    bc.Arch,
	}
}

// BuildRoot returns <root>/build.
func (r Resolver) BuildRoot() string {
	return filepath.Join(r.Root, BuildRootName)
}

// BuildDir returns the bundler's per-platform output folder joined with parts.
func (r Resolver) BuildDir(p release.PlatformID, parts ...string) (string, error) {
	layout, err := LayoutFor(p)
	if err != nil {
		return "", err
	}

	return r.buildPath(layout, parts...), nil
}

// DistDir returns <root>/dist/<platform> joined with parts.
func (r Resolver) DistDir(p release.PlatformID, parts ...string) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	return filepath.Join(append([]string{r.Root, DistRootName, string(p)}, parts...)...), nil
}

// AppDir returns the packed app resources folder joined with parts.
func (r Resolver) AppDir(p release.PlatformID, parts ...string) (string, error) {
	layout, err := LayoutFor(p)
	if err != nil {
		return "", err
	}

	return r.buildPath(layout, append(r.expand(layout.AppDir), parts...)...), nil
}

// Executable returns the path of the packed launchable binary.
func (r Resolver) Executable(p release.PlatformID) (string, error) {
	layout, err := LayoutFor(p)
	if err != nil {
		return "", err
	}

	return r.buildPath(layout, r.expand(layout.Executable)...), nil
}

// ZipDir returns the folder that is archived before upload.
func (r Resolver) ZipDir(p release.PlatformID) (string, error) {
	layout, err := LayoutFor(p)
	if err != nil {
		return "", err
	}

	return r.buildPath(layout, r.expand(layout.ZipDir)...), nil
}

// Icon returns the platform icon path inside iconDir.
func (r Resolver) Icon(p release.PlatformID, iconDir string) (string, error) {
	layout, err := LayoutFor(p)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(iconDir) {
		iconDir = filepath.Join(r.Root, iconDir)
	}

	return filepath.Join(iconDir, layout.IconFile), nil
}

func (r Resolver) buildPath(layout Layout, parts ...string) string {
	elems := make([]string, 0, len(parts)+2)
	elems = append(elems, r.BuildRoot(), layout.BuildSubdir(r.Arch))
	elems = append(elems, parts...)

	return filepath.Join(elems...)
}

func (r Resolver) expand(segments []string) []string {
	out := make([]string, len(segments))
	for i, segment := range segments {
		out[i] = strings.ReplaceAll(segment, productPlaceholder, r.Product)
	}

	return out
}
