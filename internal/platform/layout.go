package platform

import "github.com/oshokin/app-release/internal/domain/release"

// Layout describes where the bundler puts things for one platform.
// Segments may contain productPlaceholder, substituted with the product name.
type Layout struct {
	// BuildSubdir returns the bundler's per-platform output folder for a CPU architecture.
	BuildSubdir func(arch string) string
	// AppDir is the path of the app resources inside the build dir.
	AppDir []string
	// Executable is the path of the launchable binary inside the build dir.
	Executable []string
	// ZipDir is the folder to archive before upload, relative to the build dir.
	ZipDir []string
	// IconFile is the icon file name handed to the bundler.
	IconFile string
}

const productPlaceholder = "{product}"

// layouts is the single per-platform strategy table.
//
//nolint:gochecknoglobals // Read-only table consulted by Resolver.
var layouts = map[release.PlatformID]Layout{
	release.Darwin: {
		// electron-builder names its macOS output folder "mac", not "darwin".
		BuildSubdir: func(string) string { return "mac" },
		AppDir:      []string{productPlaceholder + ".app", "Contents", "resources", "app"},
		Executable:  []string{productPlaceholder + ".app", "Contents", "MacOS", productPlaceholder},
		ZipDir:      []string{productPlaceholder + ".app"},
		IconFile:    "icon.icns",
	},
	release.Linux: {
		BuildSubdir: func(string) string { return "linux-unpacked" },
		AppDir:      []string{"resources", "app"},
		Executable:  []string{productPlaceholder},
		IconFile:    "icon_512x512.png",
	},
	release.Windows: {
		BuildSubdir: func(arch string) string {
			if Is64Bit(arch) {
				return "win-unpacked"
			}

			return "win-ia32-unpacked"
		},
		AppDir:     []string{"resources", "app"},
		Executable: []string{productPlaceholder},
		IconFile:   "icon.ico",
	},
}

// thirtyTwoBitArchs lists GOARCH values with a 32-bit word size.
//
//nolint:gochecknoglobals // Read-only lookup set.
var thirtyTwoBitArchs = map[string]struct{}{
	"386":    {},
	"arm":    {},
	"mips":   {},
	"mipsle": {},
}

// Is64Bit reports whether a GOARCH value has a 64-bit word size.
func Is64Bit(arch string) bool {
	_, is32 := thirtyTwoBitArchs[arch]

	return !is32
}

// LayoutFor returns the layout rules of a platform.
func LayoutFor(p release.PlatformID) (Layout, error) {
	if err := p.Validate(); err != nil {
		return Layout{}, err
	}

	return layouts[p], nil
}
