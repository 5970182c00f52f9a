package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/app-release/internal/version"
)

// rootCmd represents the base command for building desktop releases.
var rootCmd = &cobra.Command{
	Use:   "app-release",
	Short: "Build, pack and verify the desktop application.",
	Long: `Builds the desktop application for the host platform.

The workspace packages are built and staged into dist/<platform>, stripped of
development content, packed by the bundler into build/ and verified: the
packed app must report the requested version, ship its static assets, pass
the code signature check on darwin and launch cleanly.`,
	SilenceUsage: true,
}

// Execute runs the app-release CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
