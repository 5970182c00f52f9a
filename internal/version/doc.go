// Package version exposes build metadata of the app-release tool itself.
//
// Version, Commit and BuildTime are injected via -ldflags. This is unrelated
// to the version string of the application being released.
package version
