// Package platform is the registry of per-platform output layouts.
//
// A single table maps each release.PlatformID to the folder names the bundler
// uses (mac, linux-unpacked, win-unpacked or win-ia32-unpacked) and to the
// app, executable, archive and icon paths inside them. Resolver turns the table
// into absolute paths without touching the filesystem, so every function is
// pure and can be tested in isolation.
package platform
