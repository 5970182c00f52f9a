// Package stager assembles the staging directory (dist/<platform>) that the
// bundler packs.
//
// It runs the workspace build, copies each package's manifest, declared files
// and build output, strips development fields from the root manifest, pins
// scoped cross-package dependencies to file: references, drops packages that
// nothing references, installs production dependencies, deletes large vendored
// test and demo folders, and finally writes the release manifest and the
// index.js bootstrap. A partially staged tree is never handed on: every error
// is fatal.
package stager
