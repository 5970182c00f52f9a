// Package packager runs the desktop bundler on the staged application tree.
// A failed bundler run is downgraded to a warning outcome; the pipeline decides
// whether to continue.
package packager
