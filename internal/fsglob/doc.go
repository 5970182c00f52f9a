// Package fsglob expands and deletes doublestar patterns inside a directory tree.
//
// Paths are slash-separated and relative to the root, results are sorted, and
// exclude patterns drop any match they also match.
package fsglob
