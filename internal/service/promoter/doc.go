// Package promoter publishes a verified executable into a release folder.
// The copy is applied atomically and checked against the source SHA-512.
package promoter
