// Package report implements persistence for release reports.
//
// The FileRepository stores and loads a report as YAML on disk and exposes a
// Repository interface that the pipeline depends on.
package report
