// Package pipeline drives one release build: it stages the workspace, strips
// development content, packs the application, verifies the packed artifact,
// measures it, optionally promotes the executable and writes a release report.
//
// A bundler failure is the only failure that does not stop the run. It is
// logged, recorded in the report and left for the verification gates to judge.
package pipeline
