// Package integration runs the release pipeline end to end through os/exec
// with scripted stand-ins for the external tools.
package integration
