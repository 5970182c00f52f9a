// Package command is the single way the release pipeline runs external tools.
//
// A Spec names the program, its arguments, working directory, extra
// environment and timeout; Runner returns a structured Result with the exit
// code and captured output. Stages depend on the Runner interface, so tests
// substitute the scriptable fake from the commandtest package.
package command
