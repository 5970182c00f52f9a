// Package logger wraps zap for the release pipeline:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level parsing for the --log-level flag,
//   - convenience functions (Infof, WarnKV, etc.).
//
// Every stage receives a context and logs through it, so the stage name and
// target platform travel with each entry.
package logger
