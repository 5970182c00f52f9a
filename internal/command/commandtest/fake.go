// Package commandtest provides a scriptable command.Runner for tests.
package commandtest

import (
	"context"
	"sync"

	"github.com/oshokin/app-release/internal/command"
)

// Handler produces the outcome of one fake invocation.
type Handler func(spec command.Spec) (*command.Result, error)

// Runner records every invocation and answers with the handler registered for
// the program name. Unregistered programs succeed with empty output.
type Runner struct {
	mu       sync.Mutex
	handlers map[string]Handler
	missing  map[string]struct{}
	calls    []command.Spec
}

// New returns an empty fake runner.
func New() *Runner {
	return &Runner{
		handlers: make(map[string]Handler),
		missing:  make(map[string]struct{}),
	}
}

// Handle registers h for the program name.
func (r *Runner) Handle(name string, h Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = h

	return r
}

// Stdout registers a handler printing out and exiting with code.
func (r *Runner) Stdout(name, out string, code int) *Runner {
	return r.Handle(name, func(command.Spec) (*command.Result, error) {
		return &command.Result{Stdout: out, ExitCode: code}, nil
	})
}

// Exit registers a handler exiting with code and stderr.
func (r *Runner) Exit(name string, code int, stderr string) *Runner {
	return r.Handle(name, func(command.Spec) (*command.Result, error) {
		return &command.Result{ExitCode: code, Stderr: stderr}, nil
	})
}

// Missing marks a program as not installed for Available.
func (r *Runner) Missing(name string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.missing[name] = struct{}{}

	return r
}

// Run implements command.Runner.
func (r *Runner) Run(_ context.Context, spec command.Spec) (*command.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, spec)
	h, ok := r.handlers[spec.Name]
	r.mu.Unlock()

	if !ok {
		return &command.Result{}, nil
	}

	return h(spec)
}

// Available implements command.Runner.
func (r *Runner) Available(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, missing := r.missing[name]

	return !missing
}

// Calls returns a copy of every recorded invocation.
func (r *Runner) Calls() []command.Spec {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]command.Spec(nil), r.calls...)
}

// CallsTo returns the recorded invocations of one program.
func (r *Runner) CallsTo(name string) []command.Spec {
	var out []command.Spec

	for _, spec := range r.Calls() {
		if spec.Name == name {
			out = append(out, spec)
		}
	}

	return out
}
