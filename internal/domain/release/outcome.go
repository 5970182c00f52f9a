package release

// PackStatus tells whether the bundler completed cleanly.
type PackStatus string

const (
	// Packed means the bundler exited with status zero.
	Packed PackStatus = "packed"
	// PackagedWithWarning means the bundler failed and the run continued regardless.
	PackagedWithWarning PackStatus = "packaged-with-warning"
)

// PackOutcome is the result of the packaging stage. The stage never fails the
// pipeline by itself; the driver decides what to do with a warning.
type PackOutcome struct {
	// Status is Packed or PackagedWithWarning.
	Status PackStatus
	// Cause is set for PackagedWithWarning.
	Cause error
}

// HasWarning reports whether the bundler failure was downgraded.
func (o PackOutcome) HasWarning() bool {
	return o.Status == PackagedWithWarning
}
