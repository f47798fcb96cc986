package dispatch

// Job is one opaque unit of work: a function plus the single argument it
// will be invoked with. The submitter hands the argument over together
// with the job; from then on it belongs to whichever worker executes the
// job. A job runs at most once and is discarded when Fn returns.
//
// The pool never looks inside a job and never learns its outcome. A
// panic raised by Fn is not recovered here; containing failures is the
// submitter's responsibility, inside the job body.
type Job struct {
	// Kind tags the job in log output. Optional.
	Kind string

	// Fn is the work itself. Submit rejects jobs with a nil Fn.
	Fn func(arg any)

	// Arg is passed to Fn verbatim.
	Arg any
}
