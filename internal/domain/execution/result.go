package execution

import "time"

// Status classifies the terminal condition of a run.
type Status string

const (
	// StatusOK means the program ran to completion with exit code zero.
	StatusOK Status = "ok"
	// StatusRuntimeError means the program terminated with a non-zero exit code.
	StatusRuntimeError Status = "runtime_error"
	// StatusCompileError means the compile step failed; execution never started.
	StatusCompileError Status = "compile_error"
	// StatusInstallError means dependency installation failed; execution never started.
	StatusInstallError Status = "install_error"
	// StatusTimeLimit means the wall-clock limit elapsed and the program was killed.
	StatusTimeLimit Status = "time_limit"
	// StatusMemoryLimit means the program was killed for exceeding its memory ceiling.
	StatusMemoryLimit Status = "memory_limit"
	// StatusCanceled means the run was cancelled by the caller or by session reaping.
	StatusCanceled Status = "canceled"
	// StatusWrongAnswer marks a grading test whose output did not match.
	StatusWrongAnswer Status = "wrong_answer"
	// StatusNotRun marks a grading test skipped after an earlier terminal failure.
	StatusNotRun Status = "not_run"
)

// Result captures the outcome of executing a program once.
//
// Immutable after creation.
type Result struct {
	Status   Status
	Stdout   string
	Stderr   string
	ExitCode int64
	Duration time.Duration
}

// TimedOut reports whether the run was terminated by the wall-clock limit.
func (r *Result) TimedOut() bool {
	return r != nil && r.Status == StatusTimeLimit
}

// RunReport pairs a request with its outcome for publishing.
//
// Exactly one of Result and Grading is set on success; Err carries
// engine-origin failures that produced no result at all.
type RunReport struct {
	Request Request
	Result  *Result
	Grading *GradingResult
	Err     error
}
