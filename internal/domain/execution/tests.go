package execution

import "time"

// HiddenPlaceholder replaces the input and expected output of hidden test
// cases in any result surfaced outside the engine.
const HiddenPlaceholder = "(hidden)"

// TestCase describes a single stdin/stdout expectation pair for a program.
type TestCase struct {
	Number         int
	Input          string
	ExpectedOutput string
	Hidden         bool
}

// TestResult captures the outcome of executing a single TestCase.
//
// For hidden cases Input and ExpectedOutput hold HiddenPlaceholder and
// ActualOutput holds "(correct)" or "(incorrect)"; the fixture content never
// leaves the grader.
type TestResult struct {
	Number         int
	Status         Status
	Passed         bool
	Hidden         bool
	Input          string
	ExpectedOutput string
	ActualOutput   string
	ExitCode       int64
	Duration       time.Duration
	Error          string
}

// GradingResult aggregates per-test outcomes in test order.
type GradingResult struct {
	Results     []TestResult
	PassedCount int
	AllPassed   bool
	Duration    time.Duration
}
