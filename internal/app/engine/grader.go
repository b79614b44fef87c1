package engine

import (
	"context"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
	"github.com/JADDOU3/NexusQuest-sub002/internal/ports"
)

// grader drives one prepared program through a test case fixture. Every test
// runs regardless of earlier outcomes; a sandbox failure marks that test
// failed and moves on.
type grader struct {
	prepared ports.PreparedProgram
}

func newGrader(prepared ports.PreparedProgram) *grader {
	return &grader{prepared: prepared}
}

func (g *grader) run(ctx context.Context, tests []execution.TestCase) *execution.GradingResult {
	grading := &execution.GradingResult{
		Results: make([]execution.TestResult, len(tests)),
	}

	for idx, test := range tests {
		result := g.runTest(ctx, test)
		if result.Passed {
			grading.PassedCount++
		}
		grading.Duration += result.Duration
		grading.Results[idx] = redact(result)
	}

	grading.AllPassed = len(tests) > 0 && grading.PassedCount == len(tests)
	return grading
}

func (g *grader) runTest(ctx context.Context, test execution.TestCase) execution.TestResult {
	result := execution.TestResult{
		Number:         test.Number,
		Hidden:         test.Hidden,
		Input:          test.Input,
		ExpectedOutput: test.ExpectedOutput,
	}

	run, err := g.prepared.Run(ctx, test.Input)
	if err != nil {
		result.Status = execution.StatusNotRun
		result.Error = err.Error()
		return result
	}

	result.Status = run.Status
	result.ActualOutput = run.Stdout
	result.ExitCode = run.ExitCode
	result.Duration = run.Duration

	if result.Status == execution.StatusOK && run.ExitCode != 0 {
		result.Status = execution.StatusRuntimeError
	}

	if result.Status == execution.StatusOK {
		if normalizeOutput(run.Stdout) == normalizeOutput(test.ExpectedOutput) {
			result.Passed = true
		} else {
			result.Status = execution.StatusWrongAnswer
		}
	}

	return result
}

// redact strips hidden fixture content before a result leaves the grader.
func redact(result execution.TestResult) execution.TestResult {
	if !result.Hidden {
		return result
	}

	result.Input = execution.HiddenPlaceholder
	result.ExpectedOutput = execution.HiddenPlaceholder
	if result.Passed {
		result.ActualOutput = "(correct)"
	} else {
		result.ActualOutput = "(incorrect)"
	}
	return result
}
