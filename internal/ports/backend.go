package ports

import (
	"context"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
	"github.com/JADDOU3/NexusQuest-sub002/internal/runtime"
)

// PreparedProgram represents a workspace that has had its dependencies
// installed and (for compiled languages) its compile step completed, ready to
// run any number of times.
type PreparedProgram interface {
	// Run executes the program once in batch mode, feeding stdin and blocking
	// until it terminates or the time limit elapses.
	Run(ctx context.Context, stdin string) (*execution.Result, error)

	// Start executes the program once in stream mode, returning immediately
	// with a handle for incremental output and mid-run input.
	Start(ctx context.Context, stdin string) (RunningProgram, error)

	Close() error
}

// RunningProgram is one in-flight streamed execution.
type RunningProgram interface {
	// Events yields output chunks in emission order and is closed after the
	// terminal end event.
	Events() <-chan execution.OutputEvent

	// SendInput queues text onto the program's standard input.
	SendInput(text string) error

	// Result returns the final outcome. It blocks until the run terminates.
	Result() (*execution.Result, error)

	// Kill force-terminates the program and releases its sandbox.
	Kill() error
}

// Backend provisions isolated sandboxes for prepared workspaces.
type Backend interface {
	// Prepare builds the workspace inside the isolation boundary: dependency
	// installation first, then the compile step when the descriptor has one.
	// A non-nil Result with a nil PreparedProgram reports an install or
	// compile failure belonging to the user's code.
	Prepare(ctx context.Context, desc runtime.Descriptor, ws runtime.Workspace, limits execution.RunLimits) (PreparedProgram, *execution.Result, error)

	Close() error
}
