package execution

// EventKind discriminates the variants of an OutputEvent.
type EventKind string

const (
	// EventStdout carries a chunk of standard output.
	EventStdout EventKind = "stdout"
	// EventStderr carries a chunk of standard error.
	EventStderr EventKind = "stderr"
	// EventError carries a human-readable engine fault message. Emitted at
	// most once, before the terminal end event.
	EventError EventKind = "error"
	// EventEnd terminates the stream. Emitted exactly once with an empty payload.
	EventEnd EventKind = "end"
)

// OutputEvent is one chunk of a streamed run. Events are delivered in
// emission order, at most once per chunk.
type OutputEvent struct {
	Kind    EventKind
	Payload string
}
