package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
	"github.com/JADDOU3/NexusQuest-sub002/internal/ports"
	runtimex "github.com/JADDOU3/NexusQuest-sub002/internal/runtime"
)

// eventBufferSize is the channel buffer for streamed output events. Chunks
// are dropped if the consumer falls this far behind, so a stalled consumer
// can never block termination of the sandbox.
const eventBufferSize = 64

// preparedProgram holds the final workspace state after install and compile.
// Each Run or Start gets its own fresh container built from these files.
type preparedProgram struct {
	engine *containerEngine
	desc   runtimex.Descriptor
	files  []fileSpec
	runCmd []string
	limits execution.RunLimits
}

var _ ports.PreparedProgram = (*preparedProgram)(nil)

// Run executes the program once in batch mode. Engine faults come back as a
// SandboxError so callers never surface raw daemon detail.
func (p *preparedProgram) Run(ctx context.Context, stdin string) (*execution.Result, error) {
	result, err := p.engine.runPhase(ctx, phaseSpec{
		image:       p.desc.Image,
		workdir:     p.desc.Workdir,
		cmd:         p.runCmd,
		files:       p.files,
		limits:      p.limits,
		stdin:       stdin,
		attachStdin: true,
	}, nil)
	if err != nil {
		return nil, &execution.SandboxError{Op: "run program", Err: err}
	}
	return result, nil
}

// Start executes the program once in stream mode, returning before it
// terminates.
func (p *preparedProgram) Start(ctx context.Context, stdin string) (ports.RunningProgram, error) {
	limits := p.engine.effectiveLimits(p.limits)

	containerID, cleanup, err := p.engine.createContainer(ctx, phaseSpec{
		image:       p.desc.Image,
		workdir:     p.desc.Workdir,
		cmd:         p.runCmd,
		attachStdin: true,
	}, limits)
	if err != nil {
		return nil, &execution.SandboxError{Op: "create sandbox", Err: err}
	}

	if err := p.engine.copyFiles(ctx, containerID, p.desc.Workdir, p.files); err != nil {
		cleanup()
		return nil, &execution.SandboxError{Op: "copy workspace", Err: err}
	}

	attach, err := p.engine.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		cleanup()
		return nil, &execution.SandboxError{Op: "attach sandbox", Err: err}
	}

	rp := &runningProgram{
		engine:      p.engine,
		containerID: containerID,
		cleanup:     cleanup,
		attach:      attach,
		limits:      limits,
		events:      make(chan execution.OutputEvent, eventBufferSize),
		demuxDone:   make(chan struct{}),
		done:        make(chan struct{}),
	}

	if err := p.engine.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		attach.Close()
		cleanup()
		return nil, &execution.SandboxError{Op: "start sandbox", Err: err}
	}
	rp.start = time.Now()
	rp.lastEvent.Store(rp.start.UnixNano())

	if stdin != "" {
		if err := rp.SendInput(stdin); err != nil {
			rp.forceStop()
			return nil, &execution.SandboxError{Op: "write stdin", Err: err}
		}
	}

	go rp.demux()
	go rp.supervise(ctx)

	return rp, nil
}

// Close releases resources held by the prepared workspace. Containers are
// per-run and already removed by then.
func (p *preparedProgram) Close() error {
	return nil
}

// runningProgram is one in-flight streamed container run.
type runningProgram struct {
	engine      *containerEngine
	containerID string
	cleanup     func()
	attach      types.HijackedResponse
	limits      execution.RunLimits
	start       time.Time

	events    chan execution.OutputEvent
	demuxDone chan struct{}
	done      chan struct{}
	lastEvent atomic.Int64

	stdout outputBuffer
	stderr outputBuffer

	mu     sync.Mutex
	killed bool
	ended  bool

	result *execution.Result
	err    error
}

var _ ports.RunningProgram = (*runningProgram)(nil)

// Events yields output chunks in emission order. The channel is closed after
// the terminal end event.
func (r *runningProgram) Events() <-chan execution.OutputEvent {
	return r.events
}

// SendInput queues text onto the running program's standard input.
func (r *runningProgram) SendInput(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ended {
		return execution.ErrProgramEnded
	}
	if r.attach.Conn == nil {
		return fmt.Errorf("stdin not attached")
	}
	if _, err := io.Copy(r.attach.Conn, strings.NewReader(text)); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

// Result blocks until the run terminates and returns the final outcome.
func (r *runningProgram) Result() (*execution.Result, error) {
	<-r.done
	return r.result, r.err
}

// Kill force-terminates the program. The run finishes with StatusCanceled.
func (r *runningProgram) Kill() error {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return nil
	}
	r.killed = true
	r.mu.Unlock()

	return r.engine.stopContainer(r.containerID)
}

// demux splits the multiplexed attach stream into stdout and stderr chunks,
// buffering for the final result and emitting an event per chunk.
func (r *runningProgram) demux() {
	defer close(r.demuxDone)

	stdoutW := &chunkWriter{kind: execution.EventStdout, buf: &r.stdout, emit: r.emit}
	stderrW := &chunkWriter{kind: execution.EventStderr, buf: &r.stderr, emit: r.emit}

	if _, err := stdcopy.StdCopy(stdoutW, stderrW, r.attach.Reader); err != nil && !errors.Is(err, io.EOF) {
		// The attach stream breaks when the container is stopped from the
		// outside; the supervisor reports the authoritative outcome.
		return
	}
}

// supervise waits for the container to exit, enforcing the wall-clock limit,
// then publishes the final result and the terminal end event.
func (r *runningProgram) supervise(ctx context.Context) {
	defer r.release()

	waitCtx := ctx
	var cancel context.CancelFunc
	if r.limits.TimeLimit > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, r.limits.TimeLimit)
	}
	status, waitErr := r.engine.waitForExit(waitCtx, r.containerID)
	if cancel != nil {
		cancel()
	}

	timedOut := false
	if waitErr != nil {
		switch {
		case errors.Is(waitErr, context.DeadlineExceeded) && r.limits.TimeLimit > 0 && ctx.Err() == nil:
			timedOut = true
			status, waitErr = r.stopAndReap()
		case errors.Is(waitErr, context.Canceled):
			// Caller context cancelled: treat like an explicit kill.
			r.mu.Lock()
			r.killed = true
			r.mu.Unlock()
			status, waitErr = r.stopAndReap()
		}
	}

	// Let the demuxer drain whatever the pipe still holds. Closing the
	// attach stream unblocks it if the daemon keeps the connection open.
	select {
	case <-r.demuxDone:
	case <-time.After(stopGrace):
		r.attach.Close()
		<-r.demuxDone
	}

	r.finish(status, waitErr, timedOut)
}

// stopAndReap stops the container and waits briefly for its exit status.
func (r *runningProgram) stopAndReap() (*container.WaitResponse, error) {
	_ = r.engine.stopContainer(r.containerID)

	waitCtx, cancel := context.WithTimeout(context.Background(), postStopWait)
	defer cancel()

	status, err := r.engine.waitForExit(waitCtx, r.containerID)
	if err != nil {
		return nil, nil
	}
	return status, nil
}

func (r *runningProgram) finish(status *container.WaitResponse, waitErr error, timedOut bool) {
	r.mu.Lock()
	killed := r.killed
	r.ended = true
	r.mu.Unlock()

	if waitErr != nil {
		r.err = &execution.SandboxError{Op: "wait for program", Err: waitErr}
		r.emitFinal(execution.OutputEvent{Kind: execution.EventError, Payload: "execution failed inside the sandbox"})
		r.emitFinal(execution.OutputEvent{Kind: execution.EventEnd})
		close(r.events)
		close(r.done)
		return
	}

	exitCode := int64(-1)
	if status != nil {
		exitCode = status.StatusCode
	}

	result := &execution.Result{
		Status:   execution.StatusOK,
		Stdout:   r.stdout.String(),
		Stderr:   r.stderr.String(),
		ExitCode: exitCode,
		Duration: time.Since(r.start),
	}

	switch {
	case killed:
		result.Status = execution.StatusCanceled
	case timedOut:
		result.Status = execution.StatusTimeLimit
	case r.oomKilled():
		result.Status = execution.StatusMemoryLimit
	case exitCode != 0:
		result.Status = execution.StatusRuntimeError
	}

	r.result = result
	r.emitFinal(execution.OutputEvent{Kind: execution.EventEnd})
	close(r.events)
	close(r.done)
}

// LastEvent reports when the program last produced output. Emission counts
// as session activity, so a program still computing or printing is never
// reclaimed as idle.
func (r *runningProgram) LastEvent() time.Time {
	return time.Unix(0, r.lastEvent.Load())
}

func (r *runningProgram) oomKilled() bool {
	inspect, err := r.engine.cli.ContainerInspect(context.Background(), r.containerID)
	if err != nil {
		return false
	}
	return inspect.State != nil && inspect.State.OOMKilled
}

func (r *runningProgram) release() {
	r.attach.Close()
	r.cleanup()
}

func (r *runningProgram) forceStop() {
	_ = r.engine.stopContainer(r.containerID)
	r.release()
}

// emit forwards an event without ever blocking: a consumer that stopped
// reading loses chunks rather than wedging the sandbox.
func (r *runningProgram) emit(ev execution.OutputEvent) {
	r.lastEvent.Store(time.Now().UnixNano())
	select {
	case r.events <- ev:
	default:
	}
}

// emitFinal delivers the error and end events even when the consumer is
// behind, evicting the oldest buffered chunk to make room. Only the
// supervisor calls this, after the demuxer has stopped, so no other sender
// races the eviction.
func (r *runningProgram) emitFinal(ev execution.OutputEvent) {
	for {
		select {
		case r.events <- ev:
			return
		default:
		}
		select {
		case <-r.events:
		default:
		}
	}
}

// outputBuffer accumulates one stream's chunks for the final result.
type outputBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (o *outputBuffer) append(p []byte) {
	o.mu.Lock()
	o.b.Write(p)
	o.mu.Unlock()
}

func (o *outputBuffer) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.b.String()
}

type chunkWriter struct {
	kind execution.EventKind
	buf  *outputBuffer
	emit func(execution.OutputEvent)
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.buf.append(p)
	w.emit(execution.OutputEvent{Kind: w.kind, Payload: string(p)})
	return len(p), nil
}
