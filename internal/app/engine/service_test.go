package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
	"github.com/JADDOU3/NexusQuest-sub002/internal/ports"
	runtimex "github.com/JADDOU3/NexusQuest-sub002/internal/runtime"
	"github.com/JADDOU3/NexusQuest-sub002/internal/session"
)

func newTestService(backend ports.Backend) *Service {
	registry, err := runtimex.NewRegistry(runtimex.Builtins()...)
	if err != nil {
		panic(err)
	}
	return NewService(registry, backend, session.NewRegistry(time.Minute, nil), Config{}, nil)
}

func pythonRequest(sessionID string) execution.Request {
	return execution.Request{
		SessionID: sessionID,
		Language:  execution.LanguagePython,
		Files:     []execution.SourceFile{{Name: "main.py", Content: "print(input())"}},
		MainFile:  "main.py",
	}
}

func TestExecuteReturnsBatchResult(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{
		prepareFn: func(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
			return &stubPrepared{
				runFn: func(ctx context.Context, stdin string) (*execution.Result, error) {
					return &execution.Result{Status: execution.StatusOK, Stdout: stdin}, nil
				},
			}, nil, nil
		},
	}

	service := newTestService(backend)
	result, err := service.Execute(context.Background(), func() execution.Request {
		req := pythonRequest("s-1")
		req.Stdin = "hello\n"
		return req
	}())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Status != execution.StatusOK {
		t.Fatalf("expected OK status, got %q", result.Status)
	}
	if result.Stdout != "hello\n" {
		t.Fatalf("expected echoed stdin, got %q", result.Stdout)
	}
}

func TestExecuteMapsNonZeroExitToRuntimeError(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{
		prepareFn: func(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
			return &stubPrepared{
				runFn: func(ctx context.Context, stdin string) (*execution.Result, error) {
					return &execution.Result{Status: execution.StatusOK, ExitCode: 2, Stderr: "boom"}, nil
				},
			}, nil, nil
		},
	}

	result, err := newTestService(backend).Execute(context.Background(), pythonRequest("s-1"))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Status != execution.StatusRuntimeError {
		t.Fatalf("expected RuntimeError status, got %q", result.Status)
	}
}

func TestExecuteUnknownLanguage(t *testing.T) {
	t.Parallel()

	service := newTestService(&stubBackend{})
	req := pythonRequest("s-1")
	req.Language = "cobol"

	_, err := service.Execute(context.Background(), req)
	var unsupported *execution.UnsupportedLanguageError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedLanguageError, got %v", err)
	}
}

func TestExecuteSurfacesBuildFailure(t *testing.T) {
	t.Parallel()

	build := &execution.Result{Status: execution.StatusCompileError, Stderr: "syntax error"}
	backend := &stubBackend{
		prepareFn: func(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
			return nil, build, nil
		},
	}

	result, err := newTestService(backend).Execute(context.Background(), pythonRequest("s-1"))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result != build {
		t.Fatalf("expected the build result back, got %+v", result)
	}
}

func TestStreamRegistersAndRemovesSession(t *testing.T) {
	t.Parallel()

	program := newStubRunning()
	backend := &stubBackend{
		prepareFn: func(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
			return &stubPrepared{startFn: func(ctx context.Context, stdin string) (ports.RunningProgram, error) {
				return program, nil
			}}, nil, nil
		},
	}

	service := newTestService(backend)
	sess, buildResult, err := service.Stream(context.Background(), pythonRequest("s-1"))
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	if buildResult != nil {
		t.Fatalf("unexpected build result %+v", buildResult)
	}
	if sess.ID != "s-1" {
		t.Fatalf("expected session ID s-1, got %q", sess.ID)
	}

	if err := service.SendInput("s-1", "3 4"); err != nil {
		t.Fatalf("SendInput returned error: %v", err)
	}
	if got := program.inputs(); len(got) != 1 || got[0] != "3 4\n" {
		t.Fatalf("expected newline appended to input, got %v", got)
	}

	program.terminate(&execution.Result{Status: execution.StatusOK})

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := service.SendInput("s-1", "x"); err != nil {
			var notFound *execution.SessionNotFoundError
			if !errors.As(err, &notFound) {
				t.Fatalf("expected SessionNotFoundError after termination, got %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session was not removed after termination")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendInputWriteFailureIsNotSessionNotFound(t *testing.T) {
	t.Parallel()

	program := newStubRunning()
	program.sendErr = errors.New("write stdin: broken pipe")
	backend := &stubBackend{
		prepareFn: func(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
			return &stubPrepared{startFn: func(ctx context.Context, stdin string) (ports.RunningProgram, error) {
				return program, nil
			}}, nil, nil
		},
	}

	service := newTestService(backend)
	if _, _, err := service.Stream(context.Background(), pythonRequest("s-1")); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	err := service.SendInput("s-1", "data")
	if err == nil {
		t.Fatal("expected SendInput to fail")
	}
	var notFound *execution.SessionNotFoundError
	if errors.As(err, &notFound) {
		t.Fatalf("a stdin write failure on a live program must not read as a missing session: %v", err)
	}
	var sandbox *execution.SandboxError
	if !errors.As(err, &sandbox) {
		t.Fatalf("expected SandboxError, got %v", err)
	}
}

func TestStreamRejectsDuplicateSession(t *testing.T) {
	t.Parallel()

	first := newStubRunning()
	backend := &stubBackend{
		prepareFn: func(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
			return &stubPrepared{startFn: func(ctx context.Context, stdin string) (ports.RunningProgram, error) {
				return first, nil
			}}, nil, nil
		},
	}

	service := newTestService(backend)
	if _, _, err := service.Stream(context.Background(), pythonRequest("dup")); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	_, _, err := service.Stream(context.Background(), pythonRequest("dup"))
	var dup *execution.DuplicateSessionError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateSessionError, got %v", err)
	}
	if first.killed() {
		t.Fatal("duplicate request must not disturb the in-flight run")
	}
}

func TestStreamGeneratesSessionIDWhenMissing(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{
		prepareFn: func(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
			return &stubPrepared{startFn: func(ctx context.Context, stdin string) (ports.RunningProgram, error) {
				return newStubRunning(), nil
			}}, nil, nil
		},
	}

	sess, _, err := newTestService(backend).Stream(context.Background(), pythonRequest(""))
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a generated session ID")
	}
}

func TestCancelKillsSession(t *testing.T) {
	t.Parallel()

	program := newStubRunning()
	backend := &stubBackend{
		prepareFn: func(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
			return &stubPrepared{startFn: func(ctx context.Context, stdin string) (ports.RunningProgram, error) {
				return program, nil
			}}, nil, nil
		},
	}

	service := newTestService(backend)
	if _, _, err := service.Stream(context.Background(), pythonRequest("s-1")); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	if err := service.Cancel("s-1"); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if !program.killed() {
		t.Fatal("expected the program to be killed")
	}

	err := service.Cancel("s-1")
	var notFound *execution.SessionNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected SessionNotFoundError on second cancel, got %v", err)
	}
}

func TestServeRespectsMaxParallel(t *testing.T) {
	t.Parallel()

	requests := []execution.Request{
		pythonRequest("r1"),
		pythonRequest("r2"),
		pythonRequest("r3"),
		pythonRequest("r4"),
	}

	maxParallel := 2
	startCh := make(chan struct{}, len(requests))
	releaseCh := make(chan struct{})
	tracker := &concurrencyTracker{}

	backend := &stubBackend{
		prepareFn: func(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
			return &stubPrepared{
				runFn: func(ctx context.Context, stdin string) (*execution.Result, error) {
					done := tracker.enter()
					select {
					case startCh <- struct{}{}:
					default:
					}
					select {
					case <-releaseCh:
					case <-ctx.Done():
						done()
						return nil, ctx.Err()
					}
					done()
					return &execution.Result{Status: execution.StatusOK}, nil
				},
			}, nil, nil
		},
	}

	service := newTestService(backend)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	var mu sync.Mutex
	var reports []execution.RunReport

	go func() {
		errCh <- service.Serve(ctx, &sequenceSource{requests: requests}, 0, maxParallel, func(report execution.RunReport) {
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
		})
	}()

	for range requests {
		select {
		case <-startCh:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for a request to start")
		}
		releaseCh <- struct{}{}
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Serve did not finish")
	}

	if tracker.maxActive > maxParallel {
		t.Fatalf("expected max %d concurrent runs, got %d", maxParallel, tracker.maxActive)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != len(requests) {
		t.Fatalf("expected %d reports, got %d", len(requests), len(reports))
	}
}

func TestServeSourceError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("source failed")
	service := newTestService(&stubBackend{
		prepareFn: func(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
			t.Fatalf("unexpected prepare call")
			return nil, nil, nil
		},
	})

	err := service.Serve(context.Background(), errorSource{err: wantErr}, 0, 1, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected error wrapping %v, got %v", wantErr, err)
	}
}

type concurrencyTracker struct {
	mu        sync.Mutex
	active    int
	maxActive int
}

func (c *concurrencyTracker) enter() func() {
	c.mu.Lock()
	c.active++
	if c.active > c.maxActive {
		c.maxActive = c.active
	}
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.active--
		c.mu.Unlock()
	}
}

type stubBackend struct {
	prepareFn func(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error)
	closeFn   func() error
}

func (s *stubBackend) Prepare(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
	if s.prepareFn != nil {
		return s.prepareFn(ctx, desc, ws, limits)
	}
	return nil, nil, nil
}

func (s *stubBackend) Close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

type stubPrepared struct {
	runFn   func(ctx context.Context, stdin string) (*execution.Result, error)
	startFn func(ctx context.Context, stdin string) (ports.RunningProgram, error)

	runs  []preparedRun
	mu    sync.Mutex
	calls int
}

type preparedRun struct {
	result *execution.Result
	err    error
}

func (s *stubPrepared) Run(ctx context.Context, stdin string) (*execution.Result, error) {
	if s.runFn != nil {
		return s.runFn(ctx, stdin)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.runs) {
		return nil, errors.New("unexpected run invocation")
	}
	call := s.runs[s.calls]
	s.calls++
	return call.result, call.err
}

func (s *stubPrepared) Start(ctx context.Context, stdin string) (ports.RunningProgram, error) {
	if s.startFn != nil {
		return s.startFn(ctx, stdin)
	}
	return nil, errors.New("unexpected start invocation")
}

func (s *stubPrepared) Close() error { return nil }

type stubRunning struct {
	mu       sync.Mutex
	sent     []string
	sendErr  error
	isKilled bool
	result   *execution.Result

	events chan execution.OutputEvent
	done   chan struct{}
}

func newStubRunning() *stubRunning {
	return &stubRunning{
		events: make(chan execution.OutputEvent),
		done:   make(chan struct{}),
	}
}

func (s *stubRunning) Events() <-chan execution.OutputEvent { return s.events }

func (s *stubRunning) SendInput(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return execution.ErrProgramEnded
	default:
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *stubRunning) Result() (*execution.Result, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, nil
}

func (s *stubRunning) Kill() error {
	s.mu.Lock()
	s.isKilled = true
	s.mu.Unlock()
	s.terminate(&execution.Result{Status: execution.StatusCanceled})
	return nil
}

func (s *stubRunning) terminate(result *execution.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	s.result = result
	close(s.events)
	close(s.done)
}

func (s *stubRunning) inputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.sent...)
}

func (s *stubRunning) killed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isKilled
}

type sequenceSource struct {
	requests []execution.Request
	index    int
	mu       sync.Mutex
}

func (p *sequenceSource) NextRequest(ctx context.Context) (execution.Request, error) {
	select {
	case <-ctx.Done():
		return execution.Request{}, ctx.Err()
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.index >= len(p.requests) {
		return execution.Request{}, io.EOF
	}

	req := p.requests[p.index]
	p.index++
	return req, nil
}

type errorSource struct {
	err error
}

func (p errorSource) NextRequest(ctx context.Context) (execution.Request, error) {
	return execution.Request{}, p.err
}
