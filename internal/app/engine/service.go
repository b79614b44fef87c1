package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
	"github.com/JADDOU3/NexusQuest-sub002/internal/ports"
	runtimex "github.com/JADDOU3/NexusQuest-sub002/internal/runtime"
	"github.com/JADDOU3/NexusQuest-sub002/internal/session"
)

const defaultTestTimeLimit = 10 * time.Second

// Config tunes the engine service.
type Config struct {
	// TestTimeLimit is the fixed per-test wall clock for grading runs,
	// independent of the request's interactive limits.
	TestTimeLimit time.Duration
}

func (c Config) testTimeLimit() time.Duration {
	if c.TestTimeLimit <= 0 {
		return defaultTestTimeLimit
	}
	return c.TestTimeLimit
}

// Service coordinates program execution across the language registry, the
// isolation backend, and the session registry.
type Service struct {
	registry *runtimex.Registry
	backend  ports.Backend
	sessions *session.Registry
	cfg      Config
	log      *slog.Logger
}

// NewService constructs a Service with the provided dependencies.
func NewService(registry *runtimex.Registry, backend ports.Backend, sessions *session.Registry, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		registry: registry,
		backend:  backend,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
}

// Execute runs a request in batch mode, blocking until the program
// terminates or a limit cuts it off. Failures belonging to the user's code
// come back as a Result with the matching status; only engine faults are
// returned as errors.
func (s *Service) Execute(ctx context.Context, req execution.Request) (*execution.Result, error) {
	prepared, buildResult, err := s.prepare(ctx, req, req.Limits)
	if err != nil {
		return nil, err
	}
	if buildResult != nil {
		return buildResult, nil
	}
	defer prepared.Close()

	result, err := prepared.Run(ctx, req.Stdin)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &execution.Result{Status: execution.StatusCanceled}, nil
		}
		return nil, err
	}

	return finalizeResult(result), nil
}

// Stream runs a request in stream mode and registers a live session for it.
// The returned session terminates itself: once the program ends, the session
// is removed from the registry. A non-nil Result with a nil session reports
// an install or compile failure.
func (s *Service) Stream(ctx context.Context, req execution.Request) (*session.Session, *execution.Result, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	// Reject duplicates up front so the colliding request never allocates a
	// sandbox and the in-flight run is left untouched.
	if _, err := s.sessions.Get(req.SessionID); err == nil {
		return nil, nil, &execution.DuplicateSessionError{SessionID: req.SessionID}
	}

	prepared, buildResult, err := s.prepare(ctx, req, req.Limits)
	if err != nil {
		return nil, nil, err
	}
	if buildResult != nil {
		return nil, buildResult, nil
	}

	program, err := prepared.Start(ctx, req.Stdin)
	if err != nil {
		prepared.Close()
		return nil, nil, err
	}

	sess, err := s.sessions.Add(req.SessionID, program)
	if err != nil {
		_ = program.Kill()
		prepared.Close()
		return nil, nil, err
	}

	go func() {
		if _, err := program.Result(); err != nil {
			s.log.Error("streamed run failed", "session_id", req.SessionID, "error", err)
		}
		s.sessions.Remove(req.SessionID)
		prepared.Close()
	}()

	s.log.Info("session started", "session_id", req.SessionID, "language", req.Language)
	return sess, nil, nil
}

// SendInput appends text to a running session's standard input, adding a
// trailing newline when the caller omitted one so line-buffered programs see
// a complete line.
func (s *Service) SendInput(sessionID, text string) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	sess.Touch()

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	if err := sess.Program.SendInput(text); err != nil {
		if errors.Is(err, execution.ErrProgramEnded) {
			// The program terminated between lookup and write.
			return &execution.SessionNotFoundError{SessionID: sessionID}
		}
		return &execution.SandboxError{Op: "send input", Err: err}
	}
	return nil
}

// Cancel force-terminates a session's run and removes it from the registry.
func (s *Service) Cancel(sessionID string) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	s.sessions.Remove(sessionID)

	s.log.Info("session canceled", "session_id", sessionID)
	return sess.Program.Kill()
}

// Grade prepares the request once and runs it in batch mode against every
// test case under a fixed per-test time limit. A non-nil Result with a nil
// grading reports an install or compile failure, in which case no tests ran.
func (s *Service) Grade(ctx context.Context, req execution.Request) (*execution.GradingResult, *execution.Result, error) {
	limits := req.Limits
	limits.TimeLimit = s.cfg.testTimeLimit()

	prepared, buildResult, err := s.prepare(ctx, req, limits)
	if err != nil {
		return nil, nil, err
	}
	if buildResult != nil {
		return nil, buildResult, nil
	}
	defer prepared.Close()

	return newGrader(prepared).run(ctx, req.Tests), nil, nil
}

func (s *Service) prepare(ctx context.Context, req execution.Request, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
	desc, err := s.registry.Resolve(req.Language)
	if err != nil {
		return nil, nil, err
	}

	ws, err := runtimex.BuildWorkspace(desc, req)
	if err != nil {
		return nil, nil, err
	}

	return s.backend.Prepare(ctx, desc, ws, limits)
}

// Serve pulls requests from the source and processes them with bounded
// parallelism, publishing a report for each.
//
// If maxRequests is greater than zero the loop stops after that many
// requests. Otherwise it keeps consuming until the context is cancelled or
// the source signals completion via io.EOF.
func (s *Service) Serve(
	ctx context.Context,
	source ports.RequestSource,
	maxRequests int,
	maxParallel int,
	onReport func(execution.RunReport),
) error {
	if maxParallel <= 0 {
		maxParallel = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallel)
	processed := 0

	finish := func(err error) error {
		wg.Wait()
		return err
	}

	for {
		if maxRequests > 0 && processed >= maxRequests {
			return finish(nil)
		}

		req, err := source.NextRequest(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return finish(nil)
			}
			return finish(fmt.Errorf("get next request: %w", err))
		}

		sem <- struct{}{}
		wg.Add(1)
		processed++
		go func(req execution.Request) {
			defer wg.Done()
			defer func() { <-sem }()

			report := s.process(ctx, req)
			if report.Err != nil {
				s.log.Error("request failed", "session_id", req.SessionID, "language", req.Language, "error", report.Err)
			}
			if onReport != nil {
				onReport(report)
			}
		}(req)
	}
}

func (s *Service) process(ctx context.Context, req execution.Request) execution.RunReport {
	if len(req.Tests) > 0 {
		grading, buildResult, err := s.Grade(ctx, req)
		return execution.RunReport{
			Request: req,
			Result:  buildResult,
			Grading: grading,
			Err:     err,
		}
	}

	result, err := s.Execute(ctx, req)
	return execution.RunReport{
		Request: req,
		Result:  result,
		Err:     err,
	}
}

// Close releases the isolation backend.
func (s *Service) Close() error {
	return s.backend.Close()
}

// finalizeResult maps a clean run with a non-zero exit code to a runtime
// error. The backend only classifies kills (time limit, memory, cancel); what
// a surviving exit code means is an engine-level decision.
func finalizeResult(result *execution.Result) *execution.Result {
	if result != nil && result.Status == execution.StatusOK && result.ExitCode != 0 {
		result.Status = execution.StatusRuntimeError
	}
	return result
}
