package kafka

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
)

const (
	messageTypeExecute = "execute"
	messageTypeDone    = "done"
)

type requestEnvelope struct {
	Type         string            `json:"type"`
	SessionID    string            `json:"session_id"`
	Language     string            `json:"language"`
	Files        []fileEnvelope    `json:"files"`
	MainFile     string            `json:"main_file,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Stdin        string            `json:"stdin,omitempty"`
	Limits       *limitsEnvelope   `json:"limits,omitempty"`
	Tests        []testEnvelope    `json:"tests,omitempty"`
}

type fileEnvelope struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type limitsEnvelope struct {
	TimeLimitMs      int64 `json:"time_limit_ms"`
	MemoryLimitBytes int64 `json:"memory_limit_bytes"`
	PidsLimit        int64 `json:"pids_limit,omitempty"`
}

type testEnvelope struct {
	Number         int    `json:"number"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Hidden         bool   `json:"hidden,omitempty"`
}

type reportEnvelope struct {
	SessionID  string           `json:"session_id"`
	Status     execution.Status `json:"status,omitempty"`
	ExitCode   *int64           `json:"exit_code,omitempty"`
	Stdout     string           `json:"stdout,omitempty"`
	Stderr     string           `json:"stderr,omitempty"`
	TimedOut   bool             `json:"timed_out"`
	DurationMs *int64           `json:"duration_ms,omitempty"`
	Error      string           `json:"error,omitempty"`
	Grading    *gradingEnvelope `json:"grading,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

type gradingEnvelope struct {
	PassedCount int                  `json:"passed_count"`
	AllPassed   bool                 `json:"all_passed"`
	DurationMs  int64                `json:"duration_ms"`
	Tests       []testReportEnvelope `json:"tests"`
}

type testReportEnvelope struct {
	Number         int              `json:"number"`
	Status         execution.Status `json:"status,omitempty"`
	Passed         bool             `json:"passed"`
	Hidden         bool             `json:"hidden,omitempty"`
	Input          string           `json:"input,omitempty"`
	ExpectedOutput string           `json:"expected_output,omitempty"`
	ActualOutput   string           `json:"actual_output,omitempty"`
	ExitCode       int64            `json:"exit_code"`
	DurationMs     int64            `json:"duration_ms"`
	Error          string           `json:"error,omitempty"`
}

func decodeRequestMessage(msg kafkago.Message) (execution.Request, error) {
	var envelope requestEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return execution.Request{}, fmt.Errorf("decode message: %w", err)
	}

	msgType := envelope.Type
	if msgType == "" {
		msgType = messageTypeExecute
	}

	switch msgType {
	case messageTypeExecute:
		return envelope.toRequest(msg)
	case messageTypeDone:
		return execution.Request{}, io.EOF
	default:
		return execution.Request{}, fmt.Errorf("unknown message type %q", msgType)
	}
}

func (e requestEnvelope) toRequest(msg kafkago.Message) (execution.Request, error) {
	if len(e.Files) == 0 {
		return execution.Request{}, fmt.Errorf("execute message missing files")
	}
	if e.Language == "" {
		return execution.Request{}, fmt.Errorf("execute message missing language")
	}

	sessionID := e.SessionID
	if sessionID == "" {
		sessionID = string(msg.Key)
	}
	if sessionID == "" {
		sessionID = fmt.Sprintf("%s:%d", msg.Topic, msg.Offset)
	}

	files := make([]execution.SourceFile, len(e.Files))
	for idx, f := range e.Files {
		if f.Name == "" {
			return execution.Request{}, fmt.Errorf("execute message has an unnamed file")
		}
		files[idx] = execution.SourceFile{Name: f.Name, Content: f.Content}
	}

	return execution.Request{
		SessionID:    sessionID,
		Language:     execution.Language(e.Language),
		Files:        files,
		MainFile:     e.MainFile,
		Dependencies: e.Dependencies,
		Stdin:        e.Stdin,
		Limits:       e.toLimits(),
		Tests:        e.toTests(),
	}, nil
}

func (e requestEnvelope) toLimits() execution.RunLimits {
	if e.Limits == nil {
		return execution.RunLimits{}
	}

	var limits execution.RunLimits
	if e.Limits.TimeLimitMs > 0 {
		limits.TimeLimit = time.Duration(e.Limits.TimeLimitMs) * time.Millisecond
	}
	if e.Limits.MemoryLimitBytes > 0 {
		limits.MemoryLimitBytes = e.Limits.MemoryLimitBytes
	}
	if e.Limits.PidsLimit > 0 {
		limits.PidsLimit = e.Limits.PidsLimit
	}
	return limits
}

func (e requestEnvelope) toTests() []execution.TestCase {
	if len(e.Tests) == 0 {
		return nil
	}

	tests := make([]execution.TestCase, len(e.Tests))
	for idx, test := range e.Tests {
		number := test.Number
		if number <= 0 {
			number = idx + 1
		}
		tests[idx] = execution.TestCase{
			Number:         number,
			Input:          test.Input,
			ExpectedOutput: test.ExpectedOutput,
			Hidden:         test.Hidden,
		}
	}
	return tests
}

func encodeRunReport(report execution.RunReport) ([]byte, error) {
	payload, err := json.Marshal(makeReportEnvelope(report))
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return payload, nil
}

func makeReportEnvelope(report execution.RunReport) reportEnvelope {
	envelope := reportEnvelope{
		SessionID: report.Request.SessionID,
		Timestamp: time.Now().UTC(),
	}

	if report.Result != nil {
		exit := report.Result.ExitCode
		envelope.ExitCode = &exit

		dur := report.Result.Duration.Milliseconds()
		envelope.DurationMs = &dur

		envelope.Status = report.Result.Status
		envelope.Stdout = report.Result.Stdout
		envelope.Stderr = report.Result.Stderr
		envelope.TimedOut = report.Result.TimedOut()
	}

	if report.Grading != nil {
		envelope.Grading = makeGradingEnvelope(report.Grading)
	}

	if report.Err != nil {
		envelope.Error = report.Err.Error()
	}

	return envelope
}

// makeGradingEnvelope copies grading results verbatim: hidden fixture content
// was already replaced by the grader before the report reached this layer.
func makeGradingEnvelope(grading *execution.GradingResult) *gradingEnvelope {
	tests := make([]testReportEnvelope, len(grading.Results))
	for idx, test := range grading.Results {
		tests[idx] = testReportEnvelope{
			Number:         test.Number,
			Status:         test.Status,
			Passed:         test.Passed,
			Hidden:         test.Hidden,
			Input:          test.Input,
			ExpectedOutput: test.ExpectedOutput,
			ActualOutput:   test.ActualOutput,
			ExitCode:       test.ExitCode,
			DurationMs:     test.Duration.Milliseconds(),
			Error:          test.Error,
		}
	}

	return &gradingEnvelope{
		PassedCount: grading.PassedCount,
		AllPassed:   grading.AllPassed,
		DurationMs:  grading.Duration.Milliseconds(),
		Tests:       tests,
	}
}
