package producer

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
	"github.com/JADDOU3/NexusQuest-sub002/internal/ports"
)

// Service implements ports.RequestSource from a predefined request
// catalogue. It backs demo runs and smoke tests when no broker is wired up.
type Service struct {
	mu       sync.Mutex
	requests []execution.Request
	index    int
}

var _ ports.RequestSource = (*Service)(nil)

// NewService builds a producer with a default catalogue covering the
// built-in languages.
func NewService() *Service {
	return &Service{
		requests: []execution.Request{
			{
				SessionID: "demo-python-hello",
				Language:  execution.LanguagePython,
				Files: []execution.SourceFile{
					{Name: "main.py", Content: "print('Hello from Python!')\n"},
				},
			},
			{
				SessionID: "demo-python-stdin",
				Language:  execution.LanguagePython,
				Files: []execution.SourceFile{
					{Name: "main.py", Content: "name = input()\nprint(f'Hello, {name}!')\n"},
				},
				Stdin: "engine\n",
			},
			{
				SessionID: "demo-javascript-hello",
				Language:  execution.LanguageJavaScript,
				Files: []execution.SourceFile{
					{Name: "main.js", Content: "console.log('Hello from Node!');\n"},
				},
			},
			{
				SessionID: "demo-go-hello",
				Language:  execution.LanguageGo,
				Files: []execution.SourceFile{
					{Name: "main.go", Content: "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"Hello from Go!\")\n}\n"},
				},
			},
			{
				SessionID: "demo-python-adder-graded",
				Language:  execution.LanguagePython,
				Files: []execution.SourceFile{
					{Name: "main.py", Content: "a = int(input())\nb = int(input())\nprint(a + b)\n"},
				},
				Tests: []execution.TestCase{
					{Number: 1, Input: "2\n3\n", ExpectedOutput: "5"},
					{Number: 2, Input: "0\n0\n", ExpectedOutput: "0"},
					{Number: 3, Input: "10\n-4\n", ExpectedOutput: "6", Hidden: true},
				},
			},
		},
	}
}

// NextRequest returns the next catalogued request, or io.EOF once exhausted.
func (s *Service) NextRequest(ctx context.Context) (execution.Request, error) {
	select {
	case <-ctx.Done():
		return execution.Request{}, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.requests) {
		return execution.Request{}, io.EOF
	}

	req := s.requests[s.index]
	s.index++

	return req, nil
}

// AddRequest extends the catalogue at runtime.
func (s *Service) AddRequest(req execution.Request) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
}
