package ports

import (
	"context"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
)

// RequestSource provides execution requests for the engine's serve loop.
//
// NextRequest blocks until a request is available, the context ends, or the
// source is exhausted (io.EOF).
type RequestSource interface {
	NextRequest(ctx context.Context) (execution.Request, error)
}
