package ports

import (
	"context"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
)

// ReportPublisher publishes run reports to an external system.
type ReportPublisher interface {
	PublishRunReport(ctx context.Context, report execution.RunReport) error
	Close() error
}
