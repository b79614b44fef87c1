package docker

import "github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"

// defaultNanoCPUs pins each container to one full CPU unless overridden.
const defaultNanoCPUs int64 = 1_000_000_000

func normalizeLimits(l execution.RunLimits) execution.RunLimits {
	if l.TimeLimit < 0 {
		l.TimeLimit = 0
	}
	if l.MemoryLimitBytes < 0 {
		l.MemoryLimitBytes = 0
	}
	if l.PidsLimit < 0 {
		l.PidsLimit = 0
	}
	if l.NanoCPUs < 0 {
		l.NanoCPUs = 0
	}
	return l
}
