package execution

import "time"

// RunLimits describes optional resource boundaries for a single program execution.
//
// A zero value RunLimits imposes no additional restrictions beyond the
// backend defaults.
type RunLimits struct {
	// TimeLimit caps how long the program is allowed to run. Zero means no limit.
	TimeLimit time.Duration
	// MemoryLimitBytes caps the container memory usage in bytes. Zero means no limit.
	MemoryLimitBytes int64
	// PidsLimit caps the number of processes inside the container. Zero means no limit.
	PidsLimit int64
	// NanoCPUs caps the CPU share in units of 1e-9 CPUs. Zero means one full CPU.
	NanoCPUs int64
}
