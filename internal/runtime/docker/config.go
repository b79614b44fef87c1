package docker

import (
	"time"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
)

// Config describes how to create a Docker-backed isolation backend.
type Config struct {
	// DefaultLimits applies to every run unless overridden per request.
	DefaultLimits execution.RunLimits
	// InstallTimeout bounds dependency installation. Installs are slower than
	// runs, so this is independent of (and usually longer than) the run
	// time limit. Zero selects defaultInstallTimeout.
	InstallTimeout time.Duration
	// CompileTimeout bounds the compile step. Zero selects defaultCompileTimeout.
	CompileTimeout time.Duration
}

const (
	defaultInstallTimeout = 2 * time.Minute
	defaultCompileTimeout = time.Minute
)

func (c Config) installTimeout() time.Duration {
	if c.InstallTimeout > 0 {
		return c.InstallTimeout
	}
	return defaultInstallTimeout
}

func (c Config) compileTimeout() time.Duration {
	if c.CompileTimeout > 0 {
		return c.CompileTimeout
	}
	return defaultCompileTimeout
}
