package docker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/client"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
	"github.com/JADDOU3/NexusQuest-sub002/internal/ports"
	runtimex "github.com/JADDOU3/NexusQuest-sub002/internal/runtime"
)

// Backend implements ports.Backend on top of Docker containers. Every phase
// of a run (dependency install, compile, execute) gets a disposable container
// with the workspace copied in; only the install phase may reach the network.
type Backend struct {
	engine *containerEngine
	puller *imagePuller
	cfg    Config
	client dockerClient
}

var _ ports.Backend = (*Backend)(nil)

// New constructs a Backend using the supplied configuration.
func New(cfg Config) (*Backend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker backend: create client: %w", err)
	}
	return newBackendWithClient(cli, cfg), nil
}

func newBackendWithClient(cli dockerClient, cfg Config) *Backend {
	return &Backend{
		engine: newContainerEngine(cli, cfg.DefaultLimits),
		puller: newImagePuller(cli),
		cfg:    cfg,
		client: cli,
	}
}

// Prepare installs dependencies and runs the compile step inside the
// isolation boundary. Install and compile failures belong to the user's
// submission and come back as a Result with the matching status; only
// engine-side faults surface as errors.
func (b *Backend) Prepare(ctx context.Context, desc runtimex.Descriptor, ws runtimex.Workspace, limits execution.RunLimits) (ports.PreparedProgram, *execution.Result, error) {
	if err := b.puller.ensure(ctx, desc.Image); err != nil {
		return nil, nil, &execution.SandboxError{Op: "pull image", Err: err}
	}

	files := make([]fileSpec, len(ws.Files))
	for i, f := range ws.Files {
		files[i] = fileSpec{Name: f.Name, Mode: 0o644, Data: []byte(f.Content)}
	}

	if ws.Install != nil {
		installed, result, err := b.runBuildPhase(ctx, desc, buildPhase{
			cmd:       ws.Install.Command,
			files:     files,
			network:   ws.Install.Network,
			timeout:   b.cfg.installTimeout(),
			failState: execution.StatusInstallError,
		})
		if err != nil {
			return nil, nil, &execution.SandboxError{Op: "install dependencies", Err: err}
		}
		if result != nil {
			return nil, result, nil
		}
		files = installed
	}

	if desc.Compiled() {
		compiled, result, err := b.runBuildPhase(ctx, desc, buildPhase{
			cmd:       desc.ExpandCommand(desc.CompileCommand, ws.MainFile),
			files:     files,
			timeout:   b.cfg.compileTimeout(),
			failState: execution.StatusCompileError,
		})
		if err != nil {
			return nil, nil, &execution.SandboxError{Op: "compile", Err: err}
		}
		if result != nil {
			return nil, result, nil
		}
		files = compiled
	}

	return &preparedProgram{
		engine: b.engine,
		desc:   desc,
		files:  files,
		runCmd: desc.ExpandCommand(desc.RunCommand, ws.MainFile),
		limits: limits,
	}, nil, nil
}

// buildPhase parameterizes the two pre-run phases, which share everything
// except command, network policy, timeout, and the status reported on failure.
type buildPhase struct {
	cmd       []string
	files     []fileSpec
	network   bool
	timeout   time.Duration
	failState execution.Status
}

// Close releases the underlying Docker client.
func (b *Backend) Close() error {
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	return nil
}

func (b *Backend) runBuildPhase(ctx context.Context, desc runtimex.Descriptor, phase buildPhase) ([]fileSpec, *execution.Result, error) {
	var exported []fileSpec

	limits := execution.RunLimits{TimeLimit: phase.timeout}

	result, err := b.engine.runPhase(ctx, phaseSpec{
		image:   desc.Image,
		workdir: desc.Workdir,
		cmd:     phase.cmd,
		files:   phase.files,
		limits:  limits,
		network: phase.network,
	}, func(ctx context.Context, containerID string) error {
		files, err := b.engine.exportWorkdir(ctx, containerID, desc.Workdir)
		if err != nil {
			return err
		}
		exported = files
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if result.Status != execution.StatusOK || result.ExitCode != 0 {
		// The phase log is the diagnostic callers need; stdout and stderr are
		// folded together so nothing is lost for tools that write to either.
		return nil, &execution.Result{
			Status:   phase.failState,
			Stderr:   joinPhaseLog(result.Stdout, result.Stderr),
			ExitCode: result.ExitCode,
			Duration: result.Duration,
		}, nil
	}

	return exported, nil, nil
}

func joinPhaseLog(stdout, stderr string) string {
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return strings.TrimRight(stdout, "\n") + "\n" + stderr
	}
}
