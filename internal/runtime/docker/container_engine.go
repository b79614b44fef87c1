package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
)

const (
	stopGrace     = 5 * time.Second
	postStopWait  = 15 * time.Second
	networkedMode = "bridge"
	offlineMode   = "none"
)

// containerEngine wraps the raw docker client with the primitives every
// phase (install, compile, run) is built from: one disposable container per
// phase, workspace copied in as a tar archive, no network unless the phase
// asks for it.
type containerEngine struct {
	cli           dockerClient
	defaultLimits execution.RunLimits
}

func newContainerEngine(cli dockerClient, defaultLimits execution.RunLimits) *containerEngine {
	return &containerEngine{
		cli:           cli,
		defaultLimits: normalizeLimits(defaultLimits),
	}
}

func (c *containerEngine) effectiveLimits(request execution.RunLimits) execution.RunLimits {
	effective := c.defaultLimits
	overrides := normalizeLimits(request)

	if overrides.TimeLimit > 0 {
		effective.TimeLimit = overrides.TimeLimit
	}
	if overrides.MemoryLimitBytes > 0 {
		effective.MemoryLimitBytes = overrides.MemoryLimitBytes
	}
	if overrides.PidsLimit > 0 {
		effective.PidsLimit = overrides.PidsLimit
	}
	if overrides.NanoCPUs > 0 {
		effective.NanoCPUs = overrides.NanoCPUs
	}

	return effective
}

// phaseSpec describes one container phase.
type phaseSpec struct {
	image       string
	workdir     string
	cmd         []string
	files       []fileSpec
	limits      execution.RunLimits
	network     bool
	stdin       string
	attachStdin bool
}

// runPhase executes one phase to completion: create, copy the workspace in,
// start, wait under the phase time limit, then collect exit status and logs.
// onSuccess, when non-nil, runs against the still-existing container after a
// clean exit, before removal; phases use it to export the workdir.
func (c *containerEngine) runPhase(ctx context.Context, spec phaseSpec, onSuccess func(ctx context.Context, containerID string) error) (*execution.Result, error) {
	limits := c.effectiveLimits(spec.limits)

	containerID, cleanup, err := c.createContainer(ctx, spec, limits)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := c.copyFiles(ctx, containerID, spec.workdir, spec.files); err != nil {
		return nil, fmt.Errorf("copy files: %w", err)
	}

	var attach types.HijackedResponse
	if spec.attachStdin {
		attachCtx := ctx
		if attachCtx.Err() != nil {
			attachCtx = context.Background()
		}
		attach, err = c.cli.ContainerAttach(attachCtx, containerID, container.AttachOptions{
			Stream: true,
			Stdin:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("attach container: %w", err)
		}
		defer attach.Close()
	}

	start := time.Now()
	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	if spec.attachStdin && attach.Conn != nil {
		reader := strings.NewReader(spec.stdin)
		if _, err := io.Copy(attach.Conn, reader); err != nil {
			return nil, fmt.Errorf("write stdin: %w", err)
		}
		if closer, ok := attach.Conn.(interface{ CloseWrite() error }); ok {
			_ = closer.CloseWrite()
		}
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if limits.TimeLimit > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, limits.TimeLimit)
	}
	status, err := c.waitForExit(waitCtx, containerID)
	if cancel != nil {
		cancel()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && limits.TimeLimit > 0 && ctx.Err() == nil {
			return c.handleTimeLimit(containerID, start)
		}
		return nil, err
	}

	inspectCtx := ctx
	if inspectCtx.Err() != nil {
		inspectCtx = context.Background()
	}

	inspect, err := c.cli.ContainerInspect(inspectCtx, containerID)
	if err != nil {
		return nil, fmt.Errorf("inspect container: %w", err)
	}

	logCtx := ctx
	if logCtx.Err() != nil {
		logCtx = context.Background()
	}

	stdout, stderr, err := c.fetchLogs(logCtx, containerID)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}

	result := &execution.Result{
		Status:   execution.StatusOK,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: status.StatusCode,
		Duration: time.Since(start),
	}

	if inspect.State != nil && inspect.State.OOMKilled {
		result.Status = execution.StatusMemoryLimit
	}

	if onSuccess != nil && result.Status == execution.StatusOK && result.ExitCode == 0 {
		if err := onSuccess(inspectCtx, containerID); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (c *containerEngine) createContainer(ctx context.Context, spec phaseSpec, limits execution.RunLimits) (string, func(), error) {
	nanoCPUs := limits.NanoCPUs
	if nanoCPUs == 0 {
		nanoCPUs = defaultNanoCPUs
	}

	hostConfig := &container.HostConfig{
		NetworkMode: offlineMode,
		Resources: container.Resources{
			NanoCPUs: nanoCPUs,
		},
	}
	if spec.network {
		hostConfig.NetworkMode = networkedMode
	}
	if limits.MemoryLimitBytes > 0 {
		hostConfig.Resources.Memory = limits.MemoryLimitBytes
		hostConfig.Resources.MemorySwap = limits.MemoryLimitBytes
	}
	if limits.PidsLimit > 0 {
		pids := limits.PidsLimit
		hostConfig.Resources.PidsLimit = &pids
	}

	resp, err := c.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image:        spec.image,
			Cmd:          spec.cmd,
			AttachStdout: true,
			AttachStderr: true,
			AttachStdin:  spec.attachStdin,
			OpenStdin:    spec.attachStdin,
			StdinOnce:    spec.attachStdin,
			WorkingDir:   spec.workdir,
		},
		hostConfig,
		nil,
		nil,
		"",
	)
	if err != nil {
		return "", nil, fmt.Errorf("create container: %w", err)
	}

	cleanup := func() {
		_ = c.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}

	return resp.ID, cleanup, nil
}

func (c *containerEngine) copyFiles(ctx context.Context, containerID, workdir string, files []fileSpec) error {
	if len(files) == 0 {
		return nil
	}

	reader, err := makeArchive(files)
	if err != nil {
		return err
	}

	return c.cli.CopyToContainer(ctx, containerID, workdir, reader, types.CopyToContainerOptions{AllowOverwriteDirWithFile: true})
}

// exportWorkdir pulls the container's workdir back out as file specs so the
// next phase container can start from the installed or compiled state.
func (c *containerEngine) exportWorkdir(ctx context.Context, containerID, workdir string) ([]fileSpec, error) {
	reader, _, err := c.cli.CopyFromContainer(ctx, containerID, workdir)
	if err != nil {
		return nil, fmt.Errorf("copy from container: %w", err)
	}
	defer reader.Close()

	files, err := readWorkdirArchive(reader)
	if err != nil {
		return nil, fmt.Errorf("export workdir %s: %w", workdir, err)
	}
	return files, nil
}

func (c *containerEngine) stopContainer(containerID string) error {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()

	if err := c.cli.ContainerStop(stopCtx, containerID, container.StopOptions{}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("stop container: %w", err)
	}
	return nil
}

func (c *containerEngine) handleTimeLimit(containerID string, start time.Time) (*execution.Result, error) {
	if err := c.stopContainer(containerID); err != nil {
		return nil, err
	}

	waitCtx, cancelWait := context.WithTimeout(context.Background(), postStopWait)
	defer cancelWait()

	status, waitErr := c.waitForExit(waitCtx, containerID)
	if waitErr != nil && !errors.Is(waitErr, context.DeadlineExceeded) && !client.IsErrNotFound(waitErr) {
		return nil, fmt.Errorf("wait for container after time limit: %w", waitErr)
	}

	stdout, stderr, err := c.fetchLogs(context.Background(), containerID)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}

	exitCode := int64(-1)
	if status != nil {
		exitCode = status.StatusCode
	}

	return &execution.Result{
		Status:   execution.StatusTimeLimit,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}, nil
}

func (c *containerEngine) waitForExit(ctx context.Context, containerID string) (*container.WaitResponse, error) {
	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("container error: %s", status.Error.Message)
		}
		return &status, nil
	case err := <-errCh:
		return nil, fmt.Errorf("wait for container: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for container: %w", ctx.Err())
	}
}

func (c *containerEngine) fetchLogs(ctx context.Context, containerID string) (stdout, stderr string, err error) {
	logs, err := c.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer logs.Close()

	var stdoutBuf, stderrBuf strings.Builder
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, logs); err != nil {
		return "", "", err
	}

	return stdoutBuf.String(), stderrBuf.String(), nil
}
