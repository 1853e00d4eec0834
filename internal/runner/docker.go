package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

// ContainerAPI is the subset of the Docker client used by DockerRunner.
type ContainerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerRunner runs each tool invocation in a fresh container of one
// image. Mounted host paths appear at the same path inside the container,
// so commands built for the host work unchanged.
type DockerRunner struct {
	api    ContainerAPI
	image  string
	labels map[string]string
	logger *zap.Logger
}

// NewDockerClient creates a Docker client and validates the daemon is accessible.
func NewDockerClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf(`Docker daemon not accessible: %w

Ensure Docker is running or set tools.runner to "exec"`, err)
	}

	return cli, nil
}

// NewDockerRunner creates a runner using image. labels (see BuildLabels) are
// set on every container; labels and logger may be nil.
func NewDockerRunner(api ContainerAPI, image string, labels map[string]string, logger *zap.Logger) *DockerRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DockerRunner{api: api, image: image, labels: labels, logger: logger}
}

// Run creates, starts and waits for a container running cmd. The container
// is always removed afterwards.
func (r *DockerRunner) Run(ctx context.Context, cmd Command) error {
	if cmd.Dir != "" {
		if err := os.MkdirAll(cmd.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
	}

	name := fmt.Sprintf("digestiflow-%s-%s", filepath.Base(cmd.Name), uuid.New().String()[:8])

	cfg := &container.Config{
		Image:      r.image,
		Cmd:        append([]string{cmd.Name}, cmd.Args...),
		Env:        cmd.Env,
		WorkingDir: cmd.Dir,
		User:       fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		Labels:     withTool(r.labels, filepath.Base(cmd.Name)),
	}
	hostCfg := &container.HostConfig{
		AutoRemove: false, // removed explicitly after logs are read
		Mounts:     bindMounts(cmd),
	}

	start := time.Now()
	resp, err := r.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return fmt.Errorf("failed to create container for %s: %w", cmd.Name, err)
	}
	defer r.api.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	r.logger.Info("tool_started",
		zap.String("command", cmd.String()),
		zap.String("container", name),
		zap.String("image", r.image))

	if err := r.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container for %s: %w", cmd.Name, err)
	}

	statusCh, errCh := r.api.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed waiting for %s: %w", cmd.Name, err)
		}
	case status := <-statusCh:
		if status.Error != nil {
			return fmt.Errorf("container for %s failed: %s", cmd.Name, status.Error.Message)
		}
		exitCode = status.StatusCode
	}

	if exitCode != 0 {
		toolErr := &ToolError{Tool: cmd.Name, ExitCode: int(exitCode), Output: r.logs(ctx, resp.ID)}
		r.logger.Error("tool_failed",
			zap.String("command", cmd.String()),
			zap.Int("exit_code", toolErr.ExitCode),
			zap.String("output", toolErr.Output))
		return toolErr
	}

	r.logger.Info("tool_finished",
		zap.String("command", cmd.String()),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

// logs returns the tail of the container's combined output.
func (r *DockerRunner) logs(ctx context.Context, containerID string) string {
	reader, err := r.api.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprint(outputTailLines),
	})
	if err != nil {
		return fmt.Sprintf("(failed to retrieve logs: %v)", err)
	}
	defer reader.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, reader); err != nil {
		return fmt.Sprintf("(failed to read logs: %v)", err)
	}
	return tail(out.String(), outputTailLines)
}

func bindMounts(cmd Command) []mount.Mount {
	seen := make(map[string]bool)
	var mounts []mount.Mount
	paths := append([]string(nil), cmd.Mounts...)
	if cmd.Dir != "" {
		paths = append(paths, cmd.Dir)
	}
	for _, p := range paths {
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: p,
			Target: p,
		})
	}
	return mounts
}
