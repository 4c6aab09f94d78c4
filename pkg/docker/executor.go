package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema_exam",
		Subsystem: "sandbox",
		Name:      "run_duration_seconds",
		Help:      "Duration of sandboxed container runs",
		Buckets:   prometheus.DefBuckets,
	}, []string{"image", "stage"})

	runTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema_exam",
		Subsystem: "sandbox",
		Name:      "run_timeouts_total",
		Help:      "Number of sandboxed runs that hit their timeout",
	}, []string{"image", "stage"})

	runFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema_exam",
		Subsystem: "sandbox",
		Name:      "run_failures_total",
		Help:      "Number of sandboxed runs the container runtime could not complete",
	}, []string{"image", "stage"})
)

// ErrImageRequired is returned when a run spec names no image.
var ErrImageRequired = errors.New("image is required")

// ErrContainerSetup wraps failures to create or start the sandbox container.
var ErrContainerSetup = errors.New("container setup failed")

// Sandbox runs commands inside isolated containers.
type Sandbox interface {
	Run(ctx context.Context, spec RunSpec) (RunResult, error)
}

// RunSpec describes one command executed in a fresh container.
type RunSpec struct {
	Image string
	// Stage labels metrics and spans, e.g. "compile" or "run".
	Stage         string
	Cmd           []string
	Env           []string
	Timeout       time.Duration
	Workspace     string
	MemoryLimitMB int64
	CPUShares     int64
}

// RunResult summarises a finished container.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Config groups sandbox configuration values.
type Config struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	PidsLimit     int64
	WorkingDir    string
	// OutputLimit caps captured stdout and stderr in bytes; zero keeps everything.
	OutputLimit int
	Logger      zerolog.Logger
}

// DockerSandbox implements Sandbox on top of the Docker engine API.
type DockerSandbox struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerSandbox constructs a Docker backed sandbox.
func NewDockerSandbox(cfg Config) (*DockerSandbox, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &DockerSandbox{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-exam-api/pkg/docker"),
		logger: logger.With().Str("component", "docker_sandbox").Logger(),
	}, nil
}

// WorkingDir is where the workspace is mounted inside the container.
func (s *DockerSandbox) WorkingDir() string {
	return s.cfg.WorkingDir
}

// Run executes spec.Cmd inside a network-less container with the workspace bind mounted.
// A timeout is reported through RunResult.TimedOut, not as an error.
func (s *DockerSandbox) Run(parent context.Context, spec RunSpec) (RunResult, error) {
	if spec.Image == "" {
		return RunResult{}, ErrImageRequired
	}
	stage := spec.Stage
	if stage == "" {
		stage = "run"
	}

	ctx, span := s.tracer.Start(parent, "docker.sandbox.run", trace.WithAttributes(
		attribute.String("docker.image", spec.Image),
		attribute.String("sandbox.stage", stage),
	))
	defer span.End()

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resources := container.Resources{
		Memory:    spec.MemoryLimitMB * 1024 * 1024,
		CPUShares: spec.CPUShares,
	}
	if resources.Memory == 0 && s.cfg.MemoryLimitMB > 0 {
		resources.Memory = s.cfg.MemoryLimitMB * 1024 * 1024
	}
	if resources.CPUShares == 0 && s.cfg.CPUShares > 0 {
		resources.CPUShares = s.cfg.CPUShares
	}
	if s.cfg.PidsLimit > 0 {
		pids := s.cfg.PidsLimit
		resources.PidsLimit = &pids
	}

	hostCfg := &container.HostConfig{
		Resources:   resources,
		NetworkMode: "none",
	}
	if spec.Workspace != "" {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: spec.Workspace,
			Target: s.cfg.WorkingDir,
		})
	}

	containerCfg := &container.Config{
		Image:           spec.Image,
		Cmd:             spec.Cmd,
		Env:             spec.Env,
		WorkingDir:      s.cfg.WorkingDir,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}

	result := RunResult{}
	start := time.Now()

	resp, err := s.client.ContainerCreate(runCtx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return result, s.fail(span, spec.Image, stage, fmt.Errorf("%w: create: %v", ErrContainerSetup, err))
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			s.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := s.client.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		return result, s.fail(span, spec.Image, stage, fmt.Errorf("%w: start: %v", ErrContainerSetup, err))
	}

	statusCh, errCh := s.client.ContainerWait(runCtx, containerID, container.WaitConditionNextExit)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-runCtx.Done():
		waitErr = runCtx.Err()
	}

	result.Duration = time.Since(start)
	runDuration.WithLabelValues(spec.Image, stage).Observe(result.Duration.Seconds())

	if waitErr != nil {
		switch {
		case errors.Is(waitErr, context.DeadlineExceeded) && ctx.Err() == nil:
			result.TimedOut = true
			runTimeouts.WithLabelValues(spec.Image, stage).Inc()
			killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
				s.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
			}
			span.SetStatus(codes.Error, "run timed out")
		default:
			return result, s.fail(span, spec.Image, stage, fmt.Errorf("container wait: %w", waitErr))
		}
	}

	logsCtx, cancelLogs := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelLogs()
	logReader, err := s.client.ContainerLogs(logsCtx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
		return result, nil
	}
	defer logReader.Close()

	stdout, stderr, err := splitDockerLogs(logReader)
	if err != nil {
		s.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		return result, nil
	}
	result.Stdout = truncate(stdout, s.cfg.OutputLimit)
	result.Stderr = truncate(stderr, s.cfg.OutputLimit)
	return result, nil
}

func (s *DockerSandbox) fail(span trace.Span, image, stage string, err error) error {
	runFailures.WithLabelValues(image, stage).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit] + "[...]"
}

// Close shuts down the sandbox's underlying client.
func (s *DockerSandbox) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
