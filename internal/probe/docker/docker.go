package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/loykin/crashwatch/internal/probe"
)

// Config configures the Docker Engine API probe.
type Config struct {
	Host        string        // e.g. unix:///var/run/docker.sock; empty uses DOCKER_HOST / default
	Timeout     time.Duration // per API call
	ArtifactDir string
	LogTail     int // 0 = all lines
}

// apiClient is the subset of the Docker client the probe needs.
type apiClient interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	Close() error
}

// Probe talks to the Docker Engine API directly instead of shelling out.
type Probe struct {
	cfg Config
	api apiClient
	log *slog.Logger
}

var _ probe.Probe = (*Probe)(nil)

// New creates a Docker API probe. The daemon is not contacted until the
// first query.
func New(cfg Config, log *slog.Logger) (*Probe, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker: create client: %w", err)
	}
	return newWithClient(cfg, c, log), nil
}

func newWithClient(cfg Config, api apiClient, log *slog.Logger) *Probe {
	if log == nil {
		log = slog.Default()
	}
	return &Probe{cfg: cfg, api: api, log: log.With("component", "probe", "driver", "docker")}
}

func (p *Probe) Close() error { return p.api.Close() }

// IsRunning implements probe.Probe. Any failure reports false.
func (p *Probe) IsRunning(ctx context.Context, name string) bool {
	info, err := p.inspect(ctx, name)
	if err != nil {
		p.log.Debug("inspect failed, treating as stopped", "workload", name, "error", err)
		return false
	}
	return info.State != nil && info.State.Running
}

func (p *Probe) inspect(ctx context.Context, name string) (container.InspectResponse, error) {
	ctx, cancel := probe.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	info, err := p.api.ContainerInspect(ctx, name)
	if err != nil {
		return info, &probe.Failure{Name: name, Op: "inspect", Err: err}
	}
	if info.ContainerJSONBase == nil {
		return info, &probe.Failure{Name: name, Op: "inspect", Err: errors.New("empty inspect response")}
	}
	return info, nil
}

// FetchLogs implements probe.Probe. Non-TTY containers multiplex stdout and
// stderr in one stream; both are demultiplexed into the same artifact.
func (p *Probe) FetchLogs(ctx context.Context, name string) (*probe.Artifact, error) {
	tty := false
	if info, err := p.inspect(ctx, name); err == nil && info.Config != nil {
		tty = info.Config.Tty
	}
	ctx, cancel := probe.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true}
	if p.cfg.LogTail > 0 {
		opts.Tail = strconv.Itoa(p.cfg.LogTail)
	}
	rc, err := p.api.ContainerLogs(ctx, name, opts)
	if err != nil {
		return nil, &probe.Failure{Name: name, Op: "logs", Err: err}
	}
	defer func() { _ = rc.Close() }()
	a, err := probe.WriteArtifact(p.cfg.ArtifactDir, name, func(w io.Writer) error {
		if tty {
			_, err := io.Copy(w, rc)
			return err
		}
		_, err := stdcopy.StdCopy(w, w, rc)
		return err
	})
	if err != nil {
		return nil, &probe.Failure{Name: name, Op: "logs", Err: err}
	}
	return a, nil
}
