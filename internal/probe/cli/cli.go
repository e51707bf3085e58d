package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/crashwatch/internal/probe"
)

// DefaultBinary is the runtime CLI used when none is configured.
const DefaultBinary = "docker"

// Config configures the CLI probe.
type Config struct {
	Binary      string        // runtime CLI (docker, podman, nerdctl)
	Timeout     time.Duration // per invocation
	ArtifactDir string        // where log artifacts are written
	LogTail     int           // 0 = all lines
}

// Probe shells out to "<binary> inspect" and "<binary> logs".
// No shell is involved; the workload name is passed as a single argument.
type Probe struct {
	cfg Config
	log *slog.Logger
}

var _ probe.Probe = (*Probe)(nil)

func New(cfg Config, log *slog.Logger) *Probe {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = DefaultBinary
	}
	if log == nil {
		log = slog.Default()
	}
	return &Probe{cfg: cfg, log: log.With("component", "probe", "driver", "cli")}
}

func (p *Probe) command(ctx context.Context, args ...string) *exec.Cmd {
	// #nosec G204 -- binary comes from configuration, args are not shell-interpreted
	cmd := exec.CommandContext(ctx, p.cfg.Binary, args...)
	cmd.Stdin = nil
	cmd.WaitDelay = time.Second
	return cmd
}

// IsRunning implements probe.Probe. Any failure reports false.
func (p *Probe) IsRunning(ctx context.Context, name string) bool {
	running, err := p.Inspect(ctx, name)
	if err != nil {
		p.log.Debug("inspect failed, treating as stopped", "workload", name, "error", err)
		return false
	}
	return running
}

// Inspect returns the runtime's running flag for name, or a *probe.Failure.
func (p *Probe) Inspect(ctx context.Context, name string) (bool, error) {
	ctx, cancel := probe.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	cmd := p.command(ctx, "inspect", "-f", "{{.State.Running}}", name)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return false, &probe.Failure{Name: name, Op: "inspect", Err: describeExit(err, stderr.String())}
	}
	switch v := strings.TrimSpace(string(out)); v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, &probe.Failure{Name: name, Op: "inspect", Err: fmt.Errorf("unexpected output %q", v)}
	}
}

// FetchLogs implements probe.Probe. stdout and stderr of the runtime's logs
// command are written to the same artifact file in arrival order.
func (p *Probe) FetchLogs(ctx context.Context, name string) (*probe.Artifact, error) {
	ctx, cancel := probe.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	args := []string{"logs"}
	if p.cfg.LogTail > 0 {
		args = append(args, "--tail", strconv.Itoa(p.cfg.LogTail))
	}
	args = append(args, name)
	a, err := probe.WriteArtifact(p.cfg.ArtifactDir, name, func(w io.Writer) error {
		cmd := p.command(ctx, args...)
		cmd.Stdout = w
		cmd.Stderr = w
		return cmd.Run()
	})
	if err != nil {
		return nil, &probe.Failure{Name: name, Op: "logs", Err: describeExit(err, "")}
	}
	return a, nil
}

func describeExit(err error, stderr string) error {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if s := strings.TrimSpace(stderr); s != "" {
			return fmt.Errorf("exit code %d: %s", ee.ExitCode(), s)
		}
		return fmt.Errorf("exit code %d", ee.ExitCode())
	}
	return err
}
