package probe

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"
)

// DefaultTimeout bounds a single runtime query when none is configured.
const DefaultTimeout = 15 * time.Second

// Probe queries a container runtime. It never mutates the runtime.
//
// IsRunning returns false both when the workload is confirmed stopped and
// when the query itself fails (timeout, runtime unavailable, unknown name).
// Alerting on an unreachable runtime is preferred over missing a crash.
//
// FetchLogs returns the collected log output as an Artifact, or a *Failure
// when no evidence could be collected. An Artifact with Size 0 means the
// workload produced no output.
// Implementations must be safe for concurrent use.
type Probe interface {
	IsRunning(ctx context.Context, name string) bool
	FetchLogs(ctx context.Context, name string) (*Artifact, error)
}

// Failure reports a runtime query that could not complete.
type Failure struct {
	Name string
	Op   string // inspect | logs
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("probe %s %s: %v", f.Op, f.Name, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Artifact is a log bundle written to a temporary file so it can be handed
// to a notifier. The caller owns it and must call Remove when done.
type Artifact struct {
	Name string
	Path string
	Size int64
}

// Remove deletes the artifact file. Removing twice is not an error.
func (a *Artifact) Remove() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// WriteArtifact creates a temp file in dir (os.TempDir when empty) named
// after the workload, lets fill write into it and returns the finished
// Artifact. The file is removed if fill fails.
func WriteArtifact(dir, name string, fill func(w io.Writer) error) (*Artifact, error) {
	safe := unsafeChars.ReplaceAllString(name, "_")
	f, err := os.CreateTemp(dir, "logs_"+safe+"_*.txt")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	fillErr := fill(f)
	closeErr := f.Close()
	if fillErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if fillErr != nil {
			return nil, fillErr
		}
		return nil, closeErr
	}
	st, err := os.Stat(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &Artifact{Name: name, Path: path, Size: st.Size()}, nil
}

// WithTimeout applies d (or DefaultTimeout when d <= 0) to ctx.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
