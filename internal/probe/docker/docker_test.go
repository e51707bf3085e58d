package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/loykin/crashwatch/internal/logger"
	"github.com/loykin/crashwatch/internal/probe"
)

type fakeAPI struct {
	states  map[string]bool
	tty     map[string]bool
	logs    map[string][]byte
	logsErr error
	gotOpts container.LogsOptions
}

func (f *fakeAPI) ContainerInspect(_ context.Context, id string) (container.InspectResponse, error) {
	running, ok := f.states[id]
	if !ok {
		return container.InspectResponse{}, errors.New("No such container: " + id)
	}
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{State: &container.State{Running: running}},
		Config:            &container.Config{Tty: f.tty[id]},
	}, nil
}

func (f *fakeAPI) ContainerLogs(_ context.Context, id string, opts container.LogsOptions) (io.ReadCloser, error) {
	f.gotOpts = opts
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	b, ok := f.logs[id]
	if !ok {
		return nil, errors.New("No such container: " + id)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeAPI) Close() error { return nil }

func muxed(t *testing.T, stdout, stderr string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout)); err != nil {
		t.Fatal(err)
	}
	if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIsRunning(t *testing.T) {
	api := &fakeAPI{states: map[string]bool{"web": true, "db": false}}
	p := newWithClient(Config{}, api, logger.Discard())
	ctx := context.Background()
	if !p.IsRunning(ctx, "web") {
		t.Fatalf("web should be running")
	}
	if p.IsRunning(ctx, "db") {
		t.Fatalf("db should be stopped")
	}
	if p.IsRunning(ctx, "ghost") {
		t.Fatalf("unknown container must report stopped")
	}
}

func TestFetchLogsDemux(t *testing.T) {
	api := &fakeAPI{
		states: map[string]bool{"web": false},
		logs:   map[string][]byte{"web": muxed(t, "hello\n", "oops\n")},
	}
	p := newWithClient(Config{ArtifactDir: t.TempDir(), LogTail: 100}, api, logger.Discard())
	a, err := p.FetchLogs(context.Background(), "web")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer func() { _ = a.Remove() }()
	b, _ := os.ReadFile(a.Path)
	if string(b) != "hello\noops\n" {
		t.Fatalf("unexpected demuxed content %q", b)
	}
	if !api.gotOpts.ShowStdout || !api.gotOpts.ShowStderr || api.gotOpts.Tail != "100" {
		t.Fatalf("unexpected log options %+v", api.gotOpts)
	}
}

func TestFetchLogsTTYRaw(t *testing.T) {
	api := &fakeAPI{
		states: map[string]bool{"tty": false},
		tty:    map[string]bool{"tty": true},
		logs:   map[string][]byte{"tty": []byte("raw output\n")},
	}
	p := newWithClient(Config{ArtifactDir: t.TempDir()}, api, logger.Discard())
	a, err := p.FetchLogs(context.Background(), "tty")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer func() { _ = a.Remove() }()
	b, _ := os.ReadFile(a.Path)
	if string(b) != "raw output\n" {
		t.Fatalf("unexpected content %q", b)
	}
	if api.gotOpts.Tail != "" {
		t.Fatalf("tail should be unset when LogTail=0")
	}
}

func TestFetchLogsFailure(t *testing.T) {
	api := &fakeAPI{states: map[string]bool{"web": false}, logsErr: errors.New("daemon gone")}
	p := newWithClient(Config{ArtifactDir: t.TempDir()}, api, logger.Discard())
	a, err := p.FetchLogs(context.Background(), "web")
	var f *probe.Failure
	if !errors.As(err, &f) || f.Op != "logs" || a != nil {
		t.Fatalf("expected logs failure, got a=%v err=%v", a, err)
	}
	if !strings.Contains(err.Error(), "daemon gone") {
		t.Fatalf("cause not reported: %v", err)
	}
}

func TestFetchLogsCorruptStream(t *testing.T) {
	api := &fakeAPI{
		states: map[string]bool{"web": false},
		logs:   map[string][]byte{"web": {0x09, 0, 0, 0, 0, 0, 0, 1, 'x'}},
	}
	dir := t.TempDir()
	p := newWithClient(Config{ArtifactDir: dir}, api, logger.Discard())
	if _, err := p.FetchLogs(context.Background(), "web"); err == nil {
		t.Fatalf("expected demux error for invalid stream header")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("failed fetch must not leave artifacts")
	}
}
