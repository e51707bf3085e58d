package probe

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// Fake is an in-memory Probe driven by scripted status sequences.
// Each IsRunning call for a name consumes the next scripted value; once the
// script is exhausted the last value repeats. Unscripted names are stopped.
type Fake struct {
	mu       sync.Mutex
	status   map[string][]bool
	logs     map[string]string
	logsErr  map[string]error
	dir      string
	checks   map[string]int
	fetches  []string
	artifact []*Artifact
}

func NewFake(dir string) *Fake {
	return &Fake{
		status:  map[string][]bool{},
		logs:    map[string]string{},
		logsErr: map[string]error{},
		checks:  map[string]int{},
		dir:     dir,
	}
}

// Script sets the status sequence returned for name.
func (f *Fake) Script(name string, seq ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[name] = append([]bool(nil), seq...)
}

// SetLogs sets the log body returned by FetchLogs.
func (f *Fake) SetLogs(name, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[name] = body
	delete(f.logsErr, name)
}

// FailLogs makes FetchLogs for name fail with err.
func (f *Fake) FailLogs(name string, err error) {
	if err == nil {
		err = errors.New("logs unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logsErr[name] = err
}

func (f *Fake) IsRunning(_ context.Context, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.checks[name]
	f.checks[name] = i + 1
	seq := f.status[name]
	if len(seq) == 0 {
		return false
	}
	if i >= len(seq) {
		return seq[len(seq)-1]
	}
	return seq[i]
}

func (f *Fake) FetchLogs(_ context.Context, name string) (*Artifact, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, name)
	err := f.logsErr[name]
	body := f.logs[name]
	f.mu.Unlock()
	if err != nil {
		return nil, &Failure{Name: name, Op: "logs", Err: err}
	}
	a, werr := WriteArtifact(f.dir, name, func(w io.Writer) error {
		_, err := io.Copy(w, strings.NewReader(body))
		return err
	})
	if werr != nil {
		return nil, &Failure{Name: name, Op: "logs", Err: werr}
	}
	f.mu.Lock()
	f.artifact = append(f.artifact, a)
	f.mu.Unlock()
	return a, nil
}

// Checks reports how many times IsRunning was called for name.
func (f *Fake) Checks(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks[name]
}

// Fetches returns the names FetchLogs was called with, in call order.
func (f *Fake) Fetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetches...)
}

// Artifacts returns every artifact handed out so far.
func (f *Fake) Artifacts() []*Artifact {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Artifact(nil), f.artifact...)
}
