package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/loykin/crashwatch/internal/logger"
	"github.com/loykin/crashwatch/internal/monitor"
	"github.com/loykin/crashwatch/internal/registry"
	"github.com/loykin/crashwatch/internal/server"
	"github.com/loykin/crashwatch/internal/store"
	"github.com/loykin/crashwatch/internal/tracker"
)

func writeConfig(t *testing.T) (cfgPath, registryPath string) {
	t.Helper()
	dir := t.TempDir()
	registryPath = filepath.Join(dir, "containers.txt")
	cfgPath = filepath.Join(dir, "crashwatch.toml")
	content := `
[registry]
dsn = "` + filepath.ToSlash(registryPath) + `"

[runtime]
driver = "cli"
binary = "false"
timeout = "2s"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, registryPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLocalAddListRemove(t *testing.T) {
	cfg, regPath := writeConfig(t)

	out, err := run(t, "--config", cfg, "add", " web ")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "Watching web") {
		t.Fatalf("unexpected add output %q", out)
	}
	out, _ = run(t, "--config", cfg, "add", "web")
	if !strings.Contains(out, "already watched") {
		t.Fatalf("unexpected second add output %q", out)
	}
	if _, err := run(t, "--config", cfg, "add", "db"); err != nil {
		t.Fatalf("add db: %v", err)
	}
	b, _ := os.ReadFile(regPath)
	if string(b) != "web\ndb\n" {
		t.Fatalf("unexpected registry file %q", b)
	}

	out, err = run(t, "--config", cfg, "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var lr struct {
		Workloads []string `json:"workloads"`
	}
	if err := json.Unmarshal([]byte(out), &lr); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !reflect.DeepEqual(lr.Workloads, []string{"web", "db"}) {
		t.Fatalf("unexpected list %v", lr.Workloads)
	}

	out, err = run(t, "--config", cfg, "list")
	if err != nil {
		t.Fatalf("list table: %v", err)
	}
	if !strings.Contains(out, "web") || !strings.Contains(out, "db") {
		t.Fatalf("table missing names: %q", out)
	}

	out, err = run(t, "--config", cfg, "remove", "web")
	if err != nil || !strings.Contains(out, "Stopped watching web") {
		t.Fatalf("remove: %v %q", err, out)
	}
	out, _ = run(t, "--config", cfg, "remove", "web")
	if !strings.Contains(out, "was not watched") {
		t.Fatalf("unexpected second remove output %q", out)
	}
}

func TestAddEmptyNameFails(t *testing.T) {
	cfg, _ := writeConfig(t)
	if _, err := run(t, "--config", cfg, "add", "  "); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestListEmpty(t *testing.T) {
	cfg, _ := writeConfig(t)
	out, err := run(t, "--config", cfg, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No containers are watched") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLocalStatusProbeFailureIsStopped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires the false binary")
	}
	cfg, _ := writeConfig(t)
	if _, err := run(t, "--config", cfg, "add", "web"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := run(t, "--config", cfg, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var rows []statusRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(rows) != 1 || rows[0].Name != "web" || rows[0].State != stateStopped {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

type daemonStates struct{ tr *tracker.Tracker }

func (d daemonStates) Tracker() *tracker.Tracker { return d.tr }
func (d daemonStates) LastReport() (monitor.CycleReport, bool) {
	return monitor.CycleReport{}, false
}

func TestRemoteCommands(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := registry.New(store.NewMemory())
	tr := tracker.New()
	ts := httptest.NewServer(server.NewRouter(reg, daemonStates{tr}, nil, "/api", logger.Discard()).Handler())
	defer ts.Close()
	api := ts.URL + "/api"

	if _, err := run(t, "--api-url", api, "add", "web"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := run(t, "--api-url", api, "add", "db"); err != nil {
		t.Fatalf("add: %v", err)
	}
	names, _ := reg.List(context.Background())
	if !reflect.DeepEqual(names, []string{"web", "db"}) {
		t.Fatalf("daemon registry not updated: %v", names)
	}

	tr.Observe("web", true)
	out, err := run(t, "--api-url", api, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var rows []statusRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	want := []statusRow{{Name: "web", State: stateRunning}, {Name: "db", State: stateUnknown}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("unexpected rows %+v", rows)
	}

	out, err = run(t, "--api-url", api, "status")
	if err != nil {
		t.Fatalf("status table: %v", err)
	}
	if !strings.Contains(out, "running") || !strings.Contains(out, "unknown") {
		t.Fatalf("table missing states: %q", out)
	}

	if _, err := run(t, "--api-url", api, "remove", "web"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := run(t, "--api-url", api, "add", " "); err == nil {
		t.Fatalf("expected 400 from daemon")
	}
}

func TestServeRejectsBadConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(p, []byte("[monitor]\ninterval = \"0s\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "serve", p); err == nil {
		t.Fatalf("expected config validation error")
	}
}
