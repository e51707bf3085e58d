package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	ObserveCycle(0.25)
	SetTracked(3)
	ObserveCheck("web", true)
	ObserveCheck("db", false)
	IncAlert("db")
	IncRecovery("db")
	IncLogsFailure()
	IncNotifyFailure("send_text")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"crashwatch_monitor_cycles_total":           false,
		"crashwatch_monitor_cycle_duration_seconds": false,
		"crashwatch_monitor_tracked_workloads":      false,
		"crashwatch_probe_checks_total":             false,
		"crashwatch_workload_alerts_total":          false,
		"crashwatch_workload_recoveries_total":      false,
		"crashwatch_workload_running":               false,
		"crashwatch_logs_collect_failures_total":    false,
		"crashwatch_notify_failures_total":          false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
	if v := testutil.ToFloat64(workloadRunning.WithLabelValues("db")); v != 0 {
		t.Fatalf("db running gauge = %v, want 0", v)
	}
}

func TestForgetWorkload(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.NewRegistry()); err != nil {
		t.Fatal(err)
	}
	ObserveCheck("gone", true)
	ForgetWorkload("gone")
	if workloadRunning.DeleteLabelValues("gone") {
		t.Fatalf("series for forgotten workload still present")
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	ObserveCycle(0.1)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "crashwatch_monitor_cycles_total") {
		t.Fatalf("metrics output missing cycles_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentIncrements(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ObserveCheck("c", i%2 == 0)
			IncAlert("c")
			IncRecovery("c")
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// no-ops, must not panic
	ObserveCycle(1)
	SetTracked(5)
	ObserveCheck("test", true)
	IncAlert("test")
	IncRecovery("test")
	IncLogsFailure()
	IncNotifyFailure("send_file")
	ForgetWorkload("test")
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
	if regOK.Load() {
		t.Fatalf("failed registration must leave helpers disabled")
	}
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}

func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
