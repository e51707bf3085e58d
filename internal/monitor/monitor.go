package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/loykin/crashwatch/internal/history"
	"github.com/loykin/crashwatch/internal/metrics"
	"github.com/loykin/crashwatch/internal/notify"
	"github.com/loykin/crashwatch/internal/probe"
	"github.com/loykin/crashwatch/internal/tracker"
)

const (
	DefaultInterval        = 10 * time.Second
	DefaultWorkloadTimeout = 60 * time.Second

	// historyTimeout bounds an event write after the workload budget is spent.
	historyTimeout = 5 * time.Second

	alertWithLogs   = "🚨 Container %s is down! Sending logs:"
	alertWithoutLog = "🚨 Container %s is down, but logs could not be collected."
)

// Lister supplies the workload names to check each cycle.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Config controls loop timing and parallelism.
type Config struct {
	Interval        time.Duration
	Workers         int
	WorkloadTimeout time.Duration
}

// Deps are the collaborators the loop drives. History is optional.
type Deps struct {
	Registry Lister
	Probe    probe.Probe
	Tracker  *tracker.Tracker
	Notifier notify.Notifier
	History  history.Sink
	Logger   *slog.Logger
}

// CycleReport summarizes one pass over the registry.
type CycleReport struct {
	Started      time.Time     `json:"started"`
	Duration     time.Duration `json:"duration"`
	Checked      int           `json:"checked"`
	Alerts       []string      `json:"alerts"`
	Recoveries   []string      `json:"recoveries"`
	NotifyErrors int           `json:"notify_errors"`
}

// Loop polls every registered workload and alerts on running->stopped edges.
type Loop struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
	pool *ants.Pool

	mu   sync.RWMutex
	last *CycleReport
	// seen is the previous successful snapshot, used to drop metric series
	// for names that left the registry.
	seen map[string]struct{}
}

func New(cfg Config, deps Deps) (*Loop, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("monitor: interval must be positive, got %s", cfg.Interval)
	}
	if deps.Registry == nil || deps.Probe == nil || deps.Notifier == nil {
		return nil, errors.New("monitor: registry, probe and notifier are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.WorkloadTimeout <= 0 {
		cfg.WorkloadTimeout = DefaultWorkloadTimeout
	}
	if deps.Tracker == nil {
		deps.Tracker = tracker.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	l := &Loop{cfg: cfg, deps: deps, log: deps.Logger.With("component", "monitor")}
	if cfg.Workers > 1 {
		pool, err := ants.NewPool(cfg.Workers, ants.WithPanicHandler(func(p any) {
			l.log.Error("worker panic", "panic", p)
		}))
		if err != nil {
			return nil, fmt.Errorf("monitor: worker pool: %w", err)
		}
		l.pool = pool
	}
	return l, nil
}

// Tracker returns the state tracker the loop updates.
func (l *Loop) Tracker() *tracker.Tracker { return l.deps.Tracker }

// LastReport returns the most recent completed cycle, if any.
func (l *Loop) LastReport() (CycleReport, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.last == nil {
		return CycleReport{}, false
	}
	return *l.last, true
}

// Run executes one cycle immediately and then one per interval until ctx is
// cancelled. It returns nil on shutdown.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("monitor started", "interval", l.cfg.Interval, "workers", l.cfg.Workers)
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()
	for {
		l.RunCycle(ctx)
		select {
		case <-ctx.Done():
			l.log.Info("monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Close releases the worker pool.
func (l *Loop) Close() error {
	if l.pool != nil {
		return l.pool.ReleaseTimeout(5 * time.Second)
	}
	return nil
}

type outcome struct {
	transition   tracker.Transition
	notifyErrors int
}

// RunCycle checks every workload once. All workloads finish before it returns.
func (l *Loop) RunCycle(ctx context.Context) CycleReport {
	start := time.Now()
	names, err := l.deps.Registry.List(ctx)
	if err != nil {
		l.log.Error("registry snapshot failed, skipping cycle", "error", err)
		names = nil
	}
	names = dedupe(names)
	metrics.SetTracked(len(names))
	if err == nil {
		l.forgetDropped(names)
	}

	results := make([]outcome, len(names))
	if l.pool == nil || len(names) < 2 {
		for i, name := range names {
			results[i] = l.handle(ctx, name)
		}
	} else {
		var wg sync.WaitGroup
		for i, name := range names {
			wg.Add(1)
			task := func() {
				defer wg.Done()
				results[i] = l.handle(ctx, name)
			}
			if err := l.pool.Submit(task); err != nil {
				l.log.Warn("worker pool rejected task, running inline", "workload", name, "error", err)
				task()
			}
		}
		wg.Wait()
	}

	rep := CycleReport{Started: start, Checked: len(names), Alerts: []string{}, Recoveries: []string{}}
	for i, o := range results {
		switch o.transition {
		case tracker.Alert:
			rep.Alerts = append(rep.Alerts, names[i])
		case tracker.Recovery:
			rep.Recoveries = append(rep.Recoveries, names[i])
		}
		rep.NotifyErrors += o.notifyErrors
	}
	rep.Duration = time.Since(start)
	metrics.ObserveCycle(rep.Duration.Seconds())

	l.mu.Lock()
	l.last = &rep
	l.mu.Unlock()
	if len(rep.Alerts) > 0 || len(rep.Recoveries) > 0 || rep.NotifyErrors > 0 {
		l.log.Info("cycle complete", "checked", rep.Checked, "alerts", len(rep.Alerts),
			"recoveries", len(rep.Recoveries), "notify_errors", rep.NotifyErrors, "duration", rep.Duration)
	} else {
		l.log.Debug("cycle complete", "checked", rep.Checked, "duration", rep.Duration)
	}
	return rep
}

func (l *Loop) forgetDropped(names []string) {
	cur := make(map[string]struct{}, len(names))
	for _, n := range names {
		cur[n] = struct{}{}
	}
	l.mu.Lock()
	prev := l.seen
	l.seen = cur
	l.mu.Unlock()
	for n := range prev {
		if _, ok := cur[n]; !ok {
			metrics.ForgetWorkload(n)
			l.log.Debug("workload left the registry", "workload", n)
		}
	}
}

func (l *Loop) handle(ctx context.Context, name string) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("workload handler panicked", "workload", name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	wctx, cancel := context.WithTimeout(ctx, l.cfg.WorkloadTimeout)
	defer cancel()

	running := l.deps.Probe.IsRunning(wctx, name)
	metrics.ObserveCheck(name, running)
	o.transition = l.deps.Tracker.Observe(name, running)

	switch o.transition {
	case tracker.Alert:
		l.log.Warn("workload stopped", "workload", name)
		metrics.IncAlert(name)
		var ev history.Event
		o.notifyErrors, ev = l.alert(wctx, name)
		l.record(ctx, ev)
	case tracker.Recovery:
		l.log.Info("workload recovered", "workload", name)
		metrics.IncRecovery(name)
		l.record(ctx, history.NewEvent(history.EventRecovery, name))
	}
	return o
}

// alert collects evidence and notifies. It returns the number of failed sends
// and the history event describing what was collected.
func (l *Loop) alert(ctx context.Context, name string) (failed int, ev history.Event) {
	ev = history.NewEvent(history.EventAlert, name)
	bold := notify.Bold(name)
	art, err := l.deps.Probe.FetchLogs(ctx, name)
	if err != nil {
		l.log.Warn("log collection failed", "workload", name, "error", err)
		metrics.IncLogsFailure()
		ev.Detail = err.Error()
		if err := l.deps.Notifier.SendText(ctx, fmt.Sprintf(alertWithoutLog, bold), notify.FormatMarkdown); err != nil {
			failed += l.notifyFailed(name, err)
		}
		return failed, ev
	}
	defer func() {
		if err := art.Remove(); err != nil {
			l.log.Warn("failed to remove log artifact", "workload", name, "path", art.Path, "error", err)
		}
	}()
	ev.LogsCollected = true
	ev.LogBytes = art.Size

	if err := l.deps.Notifier.SendText(ctx, fmt.Sprintf(alertWithLogs, bold), notify.FormatMarkdown); err != nil {
		failed += l.notifyFailed(name, err)
	}
	if err := l.deps.Notifier.SendFile(ctx, art.Path); err != nil {
		failed += l.notifyFailed(name, err)
	}
	return failed, ev
}

func (l *Loop) notifyFailed(name string, err error) int {
	op := "unknown"
	var f *notify.Failure
	if errors.As(err, &f) {
		op = f.Op
	}
	metrics.IncNotifyFailure(op)
	l.log.Error("notification failed", "workload", name, "op", op, "error", err)
	return 1
}

func (l *Loop) record(ctx context.Context, e history.Event) {
	if l.deps.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	if err := l.deps.History.Send(ctx, e); err != nil {
		l.log.Warn("history sink failed", "workload", e.Workload, "type", e.Type, "error", err)
	}
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
