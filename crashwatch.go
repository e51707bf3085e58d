// Package crashwatch wires the registry, runtime probe, notifier and monitor
// loop into a single embeddable watchdog.
package crashwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/crashwatch/internal/config"
	"github.com/loykin/crashwatch/internal/history"
	hfactory "github.com/loykin/crashwatch/internal/history/factory"
	"github.com/loykin/crashwatch/internal/metrics"
	"github.com/loykin/crashwatch/internal/monitor"
	"github.com/loykin/crashwatch/internal/notify"
	"github.com/loykin/crashwatch/internal/notify/telegram"
	"github.com/loykin/crashwatch/internal/notify/webhook"
	"github.com/loykin/crashwatch/internal/probe"
	"github.com/loykin/crashwatch/internal/probe/cli"
	"github.com/loykin/crashwatch/internal/probe/docker"
	"github.com/loykin/crashwatch/internal/registry"
	"github.com/loykin/crashwatch/internal/server"
	"github.com/loykin/crashwatch/internal/store/factory"
	"github.com/loykin/crashwatch/internal/tracker"
)

type Config = config.Config

// Re-exported so embedders can plug their own transports and runtimes.
type (
	Probe       = probe.Probe
	Notifier    = notify.Notifier
	HistorySink = history.Sink
	CycleReport = monitor.CycleReport
)

// LoadConfig reads a TOML config file. An empty path yields the defaults
// with CRASHWATCH_* environment overrides applied.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Watchdog is the process context: registry, tracker, notifier and loop.
type Watchdog struct {
	cfg      *Config
	log      *slog.Logger
	registry *registry.Registry
	tracker  *tracker.Tracker
	probe    probe.Probe
	notifier notify.Notifier
	history  history.Sink
	loop     *monitor.Loop
	closers  []io.Closer
}

type Option func(*Watchdog)

func WithLogger(l *slog.Logger) Option { return func(w *Watchdog) { w.log = l } }

// WithProbe replaces the runtime probe built from [runtime].
func WithProbe(p Probe) Option { return func(w *Watchdog) { w.probe = p } }

// WithNotifier replaces the transport built from [notify]. It is used as-is,
// without the retry wrapper.
func WithNotifier(n Notifier) Option { return func(w *Watchdog) { w.notifier = n } }

// WithHistory replaces the sink built from [history].
func WithHistory(s HistorySink) Option { return func(w *Watchdog) { w.history = s } }

// New builds a Watchdog from cfg. Nothing runs until Run is called.
func New(cfg *Config, opts ...Option) (*Watchdog, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	w := &Watchdog{cfg: cfg, tracker: tracker.New()}
	for _, o := range opts {
		o(w)
	}
	if w.log == nil {
		w.log = cfg.Log.Logger().NewSlogger()
	}

	ok := false
	defer func() {
		if !ok {
			_ = w.Close()
		}
	}()

	reg, err := OpenRegistry(cfg)
	if err != nil {
		return nil, err
	}
	w.registry = reg
	w.closers = append(w.closers, reg)

	if w.probe == nil {
		p, err := NewProbe(cfg, w.log)
		if err != nil {
			return nil, err
		}
		w.probe = p
		if c, isCloser := p.(io.Closer); isCloser {
			w.closers = append(w.closers, c)
		}
	}

	if w.notifier == nil {
		n, err := newNotifier(cfg.Notify, w.log)
		if err != nil {
			return nil, err
		}
		w.notifier = n
	}

	if w.history == nil && cfg.History.DSN != "" {
		s, err := hfactory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("history sink: %w", err)
		}
		w.history = s
		if c, isCloser := s.(io.Closer); isCloser {
			w.closers = append(w.closers, c)
		}
	}

	loop, err := monitor.New(monitor.Config{
		Interval:        cfg.Monitor.Interval,
		Workers:         cfg.Monitor.Workers,
		WorkloadTimeout: cfg.Monitor.WorkloadTimeout,
	}, monitor.Deps{
		Registry: w.registry,
		Probe:    w.probe,
		Tracker:  w.tracker,
		Notifier: w.notifier,
		History:  w.history,
		Logger:   w.log,
	})
	if err != nil {
		return nil, err
	}
	w.loop = loop
	ok = true
	return w, nil
}

// OpenRegistry opens the registry store named by [registry].dsn.
func OpenRegistry(cfg *Config) (*registry.Registry, error) {
	s, err := factory.NewFromDSN(cfg.Registry.DSN)
	if err != nil {
		return nil, fmt.Errorf("registry store: %w", err)
	}
	return registry.New(s), nil
}

// NewProbe builds the runtime probe selected by [runtime].driver.
func NewProbe(cfg *Config, log *slog.Logger) (Probe, error) {
	rc := cfg.Runtime
	switch rc.Driver {
	case "docker":
		p, err := docker.New(docker.Config{
			Host:        rc.Host,
			Timeout:     rc.Timeout,
			ArtifactDir: rc.ArtifactDir,
			LogTail:     rc.LogTail,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("docker client: %w", err)
		}
		return p, nil
	case "cli", "":
		return cli.New(cli.Config{
			Binary:      rc.Binary,
			Timeout:     rc.Timeout,
			ArtifactDir: rc.ArtifactDir,
			LogTail:     rc.LogTail,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown runtime driver %q", rc.Driver)
	}
}

func newNotifier(nc config.NotifyConfig, log *slog.Logger) (notify.Notifier, error) {
	var (
		n   notify.Notifier
		err error
	)
	switch nc.Type {
	case "telegram":
		n, err = telegram.New(telegram.Config{
			Token:   nc.Token,
			ChatID:  nc.Recipient,
			BaseURL: nc.URL,
			Timeout: nc.Timeout,
		}, log)
	case "webhook":
		n, err = webhook.New(webhook.Config{
			URL:       nc.URL,
			Recipient: nc.Recipient,
			Timeout:   nc.Timeout,
		}, log)
	case "log", "":
		return notify.NewLogNotifier(nc.Recipient, log), nil
	default:
		return nil, fmt.Errorf("unknown notify type %q", nc.Type)
	}
	if err != nil {
		return nil, err
	}
	return notify.NewRetrying(n, nc.Retries, nc.RetryInterval, log), nil
}

func (w *Watchdog) Registry() *registry.Registry { return w.registry }
func (w *Watchdog) Tracker() *tracker.Tracker    { return w.tracker }

// RunCycle performs a single poll over the registry.
func (w *Watchdog) RunCycle(ctx context.Context) CycleReport { return w.loop.RunCycle(ctx) }

// Router returns the HTTP control plane bound to this watchdog.
func (w *Watchdog) Router() *server.Router {
	var events history.Reader
	if r, ok := w.history.(history.Reader); ok {
		events = r
	}
	return server.NewRouter(w.registry, w.loop, events, w.cfg.Server.BasePath, w.log)
}

// Run starts the monitor loop plus the API and metrics servers enabled in
// the config. It blocks until ctx is cancelled or one of them fails.
func (w *Watchdog) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, 3)
	running := 0
	start := func(name string, fn func(context.Context) error) {
		running++
		go func() { results <- result{name, fn(ctx)} }()
	}

	if w.cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: w.cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		w.log.Info("metrics listening", "addr", w.cfg.Metrics.Listen)
		start("metrics", func(ctx context.Context) error { return server.Serve(ctx, srv) })
	}
	if w.cfg.Server.Enabled {
		sc := w.cfg.Server
		srv := server.NewServer(sc.Listen, w.Router())
		if sc.CertFile != "" {
			tc, err := server.TLSConfig(sc.CertFile, sc.KeyFile, sc.TLSMinVersion)
			if err != nil {
				return err
			}
			srv.TLSConfig = tc
		}
		w.log.Info("api listening", "addr", sc.Listen, "base_path", sc.BasePath, "tls", srv.TLSConfig != nil)
		start("api", func(ctx context.Context) error { return server.Serve(ctx, srv) })
	}
	start("monitor", w.loop.Run)

	var first error
	for ; running > 0; running-- {
		r := <-results
		if r.err != nil && first == nil {
			first = fmt.Errorf("%s: %w", r.name, r.err)
		}
		cancel()
	}
	return first
}

// Close releases the worker pool and every store, client and sink opened by New.
func (w *Watchdog) Close() error {
	var errs []error
	if w.loop != nil {
		errs = append(errs, w.loop.Close())
		w.loop = nil
	}
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = append(errs, w.closers[i].Close())
	}
	w.closers = nil
	return errors.Join(errs...)
}
