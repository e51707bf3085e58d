package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/crashwatch"
	"github.com/loykin/crashwatch/internal/registry"
	"github.com/loykin/crashwatch/pkg/client"
)

// command executes CLI intents either against the registry store named in
// the config or, with --api-url, against a running daemon.
type command struct {
	flags *GlobalFlags
}

func (c *command) loadConfig(path string) (*crashwatch.Config, error) {
	cfg, err := crashwatch.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

func (c *command) apiClient() (*client.Client, error) {
	cfg := client.DefaultConfig()
	cfg.BaseURL = c.flags.APIUrl
	cfg.Timeout = c.flags.APITimeout
	cfg.Insecure = c.flags.Insecure
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return client.New(cfg)
}

func (c *command) withRegistry(fn func(*registry.Registry) error) error {
	cfg, err := c.loadConfig(c.flags.ConfigPath)
	if err != nil {
		return err
	}
	reg, err := crashwatch.OpenRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()
	return fn(reg)
}

func (c *command) Serve(ctx context.Context, path string) error {
	cfg, err := c.loadConfig(path)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := crashwatch.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	return w.Run(ctx)
}

func (c *command) Add(ctx context.Context, out io.Writer, name string) error {
	if c.flags.APIUrl != "" {
		api, err := c.apiClient()
		if err != nil {
			return err
		}
		res, err := api.Add(ctx, name)
		if err != nil {
			return err
		}
		printAdded(out, res.Name, res.Added)
		return nil
	}
	return c.withRegistry(func(reg *registry.Registry) error {
		added, err := reg.Add(ctx, name)
		if err != nil {
			return err
		}
		n, _ := registry.Normalize(name)
		printAdded(out, n, added)
		return nil
	})
}

func (c *command) Remove(ctx context.Context, out io.Writer, name string) error {
	if c.flags.APIUrl != "" {
		api, err := c.apiClient()
		if err != nil {
			return err
		}
		res, err := api.Remove(ctx, name)
		if err != nil {
			return err
		}
		printRemoved(out, res.Name, res.Removed)
		return nil
	}
	return c.withRegistry(func(reg *registry.Registry) error {
		removed, err := reg.Remove(ctx, name)
		if err != nil {
			return err
		}
		printRemoved(out, name, removed)
		return nil
	})
}

func (c *command) List(ctx context.Context, out io.Writer) error {
	var names []string
	if c.flags.APIUrl != "" {
		api, err := c.apiClient()
		if err != nil {
			return err
		}
		if names, err = api.List(ctx); err != nil {
			return err
		}
	} else {
		err := c.withRegistry(func(reg *registry.Registry) error {
			var err error
			names, err = reg.List(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}
	if c.flags.JSON {
		return printJSON(out, client.WorkloadsResponse{Workloads: names})
	}
	return printNames(out, names)
}

func (c *command) Status(ctx context.Context, out io.Writer) error {
	var rows []statusRow
	var err error
	if c.flags.APIUrl != "" {
		rows, err = c.statusViaAPI(ctx)
	} else {
		rows, err = c.statusLocally(ctx)
	}
	if err != nil {
		return err
	}
	if c.flags.JSON {
		return printJSON(out, rows)
	}
	return printStatus(out, rows)
}

func (c *command) statusViaAPI(ctx context.Context) ([]statusRow, error) {
	api, err := c.apiClient()
	if err != nil {
		return nil, err
	}
	names, err := api.List(ctx)
	if err != nil {
		return nil, err
	}
	st, err := api.States(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]statusRow, 0, len(names))
	for _, n := range names {
		row := statusRow{Name: n, State: stateUnknown}
		if running, ok := st.States[n]; ok {
			row.State = stateOf(running)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// statusLocally probes the runtime once per registered name.
func (c *command) statusLocally(ctx context.Context) ([]statusRow, error) {
	cfg, err := c.loadConfig(c.flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	reg, err := crashwatch.OpenRegistry(cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reg.Close() }()
	names, err := reg.List(ctx)
	if err != nil {
		return nil, err
	}
	p, err := crashwatch.NewProbe(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return nil, err
	}
	if cl, ok := p.(io.Closer); ok {
		defer func() { _ = cl.Close() }()
	}
	rows := make([]statusRow, 0, len(names))
	for _, n := range names {
		rows = append(rows, statusRow{Name: n, State: stateOf(p.IsRunning(ctx, n))})
	}
	return rows, nil
}
