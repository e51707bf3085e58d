package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
	JSON       bool
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	c := &command{flags: flags}

	root := createRootCommand(flags)
	root.AddCommand(
		createServeCommand(c),
		createAddCommand(c),
		createRemoveCommand(c),
		createListCommand(c),
		createStatusCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "crashwatch",
		Short: "Container crash watchdog",
		Long: `Crashwatch polls a set of named containers and sends an alert with the
container logs when one of them stops.

Examples:
  crashwatch serve --config=crashwatch.toml
  crashwatch add web
  crashwatch list --json
  crashwatch status --api-url=http://127.0.0.1:8080/api`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	pf.StringVar(&flags.APIUrl, "api-url", "", "daemon API URL (e.g. http://127.0.0.1:8080/api); empty uses the registry store directly")
	pf.DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	pf.BoolVar(&flags.Insecure, "insecure", false, "skip TLS verification when talking to the daemon")
	return root
}

func createServeCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the watchdog daemon",
		Long: `Run the monitor loop together with the HTTP API and, when enabled,
the Prometheus metrics endpoint. Stops on SIGINT or SIGTERM.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.flags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			return c.Serve(cmd.Context(), path)
		},
	}
}

func createAddCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME",
		Short: "Start watching a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Add(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func createRemoveCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Stop watching a container",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Remove(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func createListCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List watched containers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&c.flags.JSON, "json", false, "print JSON instead of a table")
	return cmd
}

func createStatusCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running state of watched containers",
		Long: `Without --api-url the configured runtime is queried directly.
With --api-url the daemon's last observed states are shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&c.flags.JSON, "json", false, "print JSON instead of a table")
	return cmd
}
