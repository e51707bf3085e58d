package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

const (
	stateRunning = "running"
	stateStopped = "stopped"
	stateUnknown = "unknown"
)

type statusRow struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

func stateOf(running bool) string {
	if running {
		return stateRunning
	}
	return stateStopped
}

func printAdded(out io.Writer, name string, added bool) {
	if added {
		_, _ = fmt.Fprintf(out, "Watching %s\n", name)
		return
	}
	_, _ = fmt.Fprintf(out, "%s is already watched\n", name)
}

func printRemoved(out io.Writer, name string, removed bool) {
	if removed {
		_, _ = fmt.Fprintf(out, "Stopped watching %s\n", name)
		return
	}
	_, _ = fmt.Fprintf(out, "%s was not watched\n", name)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printNames(out io.Writer, names []string) error {
	if len(names) == 0 {
		_, _ = fmt.Fprintln(out, "No containers are watched")
		return nil
	}
	table := tablewriter.NewWriter(out)
	table.Header("#", "Name")
	for i, n := range names {
		if err := table.Append(fmt.Sprintf("%d", i+1), n); err != nil {
			return err
		}
	}
	return table.Render()
}

func printStatus(out io.Writer, rows []statusRow) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "No containers are watched")
		return nil
	}
	table := tablewriter.NewWriter(out)
	table.Header("Name", "State")
	for _, r := range rows {
		if err := table.Append(r.Name, r.State); err != nil {
			return err
		}
	}
	return table.Render()
}
