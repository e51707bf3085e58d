package client

import "time"

// AddRequest registers a workload name.
type AddRequest struct {
	Name string `json:"name"`
}

// AddResponse reports the normalized name and whether the set changed.
type AddResponse struct {
	Name  string `json:"name"`
	Added bool   `json:"added"`
}

// RemoveResponse reports whether the name was present.
type RemoveResponse struct {
	Name    string `json:"name"`
	Removed bool   `json:"removed"`
}

// WorkloadsResponse is the body of GET /workloads.
type WorkloadsResponse struct {
	Workloads []string `json:"workloads"`
}

// CycleReport mirrors the daemon's last completed poll cycle.
type CycleReport struct {
	Started      time.Time     `json:"started"`
	Duration     time.Duration `json:"duration"`
	Checked      int           `json:"checked"`
	Alerts       []string      `json:"alerts"`
	Recoveries   []string      `json:"recoveries"`
	NotifyErrors int           `json:"notify_errors"`
}

// StatesResponse is the body of GET /states.
type StatesResponse struct {
	States     map[string]bool `json:"states"`
	LastReport *CycleReport    `json:"last_report,omitempty"`
}

// Event is one recorded alert or recovery.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Workload      string    `json:"workload"`
	OccurredAt    time.Time `json:"occurred_at"`
	LogsCollected bool      `json:"logs_collected"`
	LogBytes      int64     `json:"log_bytes"`
	Detail        string    `json:"detail,omitempty"`
}

// EventsResponse is the body of GET /events.
type EventsResponse struct {
	Events []Event `json:"events"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
