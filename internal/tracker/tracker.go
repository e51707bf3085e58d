package tracker

import "sync"

// Transition classifies one observation against the previous state.
type Transition int

const (
	// None means the state did not change.
	None Transition = iota
	// Alert is a falling edge: running -> stopped.
	Alert
	// Recovery is a rising edge: stopped -> running. It is never notified.
	Recovery
)

func (t Transition) String() string {
	switch t {
	case Alert:
		return "alert"
	case Recovery:
		return "recovery"
	default:
		return "none"
	}
}

// Tracker remembers the last observed run state per workload name and
// reports edges. The first observation of a name only seeds its state, so a
// workload that is already down when it is first polled does not alert.
// Entries are never purged by Observe. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	states map[string]bool
}

func New() *Tracker { return &Tracker{states: make(map[string]bool)} }

// Observe records the running state for name and returns the edge it forms
// with the previous observation.
func (t *Tracker) Observe(name string, running bool) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	was, seen := t.states[name]
	t.states[name] = running
	switch {
	case !seen:
		return None
	case was && !running:
		return Alert
	case !was && running:
		return Recovery
	default:
		return None
	}
}

// State returns the last observed state and whether name was ever observed.
func (t *Tracker) State(name string) (running bool, seen bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	running, seen = t.states[name]
	return running, seen
}

// Snapshot returns a copy of all tracked states.
func (t *Tracker) Snapshot() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]bool, len(t.states))
	for k, v := range t.states {
		out[k] = v
	}
	return out
}

