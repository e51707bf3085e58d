package registry

import "fmt"

// ValidationError reports an unusable workload name.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid workload name %q: %s", e.Name, e.Reason)
}

// StorageError reports a failure of the durable store behind the registry.
type StorageError struct {
	Op  string // load | save
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
