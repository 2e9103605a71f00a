// Package action implements spec.md §4.4's Action Engine: the
// per-folder dispatcher for count, mark, fetch, and delete, including
// batching, size-bounded grouping, conditional STORE, vendor-specific
// deletion method resolution, and the cross-action failure barrier.
package action

// Telemetry accumulates one account's per-cycle counters and message
// lists (spec.md §3's Account mutable fields). A fresh Telemetry is
// created per cycle; internal/orchestrate owns its lifetime.
type Telemetry struct {
	Delivered   int
	Undelivered int
	Marked      int
	Trashed     int
	Deleted     int

	Changes []string
	Errors  []string
}

// AddError records a failure's text for the cycle summary. It does not
// itself decide the error's Scope — the cross-action failure barrier
// in delete.go only cares whether Errors is non-empty.
func (t *Telemetry) AddError(err error) {
	if err == nil {
		return
	}
	t.Errors = append(t.Errors, err.Error())
}

func (t *Telemetry) AddChange(msg string) {
	t.Changes = append(t.Changes, msg)
}

// Failed reports whether any prior sub-action recorded an error this
// cycle — the condition the cross-action failure barrier tests.
func (t *Telemetry) Failed() bool {
	return len(t.Errors) > 0
}
