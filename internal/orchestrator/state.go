package orchestrator

import (
	"sort"
	"time"
)

// TaskState is the execution state of one task within a run.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskSkipped   TaskState = "skipped" // outputs already present
	TaskFailed    TaskState = "failed"
	TaskBlocked   TaskState = "blocked" // a dependency failed
)

// Done reports whether the task's outputs can be relied on by dependents.
func (s TaskState) Done() bool {
	return s == TaskSucceeded || s == TaskSkipped
}

// TaskResult is the outcome of one task.
type TaskResult struct {
	Name     string
	State    TaskState
	Err      error
	Duration time.Duration
}

// Report collects the results of a run.
type Report struct {
	RunID   string
	Results map[string]*TaskResult
	order   []string
}

func newReport(runID string, order []string) *Report {
	r := &Report{RunID: runID, Results: make(map[string]*TaskResult, len(order)), order: order}
	for _, name := range order {
		r.Results[name] = &TaskResult{Name: name, State: TaskPending}
	}
	return r
}

// Ordered returns the results in topological order.
func (r *Report) Ordered() []*TaskResult {
	out := make([]*TaskResult, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.Results[name])
	}
	return out
}

// Count returns how many tasks ended in state.
func (r *Report) Count(state TaskState) int {
	n := 0
	for _, res := range r.Results {
		if res.State == state {
			n++
		}
	}
	return n
}

// Failed returns the names of failed tasks, sorted.
func (r *Report) Failed() []string {
	var names []string
	for name, res := range r.Results {
		if res.State == TaskFailed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
