// Package graph turns a flowcell configuration into the task graph of one
// pipeline run. The node set depends on the configuration: the strategy
// decides the demux fan-out and the delivery types decide which branches
// exist at all.
package graph

import (
	"sort"

	"github.com/dyluth/digestiflow-demux/internal/layout"
	"github.com/dyluth/digestiflow-demux/internal/strategy"
	"github.com/dyluth/digestiflow-demux/internal/tracker"
)

// Kind selects the action an executor performs for a task.
type Kind string

const (
	KindDemux       Kind = "demux"        // one strategy sub-job
	KindReconcile   Kind = "reconcile"    // interim namespaces -> canonical layout
	KindCollect     Kind = "collect"      // tool output -> canonical layout
	KindFastQC      Kind = "fastqc"       // QC of one canonical FASTQ
	KindMultiQC     Kind = "multiqc"      // QC aggregation
	KindArchiveLane Kind = "archive_lane" // one lane tarball + checksum
	KindMarker      Kind = "marker"       // stage marker
)

// Task is one node of the graph. Inputs must exist before the task runs;
// when every output already exists the task is up to date.
type Task struct {
	Name    string
	Kind    Kind
	Deps    []string
	Inputs  []string
	Outputs []string

	SubJob strategy.SubJob // KindDemux
	Lane   int             // KindArchiveLane
	Slot   layout.Slot     // KindFastQC
	Stage  tracker.Stage   // KindMarker
}

// Graph is an immutable, validated DAG of tasks.
type Graph struct {
	tasks      map[string]Task
	order      []string // topological, ties broken by name
	dependents map[string][]string
	depth      map[string]int
}

// New validates tasks and builds the graph. It rejects empty or duplicate
// names, unknown or duplicate dependencies, self-loops and cycles.
func New(tasks []Task) (*Graph, error) {
	if len(tasks) == 0 {
		return nil, invalidf("no tasks")
	}

	g := &Graph{
		tasks:      make(map[string]Task, len(tasks)),
		dependents: make(map[string][]string, len(tasks)),
		depth:      make(map[string]int, len(tasks)),
	}
	for _, t := range tasks {
		if t.Name == "" {
			return nil, invalidf("task name is required")
		}
		if _, exists := g.tasks[t.Name]; exists {
			return nil, invalidf("duplicate task name: %q", t.Name)
		}
		t.Deps = append([]string(nil), t.Deps...)
		g.tasks[t.Name] = t
	}

	for _, t := range tasks {
		seen := make(map[string]bool, len(t.Deps))
		for _, dep := range t.Deps {
			if dep == t.Name {
				return nil, invalidf("self-loop: %q", t.Name)
			}
			if _, ok := g.tasks[dep]; !ok {
				return nil, invalidf("task %q depends on unknown task %q", t.Name, dep)
			}
			if seen[dep] {
				return nil, invalidf("task %q lists dependency %q twice", t.Name, dep)
			}
			seen[dep] = true
			g.dependents[dep] = append(g.dependents[dep], t.Name)
		}
	}
	for name := range g.dependents {
		sort.Strings(g.dependents[name])
	}

	g.order = g.topoOrder()
	if len(g.order) != len(g.tasks) {
		return nil, cycleError(g.findCycle())
	}

	for _, name := range g.order {
		d := 0
		for _, dep := range g.tasks[name].Deps {
			if g.depth[dep]+1 > d {
				d = g.depth[dep] + 1
			}
		}
		g.depth[name] = d
	}

	return g, nil
}

// topoOrder runs Kahn's algorithm, always taking the smallest ready name.
// Nodes on a cycle are left out.
func (g *Graph) topoOrder() []string {
	indeg := make(map[string]int, len(g.tasks))
	var ready []string
	for name, t := range g.tasks {
		indeg[name] = len(t.Deps)
		if len(t.Deps) == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(g.tasks))
	for len(ready) > 0 {
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, child := range g.dependents[name] {
			indeg[child]--
			if indeg[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	return order
}

// findCycle returns one cycle path, deterministically.
func (g *Graph) findCycle() []string {
	names := make([]string, 0, len(g.tasks))
	for name := range g.tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(names))
	var stack []string
	var cycle []string

	var visit func(string) bool
	visit = func(name string) bool {
		state[name] = active
		stack = append(stack, name)
		deps := append([]string(nil), g.tasks[name].Deps...)
		sort.Strings(deps)
		for _, dep := range deps {
			switch state[dep] {
			case active:
				for i, n := range stack {
					if n == dep {
						cycle = append(append([]string(nil), stack[i:]...), dep)
						return true
					}
				}
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return false
	}

	for _, name := range names {
		if state[name] == unvisited && visit(name) {
			return cycle
		}
	}
	return nil
}

// Task returns a task by name.
func (g *Graph) Task(name string) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.tasks) }

// TopologicalOrder returns task names with every dependency before its
// dependents.
func (g *Graph) TopologicalOrder() []string {
	return append([]string(nil), g.order...)
}

// Tasks returns the tasks in topological order.
func (g *Graph) Tasks() []Task {
	out := make([]Task, len(g.order))
	for i, name := range g.order {
		out[i] = g.tasks[name]
	}
	return out
}

// Dependents returns the tasks that directly depend on name, sorted.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// Depth returns the length of the longest dependency chain ending at name.
func (g *Graph) Depth(name string) (int, bool) {
	d, ok := g.depth[name]
	return d, ok
}

// Prune returns the subgraph of target and everything it transitively
// depends on.
func (g *Graph) Prune(target string) (*Graph, error) {
	if _, ok := g.tasks[target]; !ok {
		return nil, invalidf("unknown target %q", target)
	}

	keep := make(map[string]bool)
	queue := []string{target}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if keep[name] {
			continue
		}
		keep[name] = true
		queue = append(queue, g.tasks[name].Deps...)
	}

	tasks := make([]Task, 0, len(keep))
	for _, name := range g.order {
		if keep[name] {
			tasks = append(tasks, g.tasks[name])
		}
	}
	return New(tasks)
}
