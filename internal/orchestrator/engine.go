// Package orchestrator executes a pipeline task graph on the local machine.
//
// Execution is make-like: a task whose outputs all exist is skipped, a task
// runs once every dependency is done, and a failed task blocks its
// dependents while unrelated branches keep going. The top-level marker is
// therefore absent after any failure.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dyluth/digestiflow-demux/internal/archive"
	"github.com/dyluth/digestiflow-demux/internal/config"
	"github.com/dyluth/digestiflow-demux/internal/graph"
	"github.com/dyluth/digestiflow-demux/internal/layout"
	"github.com/dyluth/digestiflow-demux/internal/reconcile"
	"github.com/dyluth/digestiflow-demux/internal/runner"
	"github.com/dyluth/digestiflow-demux/internal/strategy"
	"github.com/dyluth/digestiflow-demux/internal/tools"
	"github.com/dyluth/digestiflow-demux/internal/tracker"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Observer is notified about task state changes, e.g. the Redis ledger.
type Observer interface {
	RecordTask(ctx context.Context, task string, state string, err error) error
}

// Options configure an Engine. Runner is required.
type Options struct {
	Runner   runner.Runner
	Sink     tracker.Sink // stage transitions; may be nil
	Observer Observer     // task transitions; may be nil
	Logger   *zap.Logger
	RunID    string // generated when empty
}

// Engine runs task graphs for one configuration.
type Engine struct {
	cfg        *config.Config
	planner    layout.Planner
	strategy   strategy.Strategy
	runner     runner.Runner
	tracker    *tracker.Tracker
	reconciler *reconcile.Reconciler
	archiver   *archive.Archiver
	demuxer    *tools.Demuxer
	observer   Observer
	logger     *zap.Logger
	runID      string
	cores      int
}

// NewEngine creates an engine. s may be nil when "seq" is not delivered.
// At least one task runs at a time, whatever cfg.Cores says.
func NewEngine(cfg *config.Config, s strategy.Strategy, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	logger = logger.With(zap.String("run_id", runID), zap.String("flowcell", cfg.FlowcellID()))

	p := layout.New(cfg.OutputDir)
	tr := tracker.New(p, logger, opts.Sink)

	e := &Engine{
		cfg:      cfg,
		planner:  p,
		strategy: s,
		runner:   opts.Runner,
		tracker:  tr,
		reconciler: reconcile.New(p, tr, reconcile.Options{
			UndeterminedBasesmask: cfg.UndeterminedBasesmask,
			Strict:                cfg.StrictInterimMatching,
		}, logger),
		archiver: archive.New(p, cfg.InputDirs, logger),
		observer: opts.Observer,
		logger:   logger,
		runID:    runID,
		cores:    max(1, cfg.Cores),
	}
	if s != nil {
		e.demuxer = tools.NewDemuxer(cfg, p, s, logger)
	}
	return e
}

// RunID returns the identifier stamped on this engine's events.
func (e *Engine) RunID() string { return e.runID }

// Tracker returns the engine's completion tracker.
func (e *Engine) Tracker() *tracker.Tracker { return e.tracker }

// Run executes g with at most cfg.Cores tasks in flight. It returns the
// report and, if any task failed, an error naming the failures. Cancelling
// ctx stops running tools; tasks started afterwards fail at once and their
// dependents are blocked.
func (e *Engine) Run(ctx context.Context, g *graph.Graph) (*Report, error) {
	order := g.TopologicalOrder()
	report := newReport(e.runID, order)

	e.logger.Info("run_started",
		zap.Int("tasks", len(order)),
		zap.Int("cores", e.cores))
	start := time.Now()

	remaining := make(map[string]int, len(order))
	var ready []string
	for _, name := range order {
		task, _ := g.Task(name)
		remaining[name] = len(task.Deps)
		if len(task.Deps) == 0 {
			ready = append(ready, name)
		}
	}

	results := make(chan TaskResult, len(order))
	var eg errgroup.Group
	eg.SetLimit(e.cores)
	inflight := 0

	for {
		for _, name := range ready {
			task, _ := g.Task(name)
			report.Results[name].State = TaskRunning
			inflight++
			eg.Go(func() error {
				results <- e.execute(ctx, task)
				return nil
			})
		}
		ready = nil

		if inflight == 0 {
			break
		}

		res := <-results
		inflight--
		*report.Results[res.Name] = res
		e.observe(ctx, res)

		if !res.State.Done() {
			e.block(ctx, g, report, res.Name)
			continue
		}
		for _, child := range g.Dependents(res.Name) {
			remaining[child]--
			if remaining[child] == 0 && report.Results[child].State == TaskPending {
				ready = append(ready, child)
			}
		}
	}
	_ = eg.Wait()

	failed := report.Failed()
	e.logger.Info("run_finished",
		zap.Int("succeeded", report.Count(TaskSucceeded)),
		zap.Int("skipped", report.Count(TaskSkipped)),
		zap.Int("failed", len(failed)),
		zap.Int("blocked", report.Count(TaskBlocked)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))

	if len(failed) > 0 {
		first := report.Results[failed[0]].Err
		return report, fmt.Errorf("%d task(s) failed (%s): %w", len(failed), strings.Join(failed, ", "), first)
	}
	return report, nil
}

// block marks every pending transitive dependent of name as blocked.
func (e *Engine) block(ctx context.Context, g *graph.Graph, report *Report, name string) {
	for _, child := range g.Dependents(name) {
		res := report.Results[child]
		if res.State != TaskPending {
			continue
		}
		res.State = TaskBlocked
		e.logger.Warn("task_blocked", zap.String("task", child), zap.String("failed_dependency", name))
		e.observe(ctx, *res)
		e.block(ctx, g, report, child)
	}
}

// execute runs one task and reports its result. It never panics on tool
// failure; the error is carried in the result.
func (e *Engine) execute(ctx context.Context, task graph.Task) TaskResult {
	res := TaskResult{Name: task.Name}
	start := time.Now()

	if err := ctx.Err(); err != nil {
		res.State, res.Err = TaskFailed, err
		return res
	}

	if upToDate(task) {
		res.State = TaskSkipped
		e.logger.Debug("task_skipped", zap.String("task", task.Name), zap.String("kind", string(task.Kind)))
		return res
	}

	e.logger.Info("task_started", zap.String("task", task.Name), zap.String("kind", string(task.Kind)))

	err := e.checkInputs(task)
	if err == nil {
		err = e.dispatch(ctx, task)
	}
	if err == nil {
		if missing := tracker.Missing(task.Outputs); len(missing) > 0 {
			err = fmt.Errorf("%s did not produce %s", task.Name, strings.Join(missing, ", "))
		}
	}

	res.Duration = time.Since(start)
	if err != nil {
		res.State, res.Err = TaskFailed, err
		e.logger.Error("task_failed",
			zap.String("task", task.Name),
			zap.String("kind", string(task.Kind)),
			zap.Error(err))
		return res
	}

	res.State = TaskSucceeded
	e.logger.Info("task_succeeded",
		zap.String("task", task.Name),
		zap.Int64("duration_ms", res.Duration.Milliseconds()))
	return res
}

// checkInputs fails non-marker tasks whose declared inputs are absent.
// Marker tasks check their inputs through the tracker.
func (e *Engine) checkInputs(task graph.Task) error {
	if task.Kind == graph.KindMarker {
		return nil
	}
	if missing := tracker.Missing(task.Inputs); len(missing) > 0 {
		return fmt.Errorf("%w: %s", tracker.ErrInputsMissing, strings.Join(missing, ", "))
	}
	return nil
}

func (e *Engine) observe(ctx context.Context, res TaskResult) {
	if e.observer == nil {
		return
	}
	if err := e.observer.RecordTask(ctx, res.Name, string(res.State), res.Err); err != nil {
		e.logger.Warn("observer_failed", zap.String("task", res.Name), zap.Error(err))
	}
}

func upToDate(task graph.Task) bool {
	if len(task.Outputs) == 0 {
		return false
	}
	for _, out := range task.Outputs {
		if _, err := os.Stat(out); err != nil {
			return false
		}
	}
	return true
}
