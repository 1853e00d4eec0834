package orchestrator

import (
	"context"
	"fmt"

	"github.com/dyluth/digestiflow-demux/internal/graph"
	"github.com/dyluth/digestiflow-demux/internal/layout"
	"github.com/dyluth/digestiflow-demux/internal/tools"
)

// dispatch performs the action of one task.
func (e *Engine) dispatch(ctx context.Context, task graph.Task) error {
	switch task.Kind {
	case graph.KindDemux:
		if e.demuxer == nil {
			return fmt.Errorf("%s: no demux strategy configured", task.Name)
		}
		return e.demuxer.Run(ctx, e.runner, task.SubJob)

	case graph.KindReconcile:
		_, err := e.reconciler.Reconcile(ctx, layout.Slots(e.cfg))
		return err

	case graph.KindCollect:
		if e.strategy == nil {
			return fmt.Errorf("%s: no demux strategy configured", task.Name)
		}
		var dirs []string
		for _, job := range e.strategy.SubJobs() {
			dirs = append(dirs, e.demuxer.OutputDir(job))
		}
		_, err := e.reconciler.Collect(ctx, dirs, layout.Slots(e.cfg))
		return err

	case graph.KindFastQC:
		return e.runner.Run(ctx, tools.FastQCCommand(e.planner, task.Slot))

	case graph.KindMultiQC:
		return e.runner.Run(ctx, tools.MultiQCCommand(e.planner, layout.Slots(e.cfg)))

	case graph.KindArchiveLane:
		_, err := e.archiver.WriteLane(ctx, task.Lane)
		return err

	case graph.KindMarker:
		return e.tracker.Complete(ctx, task.Stage, task.Inputs)
	}
	return fmt.Errorf("%s: unknown task kind %q", task.Name, task.Kind)
}
