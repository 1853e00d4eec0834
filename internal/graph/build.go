package graph

import (
	"fmt"
	"strings"

	"github.com/dyluth/digestiflow-demux/internal/checksum"
	"github.com/dyluth/digestiflow-demux/internal/config"
	"github.com/dyluth/digestiflow-demux/internal/layout"
	"github.com/dyluth/digestiflow-demux/internal/strategy"
	"github.com/dyluth/digestiflow-demux/internal/tracker"
)

// Well-known task names.
const (
	TaskReconcile     = "reconcile"
	TaskCollect       = "collect"
	TaskMultiQC       = "multiqc"
	TaskQCDone        = "stage_qc"
	TaskTarballsDone  = "stage_archive"
	TaskFinal         = "stage_final"
	fastqcTaskPrefix  = "fastqc/"
	archiveTaskPrefix = "archive_lane_"
)

// FastQCTaskName returns the name of the QC task of slot.
func FastQCTaskName(s layout.Slot) string {
	return fastqcTaskPrefix + strings.TrimSuffix(s.String(), ".fastq.gz")
}

// ArchiveTaskName returns the name of the tarball task of lane.
func ArchiveTaskName(lane int) string {
	return fmt.Sprintf("%s%03d", archiveTaskPrefix, lane)
}

// Build returns the task graph for cfg, pruned to the ancestors of the
// top-level marker. s may be nil when "seq" is not delivered.
func Build(cfg *config.Config, s strategy.Strategy, p layout.Planner) (*Graph, error) {
	var tasks []Task
	var finalDeps []string

	if cfg.Delivers(config.DeliverySeq) {
		if s == nil {
			return nil, invalidf("seq delivery requires a demux strategy")
		}
		seq := seqTasks(cfg, s, p)
		tasks = append(tasks, seq...)
		finalDeps = append(finalDeps, demuxTaskName(s), TaskQCDone)
	}

	if cfg.Delivers(config.DeliveryBCL) {
		tasks = append(tasks, bclTasks(cfg, p)...)
		finalDeps = append(finalDeps, TaskTarballsDone)
	}

	tasks = append(tasks, Task{
		Name:    TaskFinal,
		Kind:    KindMarker,
		Stage:   tracker.StageFinal,
		Deps:    finalDeps,
		Inputs:  tracker.FinalInputs(cfg, p),
		Outputs: []string{p.MarkerPath(tracker.MarkerName(tracker.StageFinal))},
	})

	g, err := New(tasks)
	if err != nil {
		return nil, err
	}
	return g.Prune(TaskFinal)
}

func demuxTaskName(s strategy.Strategy) string {
	if s.Kind() == strategy.KindPartitionedMulti {
		return TaskReconcile
	}
	return TaskCollect
}

func seqTasks(cfg *config.Config, s strategy.Strategy, p layout.Planner) []Task {
	var tasks []Task
	slots := layout.Slots(cfg)

	var subJobNames []string
	for _, job := range s.SubJobs() {
		name := job.Name(s.Kind())
		subJobNames = append(subJobNames, name)
		tasks = append(tasks, Task{
			Name:    name,
			Kind:    KindDemux,
			SubJob:  job,
			Outputs: []string{p.SubJobMarker(name)},
		})
	}

	// The reconcile/collect task is the barrier after all sub-jobs. It has
	// no file inputs: a sub-job that produced nothing yields placeholders.
	kind := KindCollect
	if s.Kind() == strategy.KindPartitionedMulti {
		kind = KindReconcile
	}
	demuxName := demuxTaskName(s)
	tasks = append(tasks, Task{
		Name:    demuxName,
		Kind:    kind,
		Deps:    subJobNames,
		Outputs: []string{p.MarkerPath(tracker.MarkerName(tracker.StageDemux))},
	})

	var qcNames, zips []string
	for _, slot := range slots {
		name := FastQCTaskName(slot)
		zip := p.FastQCZip(slot)
		qcNames = append(qcNames, name)
		zips = append(zips, zip)
		tasks = append(tasks, Task{
			Name:    name,
			Kind:    KindFastQC,
			Slot:    slot,
			Deps:    []string{demuxName},
			Inputs:  []string{p.CanonicalPath(slot)},
			Outputs: []string{zip},
		})
	}

	tasks = append(tasks,
		Task{
			Name:    TaskMultiQC,
			Kind:    KindMultiQC,
			Deps:    qcNames,
			Inputs:  zips,
			Outputs: tracker.QCInputs(p),
		},
		Task{
			Name:    TaskQCDone,
			Kind:    KindMarker,
			Stage:   tracker.StageQC,
			Deps:    []string{TaskMultiQC},
			Inputs:  tracker.QCInputs(p),
			Outputs: []string{p.MarkerPath(tracker.MarkerName(tracker.StageQC))},
		},
	)
	return tasks
}

func bclTasks(cfg *config.Config, p layout.Planner) []Task {
	var tasks []Task
	var laneNames []string
	for lane := 1; lane <= cfg.Flowcell.NumLanes; lane++ {
		name := ArchiveTaskName(lane)
		laneNames = append(laneNames, name)
		tar := p.TarballPath(lane)
		tasks = append(tasks, Task{
			Name:    name,
			Kind:    KindArchiveLane,
			Lane:    lane,
			Outputs: []string{tar, checksum.Path(tar)},
		})
	}
	tasks = append(tasks, Task{
		Name:    TaskTarballsDone,
		Kind:    KindMarker,
		Stage:   tracker.StageArchive,
		Deps:    laneNames,
		Inputs:  tracker.ArchiveInputs(cfg, p),
		Outputs: []string{p.MarkerPath(tracker.MarkerName(tracker.StageArchive))},
	})
	return tasks
}
