// Package tracker implements stage completion markers. A stage is Complete
// exactly when its marker file exists; the marker content is never read.
// Re-running after a manual edit of a stage's outputs is therefore not
// detected: only marker existence is consulted.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dyluth/digestiflow-demux/internal/layout"
	"go.uber.org/zap"
)

// Stage names a pipeline stage with its own marker.
type Stage string

const (
	StageDemux   Stage = "demux"
	StageQC      Stage = "qc"
	StageArchive Stage = "archive"
	StageFinal   Stage = "final"
)

// Stages lists every stage in reporting order.
var Stages = []Stage{StageDemux, StageQC, StageArchive, StageFinal}

// State is Pending (marker absent) or Complete (marker present).
type State string

const (
	Pending  State = "Pending"
	Complete State = "Complete"
)

// ErrInputsMissing is the kind of error returned when a stage cannot
// transition because declared inputs do not exist yet.
var ErrInputsMissing = errors.New("stage inputs missing")

// IncompleteError lists the inputs blocking a transition.
type IncompleteError struct {
	Stage   Stage
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("stage %s: %d input(s) missing: %s", e.Stage, len(e.Missing), strings.Join(e.Missing, ", "))
}

func (e *IncompleteError) Unwrap() error { return ErrInputsMissing }

// Sink observes stage transitions, e.g. the Redis ledger.
type Sink interface {
	RecordStage(ctx context.Context, stage string, markerPath string, inputs []string) error
}

// Tracker creates and inspects stage markers under one output directory.
type Tracker struct {
	planner layout.Planner
	logger  *zap.Logger
	sink    Sink
	now     func() time.Time
}

// New creates a tracker. logger and sink may be nil.
func New(planner layout.Planner, logger *zap.Logger, sink Sink) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{planner: planner, logger: logger, sink: sink, now: time.Now}
}

// MarkerName returns the marker file name of a stage.
func MarkerName(stage Stage) string {
	switch stage {
	case StageDemux:
		return layout.DemuxMarker
	case StageQC:
		return layout.QCMarker
	case StageArchive:
		return layout.TarballsMarker
	default:
		return layout.FinalMarker
	}
}

// MarkerPath returns the absolute marker path of a stage.
func (t *Tracker) MarkerPath(stage Stage) string {
	return t.planner.MarkerPath(MarkerName(stage))
}

// State reports whether the stage's marker exists.
func (t *Tracker) State(stage Stage) State {
	if exists(t.MarkerPath(stage)) {
		return Complete
	}
	return Pending
}

// Complete transitions stage to Complete once every input exists. The marker
// is (re)written empty with a fresh modification time; an existing marker is
// overwritten, never appended to. Missing inputs yield an *IncompleteError
// and leave the stage Pending.
func (t *Tracker) Complete(ctx context.Context, stage Stage, inputs []string) error {
	if missing := Missing(inputs); len(missing) > 0 {
		return &IncompleteError{Stage: stage, Missing: missing}
	}
	if len(inputs) == 0 {
		t.logger.Warn("stage_without_inputs",
			zap.String("stage", string(stage)),
			zap.String("hint", "no delivery type selects any work; check delivery_type"))
	}

	path := t.MarkerPath(stage)
	if err := os.MkdirAll(t.planner.OutputDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return fmt.Errorf("failed to write %s marker: %w", stage, err)
	}
	now := t.now()
	if err := os.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("failed to touch %s marker: %w", stage, err)
	}

	t.logger.Info("stage_complete",
		zap.String("stage", string(stage)),
		zap.String("marker", path),
		zap.Int("inputs", len(inputs)))

	if t.sink != nil {
		if err := t.sink.RecordStage(ctx, string(stage), path, inputs); err != nil {
			// The marker is the source of truth; the ledger is best effort.
			t.logger.Warn("ledger_record_failed", zap.String("stage", string(stage)), zap.Error(err))
		}
	}
	return nil
}

// StageStatus is one row of a status report.
type StageStatus struct {
	Stage      Stage
	State      State
	MarkerPath string
	UpdatedAt  time.Time
}

// Status reports every stage in Stages order.
func (t *Tracker) Status() []StageStatus {
	out := make([]StageStatus, 0, len(Stages))
	for _, stage := range Stages {
		st := StageStatus{Stage: stage, State: Pending, MarkerPath: t.MarkerPath(stage)}
		if info, err := os.Stat(st.MarkerPath); err == nil {
			st.State = Complete
			st.UpdatedAt = info.ModTime()
		}
		out = append(out, st)
	}
	return out
}

// Missing returns the inputs that do not exist, in input order.
func Missing(inputs []string) []string {
	var missing []string
	for _, in := range inputs {
		if !exists(in) {
			missing = append(missing, in)
		}
	}
	return missing
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
