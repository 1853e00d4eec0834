// Package reconcile maps demultiplexer output onto the canonical slot layout.
//
// For the partitioned strategy every sub-job leaves prefix-tagged files in
// its own basesmask namespace; the Reconciler moves exactly one of them to
// each canonical slot. Slots nobody produced get a placeholder FASTQ so that
// every canonical file exists once reconciliation finishes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dyluth/digestiflow-demux/internal/checksum"
	"github.com/dyluth/digestiflow-demux/internal/fastq"
	"github.com/dyluth/digestiflow-demux/internal/layout"
	"github.com/dyluth/digestiflow-demux/internal/tracker"
	"go.uber.org/zap"
)

// ErrAmbiguousInterim is returned in strict mode when more than one interim
// file matches a sample slot.
var ErrAmbiguousInterim = errors.New("ambiguous interim artifacts")

// Outcome describes how a slot was satisfied.
type Outcome string

const (
	OutcomeRenamed     Outcome = "renamed"     // interim/tool output moved into place
	OutcomePlaceholder Outcome = "placeholder" // no producer; placeholder synthesized
	OutcomeExisting    Outcome = "existing"    // canonical file already present
)

// Resolution records the decision for one slot.
type Resolution struct {
	Slot       layout.Slot
	Outcome    Outcome
	Source     string // moved file, relative to the searched root
	Candidates int    // number of matching files considered
}

// Completer transitions a stage once its inputs exist.
type Completer interface {
	Complete(ctx context.Context, stage tracker.Stage, inputs []string) error
}

// Options tune interim matching.
type Options struct {
	// UndeterminedBasesmask is the "keep undetermined" designator: its
	// namespace wins for undetermined-read slots.
	UndeterminedBasesmask string
	// Strict turns multiple matches for a sample slot into ErrAmbiguousInterim
	// instead of accepting the first one.
	Strict bool
}

// Reconciler resolves slots under one output directory.
type Reconciler struct {
	planner   layout.Planner
	completer Completer
	opts      Options
	logger    *zap.Logger
}

// New creates a Reconciler. completer receives the demux stage transition;
// logger may be nil.
func New(planner layout.Planner, completer Completer, opts Options, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{planner: planner, completer: completer, opts: opts, logger: logger}
}

// Reconcile resolves every slot from the basesmask namespaces, removes the
// interim tree with the copies that were not chosen, checksums the canonical
// files and completes the demux stage. It must only run after every
// partitioned sub-job has finished; a sub-job that never ran simply
// contributes no matches.
func (r *Reconciler) Reconcile(ctx context.Context, slots []layout.Slot) ([]Resolution, error) {
	fsys := os.DirFS(r.planner.OutputDir())

	resolutions := make([]Resolution, 0, len(slots))
	for _, slot := range slots {
		if err := ctx.Err(); err != nil {
			return resolutions, err
		}
		res, err := r.resolveInterim(fsys, slot)
		if err != nil {
			return resolutions, err
		}
		resolutions = append(resolutions, res)
	}

	if err := r.removeInterim(fsys); err != nil {
		return resolutions, err
	}
	return resolutions, r.finish(ctx, slots)
}

// Collect moves output of the non-partitioned strategies into place: each
// slot's file is looked up by name anywhere below the given tool
// directories. Unmatched slots get placeholders, like Reconcile.
func (r *Reconciler) Collect(ctx context.Context, toolDirs []string, slots []layout.Slot) ([]Resolution, error) {
	resolutions := make([]Resolution, 0, len(slots))
	for _, slot := range slots {
		if err := ctx.Err(); err != nil {
			return resolutions, err
		}
		res, err := r.collectSlot(toolDirs, slot)
		if err != nil {
			return resolutions, err
		}
		resolutions = append(resolutions, res)
	}

	return resolutions, r.finish(ctx, slots)
}

func (r *Reconciler) resolveInterim(fsys fs.FS, slot layout.Slot) (Resolution, error) {
	res := Resolution{Slot: slot}
	canonical := r.planner.CanonicalPath(slot)
	if exists(canonical) {
		res.Outcome = OutcomeExisting
		return res, nil
	}

	matches, err := glob(fsys, layout.InterimGlob(slot))
	if err != nil {
		return res, err
	}
	res.Candidates = len(matches)

	chosen, err := r.choose(slot, matches)
	if err != nil {
		return res, err
	}
	if chosen == "" {
		return r.placeholder(slot)
	}

	if err := move(filepath.Join(r.planner.OutputDir(), filepath.FromSlash(chosen)), canonical); err != nil {
		return res, err
	}
	res.Outcome = OutcomeRenamed
	res.Source = chosen
	r.logger.Info("slot_reconciled",
		zap.String("slot", slot.String()),
		zap.String("source", chosen),
		zap.Int("candidates", len(matches)))
	return res, nil
}

// choose applies the precedence rules. Undetermined slots prefer the
// designated namespace; everything else takes the first match in sorted
// order. An empty result means no match.
func (r *Reconciler) choose(slot layout.Slot, matches []string) (string, error) {
	if len(matches) == 0 {
		return "", nil
	}

	if slot.Undetermined() {
		if r.opts.UndeterminedBasesmask != "" {
			for _, m := range matches {
				if token, ok := layout.InterimToken(m); ok && token == r.opts.UndeterminedBasesmask {
					return m, nil
				}
			}
		}
		// Every sub-job emits undetermined reads, so several matches are
		// normal here and never an error.
		return matches[0], nil
	}

	if len(matches) > 1 {
		if r.opts.Strict {
			return "", fmt.Errorf("%w: slot %s matched %v", ErrAmbiguousInterim, slot, matches)
		}
		r.logger.Warn("interim_ambiguous",
			zap.String("slot", slot.String()),
			zap.Strings("matches", matches),
			zap.String("chosen", matches[0]))
	}
	return matches[0], nil
}

func (r *Reconciler) collectSlot(toolDirs []string, slot layout.Slot) (Resolution, error) {
	res := Resolution{Slot: slot}
	canonical := r.planner.CanonicalPath(slot)
	if exists(canonical) {
		res.Outcome = OutcomeExisting
		return res, nil
	}

	pattern := "**/" + layout.EscapeMeta(slot.Filename)
	for _, dir := range toolDirs {
		matches, err := glob(os.DirFS(dir), pattern)
		if err != nil {
			return res, err
		}
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			r.logger.Warn("tool_output_ambiguous",
				zap.String("slot", slot.String()),
				zap.Strings("matches", matches))
		}
		if err := move(filepath.Join(dir, filepath.FromSlash(matches[0])), canonical); err != nil {
			return res, err
		}
		res.Outcome = OutcomeRenamed
		res.Source = filepath.Join(dir, matches[0])
		res.Candidates = len(matches)
		r.logger.Info("slot_collected", zap.String("slot", slot.String()), zap.String("source", res.Source))
		return res, nil
	}

	return r.placeholder(slot)
}

// removeInterim deletes the interim namespaces once every slot is resolved.
// Whatever is still there lost to another namespace.
func (r *Reconciler) removeInterim(fsys fs.FS) error {
	leftovers, err := glob(fsys, layout.InterimRoot+"/**/*"+layout.InterimSeparator+"*")
	if err != nil {
		return err
	}
	for _, m := range leftovers {
		r.logger.Debug("interim_discarded", zap.String("file", m))
	}
	if err := os.RemoveAll(r.planner.InterimRootDir()); err != nil {
		return fmt.Errorf("failed to remove interim artifacts: %w", err)
	}
	if len(leftovers) > 0 {
		r.logger.Info("interim_removed", zap.Int("discarded", len(leftovers)))
	}
	return nil
}

func (r *Reconciler) placeholder(slot layout.Slot) (Resolution, error) {
	canonical := r.planner.CanonicalPath(slot)
	if err := fastq.CreatePlaceholder(canonical); err != nil {
		return Resolution{Slot: slot}, fmt.Errorf("slot %s: %w", slot, err)
	}
	r.logger.Info("placeholder_synthesized", zap.String("slot", slot.String()), zap.String("path", canonical))
	return Resolution{Slot: slot, Outcome: OutcomePlaceholder}, nil
}

// finish checksums every canonical file that has no checksum yet and
// completes the demux stage.
func (r *Reconciler) finish(ctx context.Context, slots []layout.Slot) error {
	for _, slot := range slots {
		path := r.planner.CanonicalPath(slot)
		if exists(checksum.Path(path)) {
			continue
		}
		if _, err := checksum.Write(path); err != nil {
			return fmt.Errorf("slot %s: %w", slot, err)
		}
	}
	if r.completer == nil {
		return nil
	}
	return r.completer.Complete(ctx, tracker.StageDemux, tracker.DemuxInputs(r.planner, slots))
}

func glob(fsys fs.FS, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to match %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
