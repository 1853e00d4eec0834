// Package tools builds the external tool invocations of each strategy and
// brings their output into the layout the reconciler expects.
package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dyluth/digestiflow-demux/internal/config"
	"github.com/dyluth/digestiflow-demux/internal/layout"
	"github.com/dyluth/digestiflow-demux/internal/runner"
	"github.com/dyluth/digestiflow-demux/internal/samplesheet"
	"github.com/dyluth/digestiflow-demux/internal/strategy"
	"go.uber.org/zap"
)

// Executables invoked by the demux sub-jobs.
const (
	ConfigureBclToFastq = "configureBclToFastq.pl"
	Make                = "make"
	Bcl2fastq           = "bcl2fastq"
	Picard              = "picard"
)

// Demuxer runs demux sub-jobs of one strategy.
type Demuxer struct {
	cfg     *config.Config
	planner layout.Planner
	kind    strategy.Kind
	runDir  string
	logger  *zap.Logger
}

// NewDemuxer creates a Demuxer for the given strategy. The first input
// directory is the run folder; logger may be nil.
func NewDemuxer(cfg *config.Config, planner layout.Planner, s strategy.Strategy, logger *zap.Logger) *Demuxer {
	if logger == nil {
		logger = zap.NewNop()
	}
	runDir := ""
	if len(cfg.InputDirs) > 0 {
		runDir = cfg.InputDirs[0]
	}
	return &Demuxer{cfg: cfg, planner: planner, kind: s.Kind(), runDir: runDir, logger: logger}
}

// WorkDir returns the scratch directory of a sub-job.
func (d *Demuxer) WorkDir(job strategy.SubJob) string {
	return d.planner.WorkDir(job.Name(d.kind))
}

// OutputDir returns where the sub-job's tool writes FASTQ files.
func (d *Demuxer) OutputDir(job strategy.SubJob) string {
	return filepath.Join(d.WorkDir(job), "out")
}

// Run executes one sub-job: it writes the sample description, runs the
// tools, normalizes their output and leaves the sub-job marker.
func (d *Demuxer) Run(ctx context.Context, r runner.Runner, job strategy.SubJob) error {
	name := job.Name(d.kind)
	if err := d.Prepare(job); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, cmd := range d.Commands(job) {
		if err := r.Run(ctx, cmd); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := d.Finish(job); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return touch(d.planner.SubJobMarker(name))
}

// Prepare writes the files the sub-job's tools read.
func (d *Demuxer) Prepare(job strategy.SubJob) error {
	work := d.WorkDir(job)
	switch d.kind {
	case strategy.KindLegacySingle:
		rows := samplesheet.Rows(d.cfg, d.cfg.LaneSet())
		return samplesheet.WriteFile(filepath.Join(work, samplesheet.SampleSheetFile), func(w io.Writer) error {
			return samplesheet.WriteLegacy(w, d.cfg, rows)
		})
	case strategy.KindPartitionedMulti:
		rows := samplesheet.Rows(d.cfg, d.cfg.LaneSet())
		return samplesheet.WriteFile(filepath.Join(work, samplesheet.SampleSheetFile), func(w io.Writer) error {
			return samplesheet.WriteBcl2fastq(w, d.cfg, rows)
		})
	case strategy.KindBarcodeExtraction:
		rows := samplesheet.Rows(d.cfg, []int{job.Lane})
		if err := samplesheet.WriteFile(filepath.Join(work, samplesheet.BarcodesFile), func(w io.Writer) error {
			return samplesheet.WriteBarcodes(w, rows)
		}); err != nil {
			return err
		}
		return samplesheet.WriteFile(filepath.Join(work, samplesheet.LibraryParamsFile), func(w io.Writer) error {
			return samplesheet.WriteLibraryParams(w, d.OutputDir(job), job.Lane, rows)
		})
	}
	return fmt.Errorf("unknown strategy %q", d.kind)
}

// Commands returns the tool invocations of the sub-job, in order.
func (d *Demuxer) Commands(job strategy.SubJob) []runner.Command {
	work := d.WorkDir(job)
	out := d.OutputDir(job)
	mounts := append(append([]string(nil), d.cfg.InputDirs...), work)
	cores := strconv.Itoa(d.cfg.Cores)
	mismatches := strconv.Itoa(d.cfg.BarcodeMismatches)
	sheet := filepath.Join(work, samplesheet.SampleSheetFile)

	switch d.kind {
	case strategy.KindLegacySingle:
		return []runner.Command{
			{
				Name: ConfigureBclToFastq,
				Args: []string{
					"--input-dir", filepath.Join(d.runDir, "Data", "Intensities", "BaseCalls"),
					"--output-dir", out,
					"--sample-sheet", sheet,
					"--use-bases-mask", job.Basesmask,
					"--mismatches", mismatches,
					"--fastq-cluster-count", "0",
					"--force",
				},
				Dir:    work,
				Mounts: mounts,
			},
			{Name: Make, Args: []string{"-C", out, "-j", cores}, Dir: work, Mounts: mounts},
		}

	case strategy.KindPartitionedMulti:
		return []runner.Command{{
			Name: Bcl2fastq,
			Args: []string{
				"--runfolder-dir", d.runDir,
				"--output-dir", out,
				"--interop-dir", filepath.Join(work, "InterOp"),
				"--sample-sheet", sheet,
				"--use-bases-mask", job.Basesmask,
				"--barcode-mismatches", mismatches,
				"--processing-threads", cores,
				"--tiles", tiles(d.cfg.LaneSet()),
			},
			Dir:    work,
			Mounts: mounts,
		}}

	case strategy.KindBarcodeExtraction:
		basecalls := filepath.Join(d.runDir, "Data", "Intensities", "BaseCalls")
		barcodesDir := filepath.Join(work, "barcodes")
		lane := strconv.Itoa(job.Lane)
		rs := d.cfg.Flowcell.DemuxReads
		return []runner.Command{
			{
				Name: Picard,
				Args: []string{
					"ExtractIlluminaBarcodes",
					"BASECALLS_DIR=" + basecalls,
					"LANE=" + lane,
					"READ_STRUCTURE=" + rs,
					"BARCODE_FILE=" + filepath.Join(work, samplesheet.BarcodesFile),
					"METRICS_FILE=" + filepath.Join(work, "barcode_metrics.txt"),
					"OUTPUT_DIR=" + barcodesDir,
					"MAX_MISMATCHES=" + mismatches,
					"NUM_PROCESSORS=" + cores,
				},
				Dir:    work,
				Mounts: mounts,
			},
			{
				Name: Picard,
				Args: []string{
					"IlluminaBasecallsToFastq",
					"BASECALLS_DIR=" + basecalls,
					"BARCODES_DIR=" + barcodesDir,
					"LANE=" + lane,
					"READ_STRUCTURE=" + rs,
					"RUN_BARCODE=" + d.cfg.FlowcellID(),
					"FLOWCELL_BARCODE=" + d.cfg.FlowcellID(),
					"MACHINE_NAME=" + d.cfg.Flowcell.Machine,
					"MULTIPLEX_PARAMS=" + filepath.Join(work, samplesheet.LibraryParamsFile),
					"COMPRESS_OUTPUTS=true",
					"NUM_PROCESSORS=" + cores,
					"TMP_DIR=" + filepath.Join(work, "tmp"),
				},
				Dir:    work,
				Mounts: mounts,
			},
		}
	}
	return nil
}

func tiles(lanes []int) string {
	parts := make([]string, len(lanes))
	for i, l := range lanes {
		parts[i] = fmt.Sprintf("s_%d", l)
	}
	return strings.Join(parts, ",")
}

// Finish brings the sub-job's output into shape. Partitioned output is
// prefix-tagged into the sub-job's basesmask namespace; legacy and picard
// output is renamed to canonical filenames in place for later collection.
func (d *Demuxer) Finish(job strategy.SubJob) error {
	switch d.kind {
	case strategy.KindPartitionedMulti:
		return d.tagInterim(job)
	case strategy.KindLegacySingle:
		return d.normalizeLegacy(job)
	case strategy.KindBarcodeExtraction:
		return d.normalizePicard(job)
	}
	return nil
}

// tagInterim moves every slot file the sub-job produced into its interim
// namespace under the {basesmask}__{filename} name.
func (d *Demuxer) tagInterim(job strategy.SubJob) error {
	out := d.OutputDir(job)
	fsys := os.DirFS(out)
	for _, slot := range layout.Slots(d.cfg) {
		matches, err := doublestar.Glob(fsys, "**/"+layout.EscapeMeta(slot.Filename))
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			continue
		}
		dst := d.planner.InterimPath(job.Basesmask, slot)
		if err := moveFile(filepath.Join(out, filepath.FromSlash(matches[0])), dst); err != nil {
			return err
		}
		d.logger.Debug("interim_tagged",
			zap.String("basesmask", job.Basesmask),
			zap.String("slot", slot.String()))
	}
	return nil
}

var (
	legacyFastq        = regexp.MustCompile(`_L(\d{3})_R(\d+)_\d{3}\.fastq\.gz$`)
	legacyUndetermined = regexp.MustCompile(`^lane\d+_Undetermined_`)
	picardFastq        = regexp.MustCompile(`^(.+)\.(\d+)\.fastq\.gz$`)
)

// normalizeLegacy renames CASAVA output (Project_*/Sample_<name>/<name>_<index>_L001_R1_001.fastq.gz)
// to canonical filenames at the top of the output directory.
func (d *Demuxer) normalizeLegacy(job strategy.SubJob) error {
	out := d.OutputDir(job)
	numbers := d.cfg.SampleNumbers()

	matches, err := doublestar.Glob(os.DirFS(out), "**/*.fastq.gz")
	if err != nil {
		return err
	}
	for _, m := range matches {
		base := filepath.Base(m)
		sub := legacyFastq.FindStringSubmatch(base)
		if sub == nil || !strings.Contains(m, "/") {
			continue
		}
		lane, _ := strconv.Atoi(sub[1])
		read, _ := strconv.Atoi(sub[2])

		var name string
		if legacyUndetermined.MatchString(base) {
			name = layout.FastqFilename(layout.UndeterminedSample, 0, lane, read)
		} else {
			sample := strings.TrimPrefix(filepath.Base(filepath.Dir(filepath.FromSlash(m))), "Sample_")
			n, ok := numbers[sample]
			if !ok {
				d.logger.Warn("unexpected_tool_output", zap.String("file", m))
				continue
			}
			name = layout.FastqFilename(sample, n, lane, read)
		}
		if err := moveFile(filepath.Join(out, filepath.FromSlash(m)), filepath.Join(out, name)); err != nil {
			return err
		}
	}
	return nil
}

// normalizePicard renames <prefix>.<read>.fastq.gz to <prefix>_R<read>_001.fastq.gz.
func (d *Demuxer) normalizePicard(job strategy.SubJob) error {
	out := d.OutputDir(job)
	entries, err := os.ReadDir(out)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		sub := picardFastq.FindStringSubmatch(e.Name())
		if e.IsDir() || sub == nil {
			continue
		}
		name := fmt.Sprintf("%s_R%s_001.fastq.gz", sub[1], sub[2])
		if err := os.Rename(filepath.Join(out, e.Name()), filepath.Join(out, name)); err != nil {
			return err
		}
	}
	return nil
}

func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
