// Package layout computes every path the pipeline reads or writes. All
// functions are pure: the same inputs always yield the same path, so
// components recompute paths independently instead of passing them around.
package layout

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Marker file names, relative to the output directory.
const (
	FinalMarker    = "DIGESTIFLOW_DEMUX_DONE.txt"
	TarballsMarker = "TARBALLS_DONE.txt"
	DemuxMarker    = "DEMUX_DONE.txt"
	QCMarker       = "QC_DONE.txt"
)

const (
	// InterimRoot holds one namespace directory per basesmask sub-job.
	InterimRoot = "illumina_basesmask"
	// InterimSeparator joins the producing basesmask token and the canonical filename.
	InterimSeparator = "__"
	// WorkRoot holds scratch output of external tools.
	WorkRoot = "work"
	// SubJobDone marks a finished demux sub-job inside its work directory.
	SubJobDone = "SUBJOB_DONE"

	MultiQCDir    = "multiqc"
	MultiQCReport = "multiqc_report.html"
	MultiQCData   = "multiqc_data.zip"

	// UndeterminedSample is the pseudo-sample receiving unassigned reads.
	UndeterminedSample = "Undetermined"

	fastqSuffix = ".fastq.gz"
)

// Slot identifies one required terminal FASTQ file.
type Slot struct {
	Sample   string
	Flowcell string
	Lane     int
	Filename string
}

// LaneDir returns the lane directory component, e.g. "L001".
func (s Slot) LaneDir() string {
	return LaneName(s.Lane)
}

// Undetermined reports whether the slot holds undetermined reads.
func (s Slot) Undetermined() bool {
	return s.Sample == UndeterminedSample || strings.HasPrefix(s.Filename, UndeterminedSample+"_")
}

// RelDir returns {sample}/{flowcell}/{lane} relative to a layout root.
func (s Slot) RelDir() string {
	return filepath.Join(s.Sample, s.Flowcell, s.LaneDir())
}

func (s Slot) String() string {
	return filepath.Join(s.RelDir(), s.Filename)
}

// LaneName formats a 1-based lane number as "L001".
func LaneName(lane int) string {
	return fmt.Sprintf("L%03d", lane)
}

// FastqFilename returns the bcl2fastq-style name of a FASTQ file.
func FastqFilename(sample string, sampleNumber, lane, read int) string {
	return fmt.Sprintf("%s_S%d_L%03d_R%d_001%s", sample, sampleNumber, lane, read, fastqSuffix)
}

// Planner computes paths under one output directory.
type Planner struct {
	outputDir string
}

// New returns a Planner rooted at outputDir.
func New(outputDir string) Planner {
	return Planner{outputDir: filepath.Clean(outputDir)}
}

// OutputDir returns the root directory.
func (p Planner) OutputDir() string {
	return p.outputDir
}

// CanonicalPath returns {output_dir}/{sample}/{flowcell}/{lane}/{filename}.
func (p Planner) CanonicalPath(s Slot) string {
	return filepath.Join(p.outputDir, s.RelDir(), s.Filename)
}

// InterimRootDir returns the directory holding every basesmask namespace.
func (p Planner) InterimRootDir() string {
	return filepath.Join(p.outputDir, InterimRoot)
}

// InterimDir returns the namespace directory of one basesmask sub-job.
func (p Planner) InterimDir(basesmask string) string {
	return filepath.Join(p.InterimRootDir(), basesmask)
}

// InterimName returns the prefix-tagged filename a sub-job writes.
func InterimName(basesmask, filename string) string {
	return basesmask + InterimSeparator + filename
}

// InterimPattern returns the shell pattern matching any sub-job's version of filename.
func InterimPattern(filename string) string {
	return "*" + InterimSeparator + filename
}

// InterimPath returns where the basesmask sub-job leaves its copy of slot.
func (p Planner) InterimPath(basesmask string, s Slot) string {
	return filepath.Join(p.InterimDir(basesmask), s.RelDir(), InterimName(basesmask, s.Filename))
}

// InterimGlob returns a doublestar pattern, relative to the output
// directory, that matches the slot's interim files across all namespaces.
func InterimGlob(s Slot) string {
	return strings.Join([]string{
		InterimRoot,
		"*",
		EscapeMeta(s.Sample),
		EscapeMeta(s.Flowcell),
		s.LaneDir(),
		"*" + InterimSeparator + EscapeMeta(s.Filename),
	}, "/")
}

// InterimToken extracts the basesmask token from an interim filename.
func InterimToken(name string) (string, bool) {
	base := filepath.Base(name)
	i := strings.Index(base, InterimSeparator)
	if i < 0 {
		return "", false
	}
	return base[:i], true
}

// MarkerPath returns the path of a stage marker file.
func (p Planner) MarkerPath(name string) string {
	return filepath.Join(p.outputDir, name)
}

// TarballPath returns {output_dir}/BCLS_LANE_<3-digit>.tar.
func (p Planner) TarballPath(lane int) string {
	return filepath.Join(p.outputDir, fmt.Sprintf("BCLS_LANE_%03d.tar", lane))
}

// WorkDir returns a scratch directory for an external tool invocation.
func (p Planner) WorkDir(name string) string {
	return filepath.Join(p.outputDir, WorkRoot, name)
}

// SubJobMarker returns the sentinel a finished demux sub-job leaves in its
// work directory.
func (p Planner) SubJobMarker(name string) string {
	return filepath.Join(p.WorkDir(name), SubJobDone)
}

// FastQCZip returns the FastQC archive produced for the slot's FASTQ file.
func (p Planner) FastQCZip(s Slot) string {
	base := strings.TrimSuffix(s.Filename, fastqSuffix)
	return filepath.Join(p.FastQCDir(s), base+"_fastqc.zip")
}

// FastQCDir returns the directory FastQC writes into for the slot.
func (p Planner) FastQCDir(s Slot) string {
	return filepath.Join(p.outputDir, s.RelDir(), "qc", "fastqc")
}

// MultiQCReportPath returns the aggregated QC report path.
func (p Planner) MultiQCReportPath() string {
	return filepath.Join(p.outputDir, MultiQCDir, MultiQCReport)
}

// MultiQCDataPath returns the aggregated QC data archive path.
func (p Planner) MultiQCDataPath() string {
	return filepath.Join(p.outputDir, MultiQCDir, MultiQCData)
}

// EscapeMeta escapes glob metacharacters so s matches literally.
func EscapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
