package tools

import (
	"path/filepath"

	"github.com/dyluth/digestiflow-demux/internal/layout"
	"github.com/dyluth/digestiflow-demux/internal/runner"
)

// QC executables.
const (
	FastQC  = "fastqc"
	MultiQC = "multiqc"
)

// FastQCCommand runs FastQC over the canonical FASTQ of slot.
func FastQCCommand(p layout.Planner, slot layout.Slot) runner.Command {
	dir := p.FastQCDir(slot)
	return runner.Command{
		Name:   FastQC,
		Args:   []string{"--noextract", "--quiet", "--outdir", dir, p.CanonicalPath(slot)},
		Dir:    dir,
		Mounts: []string{p.OutputDir()},
	}
}

// MultiQCCommand aggregates the FastQC archives of all slots into
// multiqc/multiqc_report.html and multiqc/multiqc_data.zip.
func MultiQCCommand(p layout.Planner, slots []layout.Slot) runner.Command {
	outDir := filepath.Dir(p.MultiQCReportPath())
	args := []string{"--force", "--zip-data-dir", "--module", "fastqc", "--outdir", outDir}

	seen := make(map[string]bool)
	for _, s := range slots {
		dir := p.FastQCDir(s)
		if !seen[dir] {
			seen[dir] = true
			args = append(args, dir)
		}
	}
	return runner.Command{
		Name:   MultiQC,
		Args:   args,
		Dir:    outDir,
		Mounts: []string{p.OutputDir()},
	}
}
