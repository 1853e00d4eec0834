package tracker

import (
	"github.com/dyluth/digestiflow-demux/internal/checksum"
	"github.com/dyluth/digestiflow-demux/internal/config"
	"github.com/dyluth/digestiflow-demux/internal/layout"
)

// DemuxInputs are the canonical FASTQ files and their checksums.
func DemuxInputs(p layout.Planner, slots []layout.Slot) []string {
	inputs := make([]string, 0, 2*len(slots))
	for _, s := range slots {
		path := p.CanonicalPath(s)
		inputs = append(inputs, path, checksum.Path(path))
	}
	return inputs
}

// QCInputs are the aggregated QC report and data archive.
func QCInputs(p layout.Planner) []string {
	return []string{p.MultiQCReportPath(), p.MultiQCDataPath()}
}

// ArchiveInputs are the per-lane tarballs and their checksums for lanes
// 1..num_lanes.
func ArchiveInputs(cfg *config.Config, p layout.Planner) []string {
	var inputs []string
	for lane := 1; lane <= cfg.Flowcell.NumLanes; lane++ {
		tar := p.TarballPath(lane)
		inputs = append(inputs, tar, checksum.Path(tar))
	}
	return inputs
}

// FinalInputs are the top-level marker's inputs, conditioned on the
// delivery types: the demux and QC markers plus the QC report when "seq" is
// delivered, the tarball marker when "bcl" is. With neither flag the result
// is empty.
func FinalInputs(cfg *config.Config, p layout.Planner) []string {
	var inputs []string
	if cfg.Delivers(config.DeliverySeq) {
		inputs = append(inputs,
			p.MarkerPath(MarkerName(StageDemux)),
			p.MarkerPath(MarkerName(StageQC)))
		inputs = append(inputs, QCInputs(p)...)
	}
	if cfg.Delivers(config.DeliveryBCL) {
		inputs = append(inputs, p.MarkerPath(MarkerName(StageArchive)))
	}
	return inputs
}
