package layout

import "github.com/dyluth/digestiflow-demux/internal/config"

// ReadCount returns the number of template reads (R1..Rn) per sample and
// lane. The read structure is authoritative; without one, the first
// basesmask override is inspected.
func ReadCount(cfg *config.Config) int {
	if cfg.Flowcell.DemuxReads != "" {
		if rs, err := config.ParseReadStructure(cfg.Flowcell.DemuxReads); err == nil && rs.TemplateReads() > 0 {
			return rs.TemplateReads()
		}
	}
	if len(cfg.Flowcell.DemuxReadsOverride) > 0 {
		if n := config.BasesmaskTemplateReads(cfg.Flowcell.DemuxReadsOverride[0]); n > 0 {
			return n
		}
	}
	return 1
}

// Slots enumerates the canonical output slots for the configured lane set:
// one per (library, lane, read) plus the undetermined bucket of every lane.
// Sample numbers come from config.SampleNumbers, matching the sample
// sheets; the undetermined bucket is always S0.
func Slots(cfg *config.Config) []Slot {
	reads := ReadCount(cfg)
	flowcell := cfg.FlowcellID()

	number := cfg.SampleNumbers()

	var slots []Slot
	for _, lane := range cfg.LaneSet() {
		for _, lib := range cfg.LibrariesOnLane(lane) {
			for r := 1; r <= reads; r++ {
				slots = append(slots, Slot{
					Sample:   lib.Name,
					Flowcell: flowcell,
					Lane:     lane,
					Filename: FastqFilename(lib.Name, number[lib.Name], lane, r),
				})
			}
		}
		for r := 1; r <= reads; r++ {
			slots = append(slots, Slot{
				Sample:   UndeterminedSample,
				Flowcell: flowcell,
				Lane:     lane,
				Filename: FastqFilename(UndeterminedSample, 0, lane, r),
			})
		}
	}
	return slots
}
