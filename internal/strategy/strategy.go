// Package strategy selects how a flowcell is demultiplexed and enumerates the
// sub-jobs the chosen strategy fans out into.
package strategy

import (
	"fmt"

	"github.com/dyluth/digestiflow-demux/internal/config"
)

// Kind names a demultiplexing strategy.
type Kind string

const (
	KindLegacySingle      Kind = "legacy_single"
	KindPartitionedMulti  Kind = "partitioned_multi"
	KindBarcodeExtraction Kind = "barcode_extraction"
)

// Strategy is a closed sum type: LegacySingle, PartitionedMulti or
// BarcodeExtraction. Callers switch on the concrete type.
type Strategy interface {
	Kind() Kind
	// SubJobs lists the independent demux jobs, in execution-plan order.
	SubJobs() []SubJob
	isStrategy()
}

// SubJob is one parallel unit of demultiplexing work.
type SubJob struct {
	Index     int    // position in the strategy's fan-out
	Basesmask string // set for LegacySingle and PartitionedMulti
	Lane      int    // set for BarcodeExtraction
}

// Name returns a task-graph unique name for the sub-job.
func (j SubJob) Name(kind Kind) string {
	switch kind {
	case KindPartitionedMulti:
		return fmt.Sprintf("demux_basesmask_%d", j.Index)
	case KindBarcodeExtraction:
		return fmt.Sprintf("demux_lane_%03d", j.Lane)
	default:
		return "demux_legacy"
	}
}

// LegacySingle runs the old single-pass demultiplexer once over all lanes.
type LegacySingle struct {
	Basesmask string
}

// PartitionedMulti runs one demultiplexer invocation per basesmask. Each
// invocation writes into its own interim namespace.
type PartitionedMulti struct {
	Basesmasks []string
}

// BarcodeExtraction extracts barcodes and converts base calls lane by lane.
type BarcodeExtraction struct {
	Lanes []int
}

func (LegacySingle) Kind() Kind      { return KindLegacySingle }
func (PartitionedMulti) Kind() Kind  { return KindPartitionedMulti }
func (BarcodeExtraction) Kind() Kind { return KindBarcodeExtraction }

func (LegacySingle) isStrategy()      {}
func (PartitionedMulti) isStrategy()  {}
func (BarcodeExtraction) isStrategy() {}

func (s LegacySingle) SubJobs() []SubJob {
	return []SubJob{{Index: 0, Basesmask: s.Basesmask}}
}

func (s PartitionedMulti) SubJobs() []SubJob {
	jobs := make([]SubJob, len(s.Basesmasks))
	for i, mask := range s.Basesmasks {
		jobs[i] = SubJob{Index: i, Basesmask: mask}
	}
	return jobs
}

func (s BarcodeExtraction) SubJobs() []SubJob {
	jobs := make([]SubJob, len(s.Lanes))
	for i, lane := range s.Lanes {
		jobs[i] = SubJob{Index: i, Lane: lane}
	}
	return jobs
}

// Select chooses exactly one strategy for the flowcell.
//
// A non-empty demux_reads_override always selects PartitionedMulti with one
// sub-job per entry, order preserved. Otherwise legacy control software
// selects LegacySingle, and everything else is BarcodeExtraction over the
// configured lane set. An empty lane set is a configuration error.
func Select(cfg *config.Config, meta RunMetadata) (Strategy, error) {
	fc := cfg.Flowcell

	if len(fc.DemuxReadsOverride) > 0 {
		masks := append([]string(nil), fc.DemuxReadsOverride...)
		return PartitionedMulti{Basesmasks: masks}, nil
	}

	lanes := cfg.LaneSet()
	if len(lanes) == 0 {
		return nil, config.Invalidf("lanes", "empty lane set and no library lanes configured")
	}

	rs, err := config.ParseReadStructure(fc.DemuxReads)
	if err != nil {
		return nil, config.Invalidf("flowcell.demux_reads", "%v", err)
	}

	if meta.Legacy() {
		return LegacySingle{Basesmask: rs.Basesmask()}, nil
	}

	return BarcodeExtraction{Lanes: lanes}, nil
}
