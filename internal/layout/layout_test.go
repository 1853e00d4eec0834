package layout

import (
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dyluth/digestiflow-demux/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanner_Paths(t *testing.T) {
	p := New("/out/")
	slot := Slot{Sample: "SampleA", Flowcell: "FC1", Lane: 1, Filename: "SampleA.fastq.gz"}

	assert.Equal(t, "/out", p.OutputDir())
	assert.Equal(t, "/out/SampleA/FC1/L001/SampleA.fastq.gz", p.CanonicalPath(slot))
	assert.Equal(t, "/out/illumina_basesmask/y150n,i8n,y150n", p.InterimDir("y150n,i8n,y150n"))
	assert.Equal(t,
		"/out/illumina_basesmask/y100n,i8n,y100n/SampleA/FC1/L001/y100n,i8n,y100n__SampleA.fastq.gz",
		p.InterimPath("y100n,i8n,y100n", slot))
	assert.Equal(t, "/out/DIGESTIFLOW_DEMUX_DONE.txt", p.MarkerPath(FinalMarker))
	assert.Equal(t, "/out/BCLS_LANE_007.tar", p.TarballPath(7))
	assert.Equal(t, "/out/SampleA/FC1/L001/qc/fastqc/SampleA_fastqc.zip", p.FastQCZip(slot))
	assert.Equal(t, "/out/multiqc/multiqc_report.html", p.MultiQCReportPath())
	assert.Equal(t, "/out/multiqc/multiqc_data.zip", p.MultiQCDataPath())
	assert.Equal(t, "/out/work/demux_lane_001", p.WorkDir("demux_lane_001"))
}

func TestPlanner_Deterministic(t *testing.T) {
	slot := Slot{Sample: "S", Flowcell: "F", Lane: 3, Filename: "S_S1_L003_R1_001.fastq.gz"}
	assert.Equal(t, New("/o").CanonicalPath(slot), New("/o").CanonicalPath(slot))
	assert.Equal(t, InterimGlob(slot), InterimGlob(slot))
}

func TestInterimNaming(t *testing.T) {
	assert.Equal(t, "*__A.fastq.gz", InterimPattern("A.fastq.gz"))
	assert.Equal(t, "y150n__A.fastq.gz", InterimName("y150n", "A.fastq.gz"))

	token, ok := InterimToken("/x/y150n,i8n__A.fastq.gz")
	require.True(t, ok)
	assert.Equal(t, "y150n,i8n", token)

	_, ok = InterimToken("/x/A.fastq.gz")
	assert.False(t, ok)
}

func TestInterimGlob_MatchesAcrossNamespaces(t *testing.T) {
	slot := Slot{Sample: "SampleA", Flowcell: "FC1", Lane: 1, Filename: "SampleA.fastq.gz"}
	pattern := InterimGlob(slot)

	match := func(name string) bool {
		ok, err := doublestar.Match(pattern, name)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, match("illumina_basesmask/y150n,i8n,y150n/SampleA/FC1/L001/y150n,i8n,y150n__SampleA.fastq.gz"))
	assert.False(t, match("illumina_basesmask/y150n/SampleA/FC1/L002/y150n__SampleA.fastq.gz"))
	assert.False(t, match("illumina_basesmask/y150n/SampleB/FC1/L001/y150n__SampleA.fastq.gz"))
	assert.False(t, match("illumina_basesmask/y150n/SampleA/FC1/L001/SampleA.fastq.gz"))
}

func TestEscapeMeta(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, EscapeMeta("a*b?c[d]"))
	ok, err := doublestar.Match(EscapeMeta("S[1]"), "S[1]")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSlotUndetermined(t *testing.T) {
	assert.True(t, Slot{Sample: "Undetermined"}.Undetermined())
	assert.True(t, Slot{Sample: "x", Filename: "Undetermined_S0_L001_R1_001.fastq.gz"}.Undetermined())
	assert.False(t, Slot{Sample: "SampleA", Filename: "SampleA.fastq.gz"}.Undetermined())
}

func TestSlots(t *testing.T) {
	cfg := &config.Config{
		Flowcell: config.FlowcellConfig{
			NumLanes:   2,
			VendorID:   "FC1",
			DemuxReads: "100T8B100T",
			Libraries: []config.Library{
				{Name: "A", Lanes: []int{1}},
				{Name: "B", Lanes: []int{1, 2}},
			},
		},
	}

	slots := Slots(cfg)
	var names []string
	for _, s := range slots {
		names = append(names, s.String())
	}

	assert.Equal(t, []string{
		"A/FC1/L001/A_S1_L001_R1_001.fastq.gz",
		"A/FC1/L001/A_S1_L001_R2_001.fastq.gz",
		"B/FC1/L001/B_S2_L001_R1_001.fastq.gz",
		"B/FC1/L001/B_S2_L001_R2_001.fastq.gz",
		"Undetermined/FC1/L001/Undetermined_S0_L001_R1_001.fastq.gz",
		"Undetermined/FC1/L001/Undetermined_S0_L001_R2_001.fastq.gz",
		"B/FC1/L002/B_S2_L002_R1_001.fastq.gz",
		"B/FC1/L002/B_S2_L002_R2_001.fastq.gz",
		"Undetermined/FC1/L002/Undetermined_S0_L002_R1_001.fastq.gz",
		"Undetermined/FC1/L002/Undetermined_S0_L002_R2_001.fastq.gz",
	}, names)
}

func TestSlots_LanesOverrideRenumbers(t *testing.T) {
	cfg := &config.Config{
		Lanes: []int{2},
		Flowcell: config.FlowcellConfig{
			NumLanes:   2,
			VendorID:   "FC1",
			DemuxReads: "100T8B",
			Libraries: []config.Library{
				{Name: "A", Lanes: []int{1}},
				{Name: "B", Lanes: []int{2}},
			},
		},
	}

	var names []string
	for _, s := range Slots(cfg) {
		names = append(names, s.Filename)
	}
	assert.Equal(t, []string{
		"B_S1_L002_R1_001.fastq.gz",
		"Undetermined_S0_L002_R1_001.fastq.gz",
	}, names)
}

func TestReadCount_FromOverride(t *testing.T) {
	cfg := &config.Config{Flowcell: config.FlowcellConfig{
		DemuxReadsOverride: []string{"y150n,i8n,y150n"},
	}}
	assert.Equal(t, 2, ReadCount(cfg))

	cfg.Flowcell.DemuxReadsOverride = []string{"i8"}
	assert.Equal(t, 1, ReadCount(cfg))
}
