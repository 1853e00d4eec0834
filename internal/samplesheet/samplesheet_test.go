package samplesheet

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/digestiflow-demux/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Flowcell: config.FlowcellConfig{
			NumLanes:   2,
			VendorID:   "FC1",
			DemuxReads: "151T8B151T",
			Libraries: []config.Library{
				{Name: "SampleA", Barcode: "acgtacgt", Reference: "hg19", Lanes: []int{2}},
				{Name: "SampleB", Barcode: "TTTTGGGG", Lanes: []int{2, 1}},
			},
		},
	}
}

func TestRows_OrderedByLibraryThenLane(t *testing.T) {
	rows := Rows(testConfig(), []int{1, 2})

	assert.Equal(t, []Row{
		{Lane: 2, Sample: "SampleA", Number: 1, Index: "ACGTACGT", Ref: "hg19"},
		{Lane: 1, Sample: "SampleB", Number: 2, Index: "TTTTGGGG"},
		{Lane: 2, Sample: "SampleB", Number: 2, Index: "TTTTGGGG"},
	}, rows)
}

func TestRows_FiltersLanes(t *testing.T) {
	rows := Rows(testConfig(), []int{1})
	require.Len(t, rows, 1)
	assert.Equal(t, "SampleB", rows[0].Sample)
	assert.Equal(t, 2, rows[0].Number)
}

func TestRows_NumbersFollowLaneOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Lanes = []int{1}

	rows := Rows(cfg, cfg.LaneSet())
	require.Len(t, rows, 1)
	assert.Equal(t, Row{Lane: 1, Sample: "SampleB", Number: 1, Index: "TTTTGGGG"}, rows[0])
}

func TestWriteBcl2fastq(t *testing.T) {
	cfg := testConfig()
	var buf bytes.Buffer
	require.NoError(t, WriteBcl2fastq(&buf, cfg, Rows(cfg, []int{1, 2})))

	want := `[Header]
IEMFileVersion,4
Experiment Name,FC1

[Reads]
151
151

[Settings]

[Data]
Lane,Sample_ID,Sample_Name,index,index2
2,SampleA,SampleA,ACGTACGT,
1,SampleB,SampleB,TTTTGGGG,
2,SampleB,SampleB,TTTTGGGG,
`
	assert.Equal(t, want, buf.String())
}

func TestWriteLegacy(t *testing.T) {
	cfg := testConfig()
	cfg.Flowcell.Libraries[0].Barcode2 = "CCCC"
	var buf bytes.Buffer
	require.NoError(t, WriteLegacy(&buf, cfg, Rows(cfg, []int{2})))

	want := `FCID,Lane,SampleID,SampleRef,Index,Description,Control,Recipe,Operator,SampleProject
FC1,2,SampleA,hg19,ACGTACGT-CCCC,,N,,,Project
FC1,2,SampleB,,TTTTGGGG,,N,,,Project
`
	assert.Equal(t, want, buf.String())
}

func TestWriteBarcodes(t *testing.T) {
	cfg := testConfig()
	var buf bytes.Buffer
	require.NoError(t, WriteBarcodes(&buf, Rows(cfg, []int{2})))

	want := "barcode_sequence_1\tbarcode_name\tlibrary_name\n" +
		"ACGTACGT\tSampleA\tSampleA\n" +
		"TTTTGGGG\tSampleB\tSampleB\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteBarcodes_DualIndex(t *testing.T) {
	rows := []Row{{Lane: 1, Sample: "S", Number: 1, Index: "AAAA", Index2: "CCCC"}}
	var buf bytes.Buffer
	require.NoError(t, WriteBarcodes(&buf, rows))

	assert.Equal(t, "barcode_sequence_1\tbarcode_sequence_2\tbarcode_name\tlibrary_name\nAAAA\tCCCC\tS\tS\n", buf.String())
}

func TestWriteLibraryParams(t *testing.T) {
	cfg := testConfig()
	var buf bytes.Buffer
	require.NoError(t, WriteLibraryParams(&buf, "/work/lane", 1, Rows(cfg, []int{1})))

	want := "OUTPUT_PREFIX\tBARCODE_1\n" +
		"/work/lane/SampleB_S2_L001\tTTTTGGGG\n" +
		"/work/lane/Undetermined_S0_L001\tN\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", SampleSheetFile)
	err := WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "x")
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}
