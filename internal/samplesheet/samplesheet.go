// Package samplesheet renders the sample description files the external
// demultiplexers read: bcl2fastq sample sheets (v1 and v2 layouts) and the
// picard barcode and library parameter tables.
package samplesheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dyluth/digestiflow-demux/internal/config"
	"github.com/dyluth/digestiflow-demux/internal/layout"
)

// File names written into a sub-job's work directory.
const (
	SampleSheetFile   = "SampleSheet.csv"
	BarcodesFile      = "barcodes.txt"
	LibraryParamsFile = "library_params.txt"
)

// Row is one (library, lane) assignment.
type Row struct {
	Lane   int
	Sample string
	Number int // bcl2fastq sample number, see config.SampleNumbers
	Index  string
	Index2 string
	Ref    string
}

// Rows lists the assignments for the given lanes ordered by library, then
// lane. bcl2fastq numbers samples by first appearance, so this order keeps
// its S<n> numbering aligned with config.SampleNumbers when lanes is the
// configured lane set. Per-lane subsets keep the lane-set numbers.
func Rows(cfg *config.Config, lanes []int) []Row {
	want := make(map[int]bool, len(lanes))
	for _, l := range lanes {
		want[l] = true
	}

	numbers := cfg.SampleNumbers()
	var rows []Row
	for _, lib := range cfg.Flowcell.Libraries {
		for _, lane := range sortedLanes(lib.Lanes) {
			if !want[lane] {
				continue
			}
			rows = append(rows, Row{
				Lane:   lane,
				Sample: lib.Name,
				Number: numbers[lib.Name],
				Index:  strings.ToUpper(lib.Barcode),
				Index2: strings.ToUpper(lib.Barcode2),
				Ref:    lib.Reference,
			})
		}
	}
	return rows
}

func sortedLanes(lanes []int) []int {
	out := append([]int(nil), lanes...)
	sort.Ints(out)
	return out
}

// WriteBcl2fastq writes a bcl2fastq v2 sample sheet.
func WriteBcl2fastq(w io.Writer, cfg *config.Config, rows []Row) error {
	var b strings.Builder
	b.WriteString("[Header]\n")
	b.WriteString("IEMFileVersion,4\n")
	fmt.Fprintf(&b, "Experiment Name,%s\n", cfg.FlowcellID())
	if cfg.ProjectUUID != "" {
		fmt.Fprintf(&b, "Description,%s\n", cfg.ProjectUUID)
	}
	b.WriteString("\n[Reads]\n")
	if rs, err := config.ParseReadStructure(cfg.Flowcell.DemuxReads); err == nil {
		for _, seg := range rs {
			if seg.Kind == config.Template {
				fmt.Fprintf(&b, "%d\n", seg.Length)
			}
		}
	}
	b.WriteString("\n[Settings]\n")
	b.WriteString("\n[Data]\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Lane", "Sample_ID", "Sample_Name", "index", "index2"})
	for _, r := range rows {
		_ = cw.Write([]string{fmt.Sprint(r.Lane), r.Sample, r.Sample, r.Index, r.Index2})
	}
	cw.Flush()
	return cw.Error()
}

// WriteLegacy writes a bcl2fastq v1 (CASAVA) sample sheet.
func WriteLegacy(w io.Writer, cfg *config.Config, rows []Row) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"FCID", "Lane", "SampleID", "SampleRef", "Index", "Description", "Control", "Recipe", "Operator", "SampleProject"})
	for _, r := range rows {
		index := r.Index
		if r.Index2 != "" {
			index += "-" + r.Index2
		}
		_ = cw.Write([]string{cfg.FlowcellID(), fmt.Sprint(r.Lane), r.Sample, r.Ref, index, "", "N", "", "", "Project"})
	}
	cw.Flush()
	return cw.Error()
}

// WriteBarcodes writes the picard ExtractIlluminaBarcodes barcode table for
// one lane.
func WriteBarcodes(w io.Writer, rows []Row) error {
	dual := hasIndex2(rows)
	cw := tsvWriter(w)
	header := []string{"barcode_sequence_1"}
	if dual {
		header = append(header, "barcode_sequence_2")
	}
	_ = cw.Write(append(header, "barcode_name", "library_name"))
	for _, r := range rows {
		rec := []string{r.Index}
		if dual {
			rec = append(rec, r.Index2)
		}
		_ = cw.Write(append(rec, r.Sample, r.Sample))
	}
	cw.Flush()
	return cw.Error()
}

// WriteLibraryParams writes the picard IlluminaBasecallsToFastq multiplex
// parameters for one lane. Output prefixes are chosen so that the produced
// files only need their read suffix rewritten to match the canonical names;
// the final row catches undetermined reads.
func WriteLibraryParams(w io.Writer, dir string, lane int, rows []Row) error {
	dual := hasIndex2(rows)
	cw := tsvWriter(w)
	header := []string{"OUTPUT_PREFIX", "BARCODE_1"}
	if dual {
		header = append(header, "BARCODE_2")
	}
	_ = cw.Write(header)

	write := func(sample string, number int, idx, idx2 string) {
		rec := []string{filepath.Join(dir, OutputPrefix(sample, number, lane)), idx}
		if dual {
			rec = append(rec, idx2)
		}
		_ = cw.Write(rec)
	}
	for _, r := range rows {
		write(r.Sample, r.Number, r.Index, r.Index2)
	}
	write(layout.UndeterminedSample, 0, "N", "N")

	cw.Flush()
	return cw.Error()
}

// OutputPrefix returns the picard output prefix of a sample on a lane.
func OutputPrefix(sample string, number, lane int) string {
	return fmt.Sprintf("%s_S%d_L%03d", sample, number, lane)
}

func hasIndex2(rows []Row) bool {
	for _, r := range rows {
		if r.Index2 != "" {
			return true
		}
	}
	return false
}

func tsvWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

// WriteFile creates path (and its directory) and renders into it.
func WriteFile(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
