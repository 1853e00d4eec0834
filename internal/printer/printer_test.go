package printer

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/digestiflow-demux/internal/graph"
	"github.com/dyluth/digestiflow-demux/internal/orchestrator"
	"github.com/dyluth/digestiflow-demux/internal/tracker"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prevNoColor := color.NoColor
	prevOut, prevErr := Output, ErrOutput
	color.NoColor = true

	var out, errOut bytes.Buffer
	Output, ErrOutput = &out, &errOut
	t.Cleanup(func() {
		color.NoColor = prevNoColor
		Output, ErrOutput = prevOut, prevErr
	})
	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := captureOutput(t)
		err := Error("Invalid configuration", "flowcell.num_lanes: must be >= 1", nil)
		require.EqualError(t, err, "Invalid configuration")
		assert.Contains(t, errOut.String(), "flowcell.num_lanes")
	})

	t.Run("numbers multiple suggestions", func(t *testing.T) {
		_, errOut := captureOutput(t)
		_ = Error("Run failed", "", []string{"Fix the tool", "Re-run"})
		assert.Contains(t, errOut.String(), "Either:\n  1. Fix the tool\n  2. Re-run\n")
	})

	t.Run("prints context in order", func(t *testing.T) {
		_, errOut := captureOutput(t)
		_ = ErrorWithContext("Run failed", "", [][2]string{{"b", "2"}, {"a", "1"}}, nil)
		assert.Contains(t, errOut.String(), "  b: 2\n  a: 1\n")
	})
}

func TestSuccessAndWarning(t *testing.T) {
	out, _ := captureOutput(t)
	Success("done\n")
	Warning("careful\n")
	assert.Equal(t, "✓ done\n⚠️  careful\n", out.String())
}

func testGraph(t *testing.T) *graph.Graph {
	g, err := graph.New([]graph.Task{
		{Name: "archive_lane_001", Kind: graph.KindArchiveLane, Outputs: []string{"/out/BCLS_LANE_001.tar"}},
		{Name: "stage_archive", Kind: graph.KindMarker, Deps: []string{"archive_lane_001"}},
	})
	require.NoError(t, err)
	return g
}

func TestFormatPlan(t *testing.T) {
	captureOutput(t)
	var buf bytes.Buffer
	n := FormatPlan(&buf, testGraph(t), "FC1")

	assert.Equal(t, 2, n)
	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "Task graph for flowcell 'FC1':", lines[0])
	assert.True(t, strings.HasPrefix(lines[4], "0     archive_lane  archive_lane_001"))
	assert.True(t, strings.HasSuffix(lines[5], "archive_lane_001"))
	assert.Contains(t, buf.String(), "2 tasks")
}

func TestFormatPlanJSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatPlanJSONL(&buf, testGraph(t)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry planEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "stage_archive", entry.Name)
	assert.Equal(t, 1, entry.Depth)
	assert.Equal(t, []string{"archive_lane_001"}, entry.Deps)
	assert.Equal(t, []string{}, entry.Outputs)
}

func TestFormatStatus(t *testing.T) {
	captureOutput(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	stages := []tracker.StageStatus{
		{Stage: tracker.StageDemux, State: tracker.Complete, MarkerPath: "/out/DEMUX_DONE.txt", UpdatedAt: now.Add(-3 * time.Minute)},
		{Stage: tracker.StageQC, State: tracker.Pending, MarkerPath: "/out/QC_DONE.txt"},
	}

	var buf bytes.Buffer
	FormatStatus(&buf, stages, map[string]string{"demux": "7c5ba1a0-8a4e-4a9d-9f57-0d1f3c4e2b11"}, now)

	out := buf.String()
	assert.Contains(t, out, "demux    Complete  3m ago     7c5ba1a0   /out/DEMUX_DONE.txt")
	assert.Contains(t, out, "qc       Pending   -          -          /out/QC_DONE.txt")
}

func TestFormatReport(t *testing.T) {
	captureOutput(t)
	r := &orchestrator.Report{Results: map[string]*orchestrator.TaskResult{
		"a": {Name: "a", State: orchestrator.TaskSucceeded},
	}}
	var buf bytes.Buffer
	FormatReport(&buf, r)
	// Unordered reports print only the summary.
	assert.Equal(t, "\n1 succeeded, 0 skipped, 0 failed, 0 blocked\n", buf.String())
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "5s ago", formatAge(5*time.Second))
	assert.Equal(t, "2m ago", formatAge(2*time.Minute))
	assert.Equal(t, "3h ago", formatAge(3*time.Hour))
	assert.Equal(t, "2d ago", formatAge(49*time.Hour))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "a", firstLine(errors.New("a\nb").Error()))
}
