package archive

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/dyluth/digestiflow-demux/internal/checksum"
	"github.com/dyluth/digestiflow-demux/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeRunFolder creates a miniature two-lane run folder.
func makeRunFolder(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "RUN1")
	files := []string{
		"RunInfo.xml",
		"RunParameters.xml",
		"InterOp/QMetricsOut.bin",
		"Logs/run.log",
		"Thumbnail_Images/L001/C1.1/s_1_1101_a.jpg",
		"Data/Intensities/BaseCalls/L001/C1.1/s_1_1101.bcl.gz",
		"Data/Intensities/BaseCalls/L001/C2.1/s_1_1101.bcl.gz",
		"Data/Intensities/BaseCalls/L001/C10.1/s_1_1101.bcl.gz",
		"Data/Intensities/BaseCalls/L002/C1.1/s_2_1101.bcl.gz",
		"Data/Intensities/L001/s_1_1101.locs",
		"Data/Intensities/L002/s_2_1101.locs",
		"Data/Intensities/config.xml",
	}
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(f), 0644))
	}
	return root
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Rel
	}
	return out
}

func TestLaneFiles(t *testing.T) {
	root := makeRunFolder(t)
	a := New(layout.New(t.TempDir()), []string{root}, nil)

	lane1, err := a.LaneFiles(1)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Data/Intensities/BaseCalls/L001/C1.1/s_1_1101.bcl.gz",
		"Data/Intensities/BaseCalls/L001/C2.1/s_1_1101.bcl.gz",
		"Data/Intensities/BaseCalls/L001/C10.1/s_1_1101.bcl.gz",
		"Data/Intensities/L001/s_1_1101.locs",
		"InterOp/QMetricsOut.bin",
		"RunInfo.xml",
		"RunParameters.xml",
	}, names(lane1))

	lane2, err := a.LaneFiles(2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Data/Intensities/BaseCalls/L002/C1.1/s_2_1101.bcl.gz",
		"Data/Intensities/L002/s_2_1101.locs",
		"InterOp/QMetricsOut.bin",
		"RunInfo.xml",
		"RunParameters.xml",
	}, names(lane2))
}

func readTar(t *testing.T, path string) map[string]*tar.Header {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	out := make(map[string]*tar.Header)
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out[hdr.Name] = hdr
	}
	return out
}

func TestWriteLane(t *testing.T) {
	root := makeRunFolder(t)
	out := t.TempDir()
	a := New(layout.New(out), []string{root}, nil)

	path, err := a.WriteLane(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "BCLS_LANE_001.tar"), path)
	assert.NoError(t, checksum.Verify(path))

	headers := readTar(t, path)
	var stored []string
	for name, hdr := range headers {
		stored = append(stored, name)
		assert.Equal(t, 0, hdr.Uid)
		assert.Equal(t, 0, hdr.Gid)
	}
	sort.Strings(stored)

	assert.Contains(t, stored, "RUN1/RunInfo.xml")
	assert.Contains(t, stored, "RUN1/Data/Intensities/BaseCalls/L001/C10.1/s_1_1101.bcl.gz")
	for _, name := range stored {
		assert.NotContains(t, name, "L002")
		assert.NotContains(t, name, "Logs/")
		assert.NotContains(t, name, "Thumbnail_Images/")
	}

	// No scratch files are left next to the tarball.
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	var files []string
	for _, e := range entries {
		files = append(files, e.Name())
	}
	assert.ElementsMatch(t, []string{"BCLS_LANE_001.tar", "BCLS_LANE_001.tar.md5"}, files)
}

func TestWriteLane_Reproducible(t *testing.T) {
	root := makeRunFolder(t)
	a := New(layout.New(t.TempDir()), []string{root}, nil)
	b := New(layout.New(t.TempDir()), []string{root}, nil)

	pa, err := a.WriteLane(context.Background(), 2)
	require.NoError(t, err)
	pb, err := b.WriteLane(context.Background(), 2)
	require.NoError(t, err)

	sa, err := checksum.Sum(pa)
	require.NoError(t, err)
	sb, err := checksum.Sum(pb)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
}

func TestWriteLane_MissingInputCleansUp(t *testing.T) {
	out := t.TempDir()
	a := New(layout.New(out), []string{filepath.Join(out, "does-not-exist")}, nil)

	_, err := a.WriteLane(context.Background(), 1)
	require.Error(t, err)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteLane_CancelledRemovesScratch(t *testing.T) {
	root := makeRunFolder(t)
	out := t.TempDir()
	a := New(layout.New(out), []string{root}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.WriteLane(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNaturalLess(t *testing.T) {
	in := []string{"C10.1", "C2.1", "C1.1", "C1.10", "C1.2", "a", "B"}
	naturalSort(in)
	assert.Equal(t, []string{"B", "C1.1", "C1.2", "C1.10", "C2.1", "C10.1", "a"}, in)

	assert.True(t, naturalLess("s_1", "s_01"))
	assert.False(t, naturalLess("s_01", "s_1"))
	assert.True(t, naturalLess("abc", "abcd"))
}
