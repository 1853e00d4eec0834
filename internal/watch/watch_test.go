package watch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/digestiflow-demux/pkg/ledger"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	l, err := ledger.New(&redis.Options{Addr: mr.Addr()}, "FC1", uuid.New().String())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestPollForStage(t *testing.T) {
	ctx := context.Background()

	t.Run("returns record once recorded", func(t *testing.T) {
		l := newLedger(t)
		go func() {
			time.Sleep(300 * time.Millisecond)
			_ = l.RecordStage(ctx, "demux", "/out/DEMUX_DONE.txt", nil)
		}()

		rec, err := PollForStage(ctx, l, "demux", 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "demux", rec.Stage)
		assert.Equal(t, l.RunID(), rec.RunID)
	})

	t.Run("times out", func(t *testing.T) {
		l := newLedger(t)
		_, err := PollForStage(ctx, l, "qc", 500*time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout waiting for stage qc")
	})

	t.Run("context cancelled", func(t *testing.T) {
		l := newLedger(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := PollForStage(cctx, l, "qc", time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("propagates read errors", func(t *testing.T) {
		_, err := PollForStage(ctx, failingReader{}, "qc", time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})
}

type failingReader struct{}

func (failingReader) GetStage(context.Context, string) (*ledger.StageRecord, error) {
	return nil, errors.New("boom")
}

func TestStream(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l := newLedger(t)
	sub, err := l.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, l.RecordTask(ctx, "fastqc/SampleA", "failed", errors.New("exit 1")))
	require.NoError(t, l.RecordStage(ctx, "archive", "/out/TARBALLS_DONE.txt", nil))

	var buf bytes.Buffer
	require.NoError(t, Stream(ctx, sub, &buf, OutputFormatDefault, "archive"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "failed fastqc/SampleA: exit 1")
	assert.Contains(t, lines[1], "stage archive complete")
}

func TestStream_JSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l := newLedger(t)
	sub, err := l.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, l.RecordStage(ctx, "final", "/out/DIGESTIFLOW_DEMUX_DONE.txt", nil))

	var buf bytes.Buffer
	require.NoError(t, Stream(ctx, sub, &buf, OutputFormatJSON, "final"))
	assert.Contains(t, buf.String(), `"kind":"stage"`)
	assert.Contains(t, buf.String(), `"name":"final"`)
}
