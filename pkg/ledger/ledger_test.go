package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestLedger creates a ledger connected to a miniredis instance.
func setupTestLedger(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	l, err := New(&redis.Options{Addr: mr.Addr()}, "FC1", uuid.New().String())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	l.now = func() time.Time { return time.UnixMilli(1700000000000) }

	return l, mr
}

func TestNew(t *testing.T) {
	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := New(&redis.Options{Addr: "localhost:6379"}, "", uuid.New().String())
		assert.ErrorContains(t, err, "instance name cannot be empty")
	})

	t.Run("rejects empty run ID", func(t *testing.T) {
		_, err := New(&redis.Options{Addr: "localhost:6379"}, "FC1", "")
		assert.ErrorContains(t, err, "run ID cannot be empty")
	})
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	l, err := Connect(context.Background(), mr.Addr(), "FC1", uuid.New().String())
	require.NoError(t, err)
	defer l.Close()
	assert.NoError(t, l.Ping(context.Background()))
}

func TestConnect_Unreachable(t *testing.T) {
	orig := connectBackOff
	connectBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) }
	t.Cleanup(func() { connectBackOff = orig })

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), addr, "FC1", uuid.New().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestRecordStage(t *testing.T) {
	l, mr := setupTestLedger(t)
	ctx := context.Background()

	inputs := []string{"/out/BCLS_LANE_001.tar", "/out/BCLS_LANE_001.tar.md5"}
	require.NoError(t, l.RecordStage(ctx, "archive", "/out/TARBALLS_DONE.txt", inputs))

	assert.Equal(t, "complete", mr.HGet(StageKey("FC1", "archive"), "status"))

	rec, err := l.GetStage(ctx, "archive")
	require.NoError(t, err)
	assert.Equal(t, &StageRecord{
		Stage:         "archive",
		Status:        StageStatusComplete,
		RunID:         l.RunID(),
		MarkerPath:    "/out/TARBALLS_DONE.txt",
		Inputs:        2,
		CompletedAtMs: 1700000000000,
	}, rec)

	artifacts, err := l.Artifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/out/BCLS_LANE_001.tar",
		"/out/BCLS_LANE_001.tar.md5",
		"/out/TARBALLS_DONE.txt",
	}, artifacts)
}

func TestRecordStage_NoInputs(t *testing.T) {
	l, _ := setupTestLedger(t)
	require.NoError(t, l.RecordStage(context.Background(), "final", "/out/DIGESTIFLOW_DEMUX_DONE.txt", nil))

	artifacts, err := l.Artifacts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/out/DIGESTIFLOW_DEMUX_DONE.txt"}, artifacts)
}

func TestGetStage_NotFound(t *testing.T) {
	l, _ := setupTestLedger(t)

	rec, err := l.GetStage(context.Background(), "qc")
	assert.Nil(t, rec)
	assert.True(t, IsNotFound(err))
}

func TestRecordTask(t *testing.T) {
	l, _ := setupTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordTask(ctx, "archive_lane_001", "succeeded", nil))
	require.NoError(t, l.RecordTask(ctx, "multiqc", "failed", errors.New("exit 1")))
	require.NoError(t, l.RecordTask(ctx, "archive_lane_001", "skipped", nil))

	states, err := l.TaskStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"archive_lane_001": "skipped", "multiqc": "failed"}, states)
}

func TestRuns(t *testing.T) {
	l, mr := setupTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.StartRun(ctx))

	later, err := New(&redis.Options{Addr: mr.Addr()}, "FC1", uuid.New().String())
	require.NoError(t, err)
	defer later.Close()
	later.now = func() time.Time { return time.UnixMilli(1700000005000) }
	require.NoError(t, later.StartRun(ctx))

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, Run{RunID: l.RunID(), StartedAtMs: 1700000000000}, runs[0])
	assert.Equal(t, later.RunID(), runs[1].RunID)
}

func TestSubscribe(t *testing.T) {
	l, _ := setupTestLedger(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := l.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, l.RecordStage(ctx, "demux", "/out/DEMUX_DONE.txt", nil))
	require.NoError(t, l.RecordTask(ctx, "multiqc", "failed", errors.New("boom")))

	var got []*Event
	for len(got) < 2 {
		select {
		case ev := <-sub.Events():
			got = append(got, ev)
		case <-ctx.Done():
			t.Fatal("timed out waiting for events")
		}
	}

	assert.Equal(t, EventStage, got[0].Kind)
	assert.Equal(t, "demux", got[0].Name)
	assert.Equal(t, l.RunID(), got[0].RunID)
	assert.Equal(t, EventTask, got[1].Kind)
	assert.Equal(t, "boom", got[1].Error)
}

func TestHashToStageRecord_Invalid(t *testing.T) {
	_, err := HashToStageRecord(map[string]string{"stage": "qc", "inputs": "x", "completed_at_ms": "1"})
	assert.Error(t, err)

	_, err = HashToStageRecord(map[string]string{
		"stage": "qc", "status": "complete", "run_id": "not-a-uuid", "inputs": "0", "completed_at_ms": "1",
	})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "demux:FC1:stage:qc", StageKey("FC1", "qc"))
	assert.Equal(t, "demux:FC1:tasks", TasksKey("FC1"))
	assert.Equal(t, "demux:FC1:artifacts", ArtifactsKey("FC1"))
	assert.Equal(t, "demux:FC1:runs", RunsKey("FC1"))
	assert.Equal(t, "demux:FC1:stage_events", StageEventsChannel("FC1"))
	assert.Equal(t, "demux:FC1:task_events", TaskEventsChannel("FC1"))
}
