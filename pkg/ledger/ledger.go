package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// Ledger writes pipeline progress for one instance and run. It is safe for
// concurrent use.
type Ledger struct {
	rdb          *redis.Client
	instanceName string
	runID        string
	now          func() time.Time
}

// connectBackOff bounds how long Connect waits for Redis.
var connectBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return b
}

// New creates a ledger for the given instance and run without contacting Redis.
func New(redisOpts *redis.Options, instanceName, runID string) (*Ledger, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID cannot be empty")
	}
	return &Ledger{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		runID:        runID,
		now:          time.Now,
	}, nil
}

// Connect creates a ledger and waits, with exponential backoff, until Redis
// answers a ping.
func Connect(ctx context.Context, addr, instanceName, runID string) (*Ledger, error) {
	l, err := New(&redis.Options{Addr: addr}, instanceName, runID)
	if err != nil {
		return nil, err
	}
	ping := func() error { return l.Ping(ctx) }
	if err := backoff.Retry(ping, backoff.WithContext(connectBackOff(), ctx)); err != nil {
		l.Close()
		return nil, fmt.Errorf("redis at %s not reachable: %w", addr, err)
	}
	return l, nil
}

// Close closes the Redis connection.
func (l *Ledger) Close() error {
	return l.rdb.Close()
}

// Ping verifies Redis connectivity.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// RunID returns the run this ledger records for.
func (l *Ledger) RunID() string { return l.runID }

// StartRun adds the run to the instance's run history.
func (l *Ledger) StartRun(ctx context.Context) error {
	score := RunScore(l.now().UnixMilli())
	if err := l.rdb.ZAdd(ctx, RunsKey(l.instanceName), redis.Z{Score: score, Member: l.runID}).Err(); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Runs returns the run history, oldest first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	zs, err := l.rdb.ZRangeWithScores(ctx, RunsKey(l.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	runs := make([]Run, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		runs = append(runs, Run{RunID: id, StartedAtMs: int64(z.Score)})
	}
	return runs, nil
}

// RecordStage stores a stage transition, adds the stage's artifacts to the
// artifact set and publishes a stage event.
func (l *Ledger) RecordStage(ctx context.Context, stage, markerPath string, inputs []string) error {
	rec := &StageRecord{
		Stage:         stage,
		Status:        StageStatusComplete,
		RunID:         l.runID,
		MarkerPath:    markerPath,
		Inputs:        len(inputs),
		CompletedAtMs: l.now().UnixMilli(),
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid stage record: %w", err)
	}

	members := make([]interface{}, 0, len(inputs)+1)
	members = append(members, markerPath)
	for _, in := range inputs {
		members = append(members, in)
	}

	pipe := l.rdb.TxPipeline()
	pipe.HSet(ctx, StageKey(l.instanceName, stage), StageRecordToHash(rec))
	pipe.SAdd(ctx, ArtifactsKey(l.instanceName), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write stage %s: %w", stage, err)
	}

	return l.publish(ctx, StageEventsChannel(l.instanceName), Event{
		Kind:   EventStage,
		Name:   stage,
		Status: StageStatusComplete,
		RunID:  l.runID,
		AtMs:   rec.CompletedAtMs,
	})
}

// RecordTask stores a task's state and publishes a task event.
func (l *Ledger) RecordTask(ctx context.Context, task, state string, taskErr error) error {
	if err := l.rdb.HSet(ctx, TasksKey(l.instanceName), task, state).Err(); err != nil {
		return fmt.Errorf("failed to write task %s: %w", task, err)
	}
	ev := Event{Kind: EventTask, Name: task, Status: state, RunID: l.runID, AtMs: l.now().UnixMilli()}
	if taskErr != nil {
		ev.Error = taskErr.Error()
	}
	return l.publish(ctx, TaskEventsChannel(l.instanceName), ev)
}

func (l *Ledger) publish(ctx context.Context, channel string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := l.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// GetStage returns the record of a stage. Returns (nil, redis.Nil) when the
// stage has not been recorded; use IsNotFound to check.
func (l *Ledger) GetStage(ctx context.Context, stage string) (*StageRecord, error) {
	hash, err := l.rdb.HGetAll(ctx, StageKey(l.instanceName, stage)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stage %s: %w", stage, err)
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}
	return HashToStageRecord(hash)
}

// TaskStates returns the last recorded state of every task.
func (l *Ledger) TaskStates(ctx context.Context) (map[string]string, error) {
	states, err := l.rdb.HGetAll(ctx, TasksKey(l.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task states: %w", err)
	}
	return states, nil
}

// Artifacts returns every recorded artifact path, sorted.
func (l *Ledger) Artifacts(ctx context.Context) ([]string, error) {
	members, err := l.rdb.SMembers(ctx, ArtifactsKey(l.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read artifacts: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

// IsNotFound reports whether err is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
