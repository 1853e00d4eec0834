package ledger

import "fmt"

// Redis key pattern helpers
//
// Key pattern: demux:{instance_name}:{entity}[:{name}]
// Channel pattern: demux:{instance_name}:{event_type}_events

// StageKey returns the Redis key of a stage record.
// Pattern: demux:{instance_name}:stage:{stage}
func StageKey(instanceName, stage string) string {
	return fmt.Sprintf("demux:%s:stage:%s", instanceName, stage)
}

// TasksKey returns the Redis key of the task state hash.
// Pattern: demux:{instance_name}:tasks
func TasksKey(instanceName string) string {
	return fmt.Sprintf("demux:%s:tasks", instanceName)
}

// ArtifactsKey returns the Redis key of the artifact set.
// Pattern: demux:{instance_name}:artifacts
func ArtifactsKey(instanceName string) string {
	return fmt.Sprintf("demux:%s:artifacts", instanceName)
}

// RunsKey returns the Redis key of the run history ZSET.
// Pattern: demux:{instance_name}:runs
func RunsKey(instanceName string) string {
	return fmt.Sprintf("demux:%s:runs", instanceName)
}

// StageEventsChannel returns the Pub/Sub channel for stage transitions.
// Pattern: demux:{instance_name}:stage_events
func StageEventsChannel(instanceName string) string {
	return fmt.Sprintf("demux:%s:stage_events", instanceName)
}

// TaskEventsChannel returns the Pub/Sub channel for task state changes.
// Pattern: demux:{instance_name}:task_events
func TaskEventsChannel(instanceName string) string {
	return fmt.Sprintf("demux:%s:task_events", instanceName)
}
