package ledger

import (
	"fmt"
	"strconv"
)

// StageRecordToHash converts a StageRecord to Redis hash fields.
func StageRecordToHash(r *StageRecord) map[string]interface{} {
	return map[string]interface{}{
		"stage":           r.Stage,
		"status":          r.Status,
		"run_id":          r.RunID,
		"marker_path":     r.MarkerPath,
		"inputs":          r.Inputs,
		"completed_at_ms": r.CompletedAtMs,
	}
}

// HashToStageRecord converts Redis hash fields back to a StageRecord.
func HashToStageRecord(hash map[string]string) (*StageRecord, error) {
	inputs, err := strconv.Atoi(hash["inputs"])
	if err != nil {
		return nil, fmt.Errorf("invalid inputs field: %w", err)
	}
	completedAt, err := strconv.ParseInt(hash["completed_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid completed_at_ms field: %w", err)
	}

	r := &StageRecord{
		Stage:         hash["stage"],
		Status:        hash["status"],
		RunID:         hash["run_id"],
		MarkerPath:    hash["marker_path"],
		Inputs:        inputs,
		CompletedAtMs: completedAt,
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stage record: %w", err)
	}
	return r, nil
}

// RunScore converts a start time to a ZSET score.
func RunScore(startedAtMs int64) float64 {
	return float64(startedAtMs)
}
