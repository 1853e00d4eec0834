// Package ledger mirrors pipeline progress into Redis so that operators and
// other services can follow a demultiplexing run without access to its
// output directory.
//
// # Overview
//
// The stage marker files on disk remain the only source of truth for
// completion. The ledger is a best-effort copy: every stage transition is
// written to a hash and announced on a Pub/Sub channel, every task state
// change is recorded, and every artifact a stage consumed is added to a set.
//
// # Multi-Instance Support
//
// All keys and channels are namespaced by instance name (by default the
// flowcell vendor ID), so several flowcells can share one Redis server.
//
//	demux:{instance}:stage:{stage}   hash   status, run_id, marker, inputs, completed_at_ms
//	demux:{instance}:tasks           hash   task name -> state
//	demux:{instance}:artifacts       set    artifact paths
//	demux:{instance}:runs            zset   run IDs scored by start time
//	demux:{instance}:stage_events    channel
//	demux:{instance}:task_events     channel
//
// # Usage Example
//
//	l, err := ledger.Connect(ctx, "localhost:6379", "FC1", runID)
//	if err != nil {
//		return err
//	}
//	defer l.Close()
//
//	sub, err := l.Subscribe(ctx)
//	...
//	for ev := range sub.Events() {
//		fmt.Println(ev.Kind, ev.Name, ev.Status)
//	}
package ledger
