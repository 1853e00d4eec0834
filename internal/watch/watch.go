// Package watch follows pipeline progress through the status ledger.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/digestiflow-demux/internal/printer"
	"github.com/dyluth/digestiflow-demux/pkg/ledger"
)

// OutputFormat selects how events are rendered.
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = "default"
	OutputFormatJSON    OutputFormat = "json"
)

// StageReader is the part of the ledger PollForStage needs.
type StageReader interface {
	GetStage(ctx context.Context, stage string) (*ledger.StageRecord, error)
}

// PollForStage polls until stage has a ledger record. Returns the record or
// an error if timeout occurs. Polls every 200ms.
func PollForStage(ctx context.Context, r StageReader, stage string, timeout time.Duration) (*ledger.StageRecord, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for stage %s after %v", stage, timeout)

		case <-ticker.C:
			rec, err := r.GetStage(ctx, stage)
			if err != nil {
				if ledger.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("failed to query stage %s: %w", stage, err)
			}
			return rec, nil
		}
	}
}

// Stream writes events from sub to w until the subscription ends, ctx is
// cancelled or, when untilStage is set, that stage's completion event has
// been written.
func Stream(ctx context.Context, sub *ledger.Subscription, w io.Writer, format OutputFormat, untilStage string) error {
	errs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(w, "⚠️  %v\n", err)

		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev, format); err != nil {
				return err
			}
			if untilStage != "" && ev.Kind == ledger.EventStage && ev.Name == untilStage {
				return nil
			}
		}
	}
}

func writeEvent(w io.Writer, ev *ledger.Event, format OutputFormat) error {
	if format == OutputFormatJSON {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	ts := time.UnixMilli(ev.AtMs).Format("15:04:05")
	var line string
	switch ev.Kind {
	case ledger.EventStage:
		line = fmt.Sprintf("[%s] 🏁 stage %s %s", ts, ev.Name, printer.State(ev.Status))
	default:
		line = fmt.Sprintf("[%s] %s %s", ts, printer.State(ev.Status), ev.Name)
		if ev.Error != "" {
			line += ": " + ev.Error
		}
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
