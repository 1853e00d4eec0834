package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dyluth/digestiflow-demux/internal/layout"
	"github.com/dyluth/digestiflow-demux/internal/printer"
	"github.com/dyluth/digestiflow-demux/internal/tracker"
	"github.com/dyluth/digestiflow-demux/pkg/ledger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [output_dir]",
	Short: "Show which stage markers exist",
	Long: `Status reports every stage marker as Pending or Complete.

When a ledger is configured it also shows which run completed each stage
and any tasks the ledger last saw failed or blocked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	tr := tracker.New(layout.New(cfg.OutputDir), nil, nil)
	stages := tr.Status()

	// Reads only; the run ID is never written.
	l, err := connectLedger(ctx, cfg, uuid.New().String())
	if err != nil {
		return err
	}

	var recorded map[string]string
	var unfinished []string
	if l != nil {
		defer l.Close()
		recorded, unfinished, err = ledgerSummary(ctx, l)
		if err != nil {
			return printer.Error("Failed to read the status ledger", err.Error(), nil)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Flowcell %s, output %s\n\n", cfg.FlowcellID(), cfg.OutputDir)
	printer.FormatStatus(out, stages, recorded, time.Now())

	if len(unfinished) > 0 {
		fmt.Fprintln(out)
		printer.Warning("%d task(s) not done in the last recorded run:\n", len(unfinished))
		for _, line := range unfinished {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
	return nil
}

// ledgerSummary returns the run ID per recorded stage and the tasks whose
// last state was failed or blocked.
func ledgerSummary(ctx context.Context, l *ledger.Ledger) (map[string]string, []string, error) {
	recorded := make(map[string]string)
	for _, stage := range tracker.Stages {
		rec, err := l.GetStage(ctx, string(stage))
		if ledger.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		recorded[string(stage)] = rec.RunID
	}

	states, err := l.TaskStates(ctx)
	if err != nil {
		return nil, nil, err
	}
	var unfinished []string
	for task, state := range states {
		if state == "failed" || state == "blocked" {
			unfinished = append(unfinished, fmt.Sprintf("%-8s %s", state, task))
		}
	}
	sort.Strings(unfinished)
	return recorded, unfinished, nil
}
