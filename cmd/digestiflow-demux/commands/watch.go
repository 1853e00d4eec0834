package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/digestiflow-demux/internal/printer"
	"github.com/dyluth/digestiflow-demux/internal/tracker"
	"github.com/dyluth/digestiflow-demux/internal/watch"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchWaitStage    string
	watchTimeout      time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream stage and task events from the status ledger",
	Long: `Watch subscribes to the ledger of the configured flowcell and prints
stage and task events as a running pipeline publishes them.

With --wait, watch instead blocks until the given stage has been recorded
and exits non-zero on timeout.

Output Formats:
  default - Human-readable lines with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Follow a run until it finishes
  digestiflow-demux watch --config flowcell.yml

  # Block until the tarballs are done
  digestiflow-demux watch --config flowcell.yml --wait archive --timeout 2h`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringVar(&watchWaitStage, "wait", "", "Wait for this stage (demux, qc, archive, final) instead of streaming")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", time.Hour, "Give up waiting after this long")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var format watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		format = watch.OutputFormatDefault
	case "json":
		format = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	if cfg.Ledger.RedisAddr == "" {
		return printer.Error(
			"No ledger configured",
			"watch reads events from the Redis status ledger.",
			[]string{"Set ledger.redis_addr or DEMUX_REDIS_ADDR"},
		)
	}

	l, err := connectLedger(ctx, cfg, uuid.New().String())
	if err != nil {
		return err
	}
	defer l.Close()

	if watchWaitStage != "" {
		rec, err := watch.PollForStage(ctx, l, watchWaitStage, watchTimeout)
		if err != nil {
			return printer.Error(fmt.Sprintf("Stage %s not complete", watchWaitStage), err.Error(), nil)
		}
		printer.Success("Stage %s completed by run %s\n", rec.Stage, rec.RunID)
		return nil
	}

	sub, err := l.Subscribe(ctx)
	if err != nil {
		return printer.Error("Failed to subscribe to ledger events", err.Error(), nil)
	}
	defer sub.Close()

	if format == watch.OutputFormatDefault {
		printer.Step("Watching flowcell %s (Ctrl+C to stop)\n", cfg.FlowcellID())
	}
	return watch.Stream(ctx, sub, cmd.OutOrStdout(), format, string(tracker.StageFinal))
}
