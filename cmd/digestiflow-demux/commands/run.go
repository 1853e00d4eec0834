package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/digestiflow-demux/internal/config"
	"github.com/dyluth/digestiflow-demux/internal/graph"
	"github.com/dyluth/digestiflow-demux/internal/orchestrator"
	"github.com/dyluth/digestiflow-demux/internal/printer"
	"github.com/dyluth/digestiflow-demux/internal/runner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runTarget string

var runCmd = &cobra.Command{
	Use:   "run [output_dir] [input_dirs...]",
	Short: "Run the pipeline until the final marker exists",
	Long: `Run builds the task graph for the configured flowcell and executes it
with at most 'cores' tasks in flight.

Positional arguments override output_dir and input_dirs from the
configuration document. Tasks whose outputs already exist are skipped, so
an interrupted run can simply be started again.

Examples:
  # Everything from the document
  digestiflow-demux run --config flowcell.yml

  # Explicit directories
  digestiflow-demux run --config flowcell.yml /data/out /data/runs/RUN1

  # Only produce the lane tarballs
  digestiflow-demux run --config flowcell.yml --target stage_archive`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTarget, "target", "", fmt.Sprintf("Task to build (default %q)", graph.TaskFinal))
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	s, err := selectStrategy(cfg)
	if err != nil {
		return err
	}
	g, err := buildGraph(cfg, s, runTarget)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	r, err := newRunner(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}

	opts := orchestrator.Options{Runner: r, Logger: logger, RunID: runID}

	l, err := connectLedger(ctx, cfg, runID)
	if err != nil {
		return err
	}
	if l != nil {
		defer l.Close()
		if err := l.StartRun(ctx); err != nil {
			printer.Warning("Failed to record run in ledger: %v\n", err)
		}
		// Only set when non-nil so the engine sees a nil interface otherwise.
		opts.Sink = l
		opts.Observer = l
	}

	if s != nil {
		printer.Step("Strategy %s, %d task(s)\n", s.Kind(), g.Len())
	} else {
		printer.Step("%d task(s)\n", g.Len())
	}

	engine := orchestrator.NewEngine(cfg, s, opts)
	report, runErr := engine.Run(ctx, g)
	printer.FormatReport(printer.Output, report)

	if runErr != nil {
		return runFailure(cfg, report, runErr)
	}

	printer.Success("Run %s complete\n", runID[:8])
	return nil
}

// newRunner picks the tool runner from tools.runner.
func newRunner(ctx context.Context, cfg *config.Config, runID string, logger *zap.Logger) (runner.Runner, error) {
	if cfg.Tools.Runner != config.RunnerDocker {
		return runner.NewExecRunner(logger), nil
	}

	cli, err := runner.NewDockerClient(ctx)
	if err != nil {
		return nil, printer.Error(
			"Docker is not available",
			err.Error(),
			[]string{
				"Start the Docker daemon",
				"Set tools.runner to 'exec' to run tools on the host",
			},
		)
	}
	return runner.NewDockerRunner(cli, cfg.Tools.Image, runner.BuildLabels(cfg.FlowcellID(), runID), logger), nil
}

func runFailure(cfg *config.Config, report *orchestrator.Report, err error) error {
	ctxInfo := [][2]string{{"Output dir", cfg.OutputDir}}
	for _, name := range report.Failed() {
		res := report.Results[name]
		var toolErr *runner.ToolError
		if errors.As(res.Err, &toolErr) {
			ctxInfo = append(ctxInfo, [2]string{name, fmt.Sprintf("%s exited with %d", toolErr.Tool, toolErr.ExitCode)})
		}
	}
	return printer.ErrorWithContext(
		"Run incomplete",
		err.Error(),
		ctxInfo,
		[]string{"Fix the failing task(s) and run again; finished tasks will be skipped."},
	)
}
