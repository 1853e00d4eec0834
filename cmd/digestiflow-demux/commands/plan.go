package commands

import (
	"fmt"

	"github.com/dyluth/digestiflow-demux/internal/printer"
	"github.com/spf13/cobra"
)

var (
	planTarget       string
	planOutputFormat string
)

var planCmd = &cobra.Command{
	Use:   "plan [output_dir] [input_dirs...]",
	Short: "Print the task graph without running anything",
	Long: `Plan builds the task graph exactly as 'run' would and prints it in
topological order.

Output Formats:
  default - Table with depth, kind, task name and dependencies
  jsonl   - One JSON object per task including declared inputs and outputs`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planTarget, "target", "", "Only show the ancestors of this task")
	planCmd.Flags().StringVarP(&planOutputFormat, "output", "o", "default", "Output format (default or jsonl)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	if planOutputFormat != "default" && planOutputFormat != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", planOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	s, err := selectStrategy(cfg)
	if err != nil {
		return err
	}
	g, err := buildGraph(cfg, s, planTarget)
	if err != nil {
		return err
	}

	if planOutputFormat == "jsonl" {
		return printer.FormatPlanJSONL(cmd.OutOrStdout(), g)
	}

	if s != nil {
		printer.Info("Strategy: %s\n", s.Kind())
	}
	printer.FormatPlan(cmd.OutOrStdout(), g, cfg.FlowcellID())
	return nil
}
