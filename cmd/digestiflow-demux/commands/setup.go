package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/digestiflow-demux/internal/config"
	"github.com/dyluth/digestiflow-demux/internal/graph"
	"github.com/dyluth/digestiflow-demux/internal/layout"
	"github.com/dyluth/digestiflow-demux/internal/printer"
	"github.com/dyluth/digestiflow-demux/internal/strategy"
	"github.com/dyluth/digestiflow-demux/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// loadConfig reads --config with positional [output_dir] [input_dirs...]
// and --project-uuid applied on top.
func loadConfig(args []string) (*config.Config, error) {
	ov := config.Overrides{ProjectUUID: projectUUID}
	if len(args) > 0 {
		ov.OutputDir = args[0]
	}
	if len(args) > 1 {
		ov.InputDirs = args[1:]
	}

	cfg, err := config.LoadWithOverrides(configPath, ov)
	if err == nil {
		return cfg, nil
	}

	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return nil, printer.ErrorWithContext(
			"Invalid configuration",
			cfgErr.Msg,
			[][2]string{{"Field", cfgErr.Field}, {"Config", configPath}},
			[]string{"Fix the field in the configuration document and re-run."},
		)
	}
	return nil, printer.Error(
		"Failed to load configuration",
		err.Error(),
		[]string{fmt.Sprintf("Check that %s exists and is valid YAML.", configPath)},
	)
}

// newLogger builds the production logger, at debug level with --verbose.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// selectStrategy returns nil when FASTQ output is not delivered.
func selectStrategy(cfg *config.Config) (strategy.Strategy, error) {
	if !cfg.Delivers(config.DeliverySeq) {
		return nil, nil
	}

	var meta strategy.RunMetadata
	if len(cfg.Flowcell.DemuxReadsOverride) == 0 {
		m, err := strategy.MetadataFor(cfg)
		if err != nil {
			return nil, printer.Error(
				"Cannot determine run metadata",
				err.Error(),
				[]string{
					"Set flowcell.rta_version in the configuration document",
					"Check that the first input dir is a run folder with RunParameters.xml",
				},
			)
		}
		meta = m
	}

	s, err := strategy.Select(cfg, meta)
	if err != nil {
		return nil, printer.Error("Cannot select a demultiplexing strategy", err.Error(), nil)
	}
	return s, nil
}

// buildGraph builds the task graph, optionally pruned to target.
func buildGraph(cfg *config.Config, s strategy.Strategy, target string) (*graph.Graph, error) {
	g, err := graph.Build(cfg, s, layout.New(cfg.OutputDir))
	if err != nil {
		return nil, printer.Error("Failed to build task graph", err.Error(), nil)
	}
	if target == "" {
		return g, nil
	}

	pruned, err := g.Prune(target)
	if err != nil {
		return nil, printer.Error(
			"Unknown target",
			err.Error(),
			[]string{"Run 'digestiflow-demux plan' to list task names."},
		)
	}
	return pruned, nil
}

// connectLedger returns nil when no Redis address is configured.
func connectLedger(ctx context.Context, cfg *config.Config, runID string) (*ledger.Ledger, error) {
	if cfg.Ledger.RedisAddr == "" {
		return nil, nil
	}

	l, err := ledger.Connect(ctx, cfg.Ledger.RedisAddr, cfg.Ledger.Instance, runID)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"Failed to connect to the status ledger",
			err.Error(),
			[][2]string{{"Address", cfg.Ledger.RedisAddr}},
			[]string{
				"Start Redis at the configured address",
				"Clear ledger.redis_addr (or DEMUX_REDIS_ADDR) to run without the ledger",
			},
		)
	}
	return l, nil
}
