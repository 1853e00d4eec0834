package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

var (
	configPath  string
	projectUUID string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "digestiflow-demux",
	Short: "Demultiplex an Illumina flowcell into per-sample FASTQ files",
	Long: `digestiflow-demux turns a sequencing run folder into per-sample,
per-lane FASTQ files with QC reports, and/or per-lane tarballs of the raw
run folder, depending on the configured delivery types.

Every stage leaves a marker file in the output directory. Re-running picks
up where the last run stopped: tasks whose outputs exist are skipped.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted coloured errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the flowcell configuration document (required)")
	rootCmd.PersistentFlags().StringVar(&projectUUID, "project-uuid", "", "Override the project UUID")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	_ = rootCmd.MarkPersistentFlagRequired("config")
}
