package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/pipeline"
	"github.com/tiger/reconfig-hazard-analyzer/internal/measurement"
	"github.com/tiger/reconfig-hazard-analyzer/internal/measurement/s3source"
	"github.com/tiger/reconfig-hazard-analyzer/internal/observability/telemetry"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type analyzeOptions struct {
	resultsDir  string
	measurement string
	prefix      string
	timeout     float64
	strict      bool
	schemaPath  string
	s3Bucket    string
	s3Prefix    string
	s3Region    string
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "rha-analyzer",
		Short:        "Convergence hazard analysis over reconfiguration experiment results",
		Long: `rha-analyzer reads the result documents of one measurement set, builds the
forwarding-change dependency graph of every run, computes hazard metrics
(forwarding loops, potential dependencies) and duration estimates, and writes
the aggregated statistics table consumed by the plotting tools.`,
		SilenceUsage: true,
	}

	opts := analyzeOptions{}
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one measurement set and write its aggregated hazard table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, opts)
		},
	}
	analyzeCmd.Flags().StringVar(&opts.resultsDir, "results-dir", "results", "Results root holding measurement directories")
	analyzeCmd.Flags().StringVar(&opts.measurement, "measurement", "", "Measurement set name (default: newest matching set)")
	analyzeCmd.Flags().StringVar(&opts.prefix, "prefix", "", "Measurement name prefix filter")
	analyzeCmd.Flags().Float64Var(&opts.timeout, "timeout", 0, "Wall-time clip per run in seconds (0 disables clipping)")
	analyzeCmd.Flags().BoolVar(&opts.strict, "strict", false, "Validate documents against the JSON schema before decoding")
	analyzeCmd.Flags().StringVar(&opts.schemaPath, "schema", filepath.Join("docs", "ResultDocument.schema.json"), "Schema path used by --strict")
	analyzeCmd.Flags().StringVar(&opts.s3Bucket, "s3-bucket", "", "Download the measurement set from this S3 bucket first")
	analyzeCmd.Flags().StringVar(&opts.s3Prefix, "s3-prefix", "", "Key prefix inside the S3 bucket")
	analyzeCmd.Flags().StringVar(&opts.s3Region, "s3-region", "", "S3 bucket region")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rha-analyzer %s\n", version)
		},
	}

	rootCmd.AddCommand(analyzeCmd, versionCmd)
	return rootCmd
}

func runAnalyze(cmd *cobra.Command, opts analyzeOptions) error {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	if opts.s3Bucket != "" {
		if opts.measurement == "" {
			return fmt.Errorf("--measurement is required with --s3-bucket")
		}
		source, err := s3source.NewSource(s3source.Config{
			Bucket: opts.s3Bucket,
			Prefix: opts.s3Prefix,
			Region: opts.s3Region,
		})
		if err != nil {
			return err
		}
		destDir := filepath.Join(opts.resultsDir, opts.measurement)
		files, err := source.Download(cmd.Context(), opts.measurement, destDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "downloaded %d result documents into %s\n", len(files), destDir)
	}

	set, err := measurement.Select(opts.resultsDir, measurement.Filter{Prefix: opts.prefix}, opts.measurement, stderr)
	if err != nil {
		return err
	}

	telemetryPipeline, err := telemetry.NewPipelineFromEnv()
	if err != nil {
		return err
	}
	var emitter telemetry.Emitter
	if telemetryPipeline != nil {
		emitter = telemetryPipeline
		defer telemetryPipeline.Close()
	}

	cfg := pipeline.Config{
		Dir:         set.Path,
		Timeout:     opts.timeout,
		Measurement: set.Name,
		Stdout:      stdout,
		Stderr:      stderr,
		Telemetry:   emitter,
	}
	if opts.strict {
		cfg.SchemaPath = opts.schemaPath
	}

	batch, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	result, err := batch.Run()
	if err != nil {
		return err
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(stderr, "skipped %d of %d result documents\n", len(result.Skipped), result.Processed+len(result.Skipped))
	}
	return nil
}
