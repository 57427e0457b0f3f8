package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/aggregate"
	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/duration"
	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/fwgraph"
	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/hazard"
	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/record"
	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/report"
	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/summary"
	"github.com/tiger/reconfig-hazard-analyzer/internal/observability/telemetry"
	telemetrycontext "github.com/tiger/reconfig-hazard-analyzer/internal/observability/telemetry/context"
)

// Config controls one batch analysis pass.
type Config struct {
	// Dir is the measurement directory holding *.json result documents.
	Dir string
	// Timeout clips each run's observed wall time, in seconds. Zero or
	// negative disables clipping.
	Timeout float64
	// SchemaPath enables strict mode: documents are validated against the
	// JSON schema before decoding.
	SchemaPath string
	// BatchID correlates telemetry across one pass. Defaults to a fresh UUID.
	BatchID string
	// Measurement names the set for telemetry correlation. Defaults to the
	// base name of Dir.
	Measurement string

	Stdout    io.Writer
	Stderr    io.Writer
	Telemetry telemetry.Emitter
	Now       func() time.Time
}

func (c Config) withDefaults() Config {
	if c.BatchID == "" {
		c.BatchID = uuid.NewString()
	}
	if c.Measurement == "" {
		c.Measurement = filepath.Base(c.Dir)
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	if c.Telemetry == nil {
		c.Telemetry = telemetry.DefaultEmitter()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// FileError records one result document dropped by a per-file error.
type FileError struct {
	File string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// Result captures one completed batch pass.
type Result struct {
	// Rows holds the aggregated table exactly as written.
	Rows       []summary.Row
	OutputPath string
	// Processed counts result documents that produced a row.
	Processed int
	// Skipped lists documents dropped by per-file errors, in encounter order.
	Skipped []FileError
}

// Batch analyzes every result document of one measurement directory.
type Batch struct {
	cfg    Config
	loader *record.Loader
}

// New constructs a batch pass over cfg.Dir.
func New(cfg Config) (*Batch, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("measurement directory is required")
	}
	cfg = cfg.withDefaults()
	loader, err := record.NewLoader(record.Config{
		Timeout:    cfg.Timeout,
		SchemaPath: cfg.SchemaPath,
	})
	if err != nil {
		return nil, err
	}
	return &Batch{cfg: cfg, loader: loader}, nil
}

// Run iterates every *.json document in sorted name order. Per-file errors
// are reported and skipped; the aggregated table is written from the rows
// that succeeded. Zero surviving rows is fatal.
func (b *Batch) Run() (*Result, error) {
	files, err := b.listResultFiles()
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var rows []summary.Row
	for _, path := range files {
		fmt.Fprintf(b.cfg.Stdout, "working on %s\n", path)
		row, err := b.analyzeFile(path)
		if err != nil {
			fileErr := FileError{File: path, Err: err}
			result.Skipped = append(result.Skipped, fileErr)
			fmt.Fprintf(b.cfg.Stderr, "skipping %s: %v\n", path, err)
			b.emitSkip(path, err)
			continue
		}
		rows = append(rows, row)
		result.Processed++
	}

	folded, err := aggregate.Fold(rows)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", b.cfg.Dir, err)
	}

	outputPath := filepath.Join(b.cfg.Dir, report.DefaultFileName)
	if err := report.WriteFile(outputPath, folded); err != nil {
		return nil, err
	}
	fmt.Fprintf(b.cfg.Stdout, "Written %s\n", outputPath)

	result.Rows = folded
	result.OutputPath = outputPath
	b.emitBatchTotals(len(folded))
	return result, nil
}

// listResultFiles returns the measurement's *.json paths in sorted name order.
func (b *Batch) listResultFiles() ([]string, error) {
	entries, err := os.ReadDir(b.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read measurement directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(b.cfg.Dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (b *Batch) analyzeFile(path string) (summary.Row, error) {
	started := b.cfg.Now()

	rec, err := b.loader.LoadFile(path)
	if err != nil {
		return summary.Row{}, err
	}
	graph, updated, err := fwgraph.Build(rec.FwBefore, rec.FwAfter)
	if err != nil {
		return summary.Row{}, err
	}
	metrics := hazard.Compute(graph, updated)
	estTime, err := duration.Estimate(rec)
	if err != nil {
		return summary.Row{}, err
	}
	row := summary.Build(rec, len(updated), metrics, estTime)

	b.emitRun(path, rec, metrics, started)
	return row, nil
}

func (b *Batch) emitRun(path string, rec *record.RunRecord, metrics hazard.Metrics, started time.Time) {
	correlation, err := telemetrycontext.Resolve(telemetrycontext.ResolveInput{
		BatchID:              b.cfg.BatchID,
		Measurement:          b.cfg.Measurement,
		File:                 filepath.Base(path),
		Topology:             rec.Topology,
		WallClockTimestampMS: started.UnixMilli(),
	})
	if err != nil {
		return
	}
	attrs := map[string]string{"topo": rec.Topology, "scenario": rec.Scenario}
	b.cfg.Telemetry.EmitMetric(telemetry.MetricRunWallTimeSeconds, rec.Time, "s", attrs, correlation)
	b.cfg.Telemetry.EmitMetric(telemetry.MetricRunCycleCount, float64(metrics.Cycles), "count", attrs, correlation)
	b.cfg.Telemetry.EmitMetric(telemetry.MetricRunPotentialDeps, float64(metrics.PotentialDeps), "count", attrs, correlation)
	b.cfg.Telemetry.EmitSpan("file_analysis", "internal", started.UnixMilli(), b.cfg.Now().UnixMilli(), attrs, correlation)
}

func (b *Batch) emitSkip(path string, cause error) {
	correlation, err := telemetrycontext.Resolve(telemetrycontext.ResolveInput{
		BatchID:              b.cfg.BatchID,
		Measurement:          b.cfg.Measurement,
		File:                 filepath.Base(path),
		WallClockTimestampMS: b.cfg.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	b.cfg.Telemetry.EmitMetric(telemetry.MetricFilesSkippedTotal, 1, "count", nil, correlation)
	b.cfg.Telemetry.EmitLog("batch_event", "warn", cause.Error(), map[string]string{"file": filepath.Base(path)}, correlation)
}

func (b *Batch) emitBatchTotals(rowCount int) {
	correlation, err := telemetrycontext.Resolve(telemetrycontext.ResolveInput{
		BatchID:              b.cfg.BatchID,
		Measurement:          b.cfg.Measurement,
		WallClockTimestampMS: b.cfg.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	b.cfg.Telemetry.EmitMetric(telemetry.MetricBatchRowsTotal, float64(rowCount), "count", nil, correlation)
}
