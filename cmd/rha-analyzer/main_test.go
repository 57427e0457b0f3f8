package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/report"
	"github.com/tiger/reconfig-hazard-analyzer/internal/measurement"
)

func resultDocJSON(topo string, timeSec float64) string {
	return fmt.Sprintf(`{
	"topo": %q,
	"scenario": "DelBestRoute",
	"spec_builder": {"Scalable": 3},
	"spec": {"100": []},
	"decomp": {"schedule": {"100": {"0": {"fw_state": 1, "old_route": 1, "new_route": 2}}}},
	"rand": false,
	"data": {
		"time": %v,
		"result": {"Success": {"cost": 3, "steps": 5, "slow_steps": 0, "max_routes": 12, "routes_before": 4, "routes_after": 6, "max_routes_baseline": 10}},
		"num_variables": 120,
		"num_equations": 340,
		"model_steps": 7,
		"avg_path_length": 2.5,
		"fw_state_before": {"state": {"0": {"100": [1]}, "1": {"100": [4294967295]}, "2": {"100": [1]}}},
		"fw_state_after": {"state": {"0": {"100": [2]}, "1": {"100": [4294967295]}, "2": {"100": [1]}}}
	},
	"net": {"net": {"routers": {"0": {}, "1": {}, "2": {}}}}
}`, topo, timeSec)
}

func writeMeasurementSet(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir measurement dir: %v", err)
	}
	docs := map[string]string{
		"Abilene_0.json":    resultDocJSON("Abilene", 10),
		"Abilene_1.json":    resultDocJSON("Abilene", 20),
		"Bellcanada_0.json": resultDocJSON("Bellcanada", 5),
	}
	for file, body := range docs {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
	}
	return dir
}

func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestAnalyzeCommandWritesAggregatedTable(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := writeMeasurementSet(t, root, "eval_2024-02-11_10-30-00")

	stdout, _, err := runCommand(t, "analyze", "--results-dir", root, "--measurement", "eval_2024-02-11_10-30-00")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	outputPath := filepath.Join(dir, report.DefaultFileName)
	rows, err := report.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read aggregated table: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 aggregated rows, got %d", len(rows))
	}
	if !strings.Contains(stdout, "Written "+outputPath) {
		t.Fatalf("expected stdout to report written table, got:\n%s", stdout)
	}
}

func TestAnalyzeCommandSelectsNewestMeasurementByDefault(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeMeasurementSet(t, root, "eval_2024-02-10_09-00-00")
	newest := writeMeasurementSet(t, root, "eval_2024-02-12_09-00-00")

	_, _, err := runCommand(t, "analyze", "--results-dir", root, "--prefix", "eval_")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if _, err := os.Stat(filepath.Join(newest, report.DefaultFileName)); err != nil {
		t.Fatalf("expected table in newest measurement set: %v", err)
	}
}

func TestAnalyzeCommandStrictSchemaValidation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := writeMeasurementSet(t, root, "eval_strict")
	schemaPath := filepath.Join("..", "..", "docs", "ResultDocument.schema.json")

	_, _, err := runCommand(t, "analyze",
		"--results-dir", root,
		"--measurement", "eval_strict",
		"--strict",
		"--schema", schemaPath,
	)
	if err != nil {
		t.Fatalf("strict analyze: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, report.DefaultFileName)); err != nil {
		t.Fatalf("expected aggregated table: %v", err)
	}
}

func TestAnalyzeCommandNoMeasurementsIsFatal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, _, err := runCommand(t, "analyze", "--results-dir", root)
	if !errors.Is(err, measurement.ErrNoMeasurementsFound) {
		t.Fatalf("expected ErrNoMeasurementsFound, got %v", err)
	}
}

func TestAnalyzeCommandRequiresMeasurementWithS3Bucket(t *testing.T) {
	t.Parallel()

	_, _, err := runCommand(t, "analyze", "--s3-bucket", "results-bucket")
	if err == nil || !strings.Contains(err.Error(), "--measurement is required") {
		t.Fatalf("expected missing measurement error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(stdout, "rha-analyzer "+version) {
		t.Fatalf("unexpected version output: %q", stdout)
	}
}
