package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/report"
	"github.com/tiger/reconfig-hazard-analyzer/internal/tooling/gates"
	"github.com/tiger/reconfig-hazard-analyzer/internal/tooling/regression"
	"github.com/tiger/reconfig-hazard-analyzer/internal/tooling/validation"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "validate-contracts":
		fixtureRoot := filepath.Join("test", "contract", "fixtures")
		if len(os.Args) >= 3 {
			fixtureRoot = os.Args[2]
		}
		summary, err := validation.ValidateContractFixtures(fixtureRoot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "contract validation failed to execute: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(validation.RenderSummary(summary))
		if summary.Failed > 0 {
			os.Exit(1)
		}
	case "hazard-gates-report":
		if len(os.Args) < 3 {
			printUsage()
			os.Exit(2)
		}
		tablePath := os.Args[2]
		outputPath := filepath.Join("artifacts", "gates", "hazard-gates-report.json")
		if len(os.Args) >= 4 {
			outputPath = os.Args[3]
		}
		thresholdsPath := ""
		if len(os.Args) >= 5 {
			thresholdsPath = os.Args[4]
		}
		if err := writeHazardGatesReport(tablePath, outputPath, thresholdsPath); err != nil {
			fmt.Fprintf(os.Stderr, "hazard gates report failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("hazard gates report written: %s\n", outputPath)
		fmt.Printf("hazard gates summary written: %s\n", summaryPathFor(outputPath))
	case "table-diff":
		if len(os.Args) < 4 {
			printUsage()
			os.Exit(2)
		}
		policyPath := ""
		if len(os.Args) >= 5 {
			policyPath = os.Args[4]
		}
		if err := runTableDiff(os.Stdout, os.Args[2], os.Args[3], policyPath); err != nil {
			fmt.Fprintf(os.Stderr, "table diff failed: %v\n", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  rha-cli validate-contracts [fixture_root]")
	fmt.Fprintln(os.Stderr, "  rha-cli hazard-gates-report <table.csv> [output.json] [thresholds.yaml]")
	fmt.Fprintln(os.Stderr, "  rha-cli table-diff <baseline.csv> <candidate.csv> [policy.json]")
}

type hazardGatesArtifact struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	TablePath      string           `json:"table_path"`
	Thresholds     gates.Thresholds `json:"thresholds"`
	Report         gates.Report     `json:"report"`
}

// writeHazardGatesReport evaluates one aggregated hazard table against the
// release thresholds and writes the JSON artifact plus a markdown summary.
// The artifacts are written even when the gate fails so CI can attach them.
func writeHazardGatesReport(tablePath, outputPath, thresholdsPath string) error {
	rows, err := report.ReadFile(tablePath)
	if err != nil {
		return fmt.Errorf("read aggregated table: %w", err)
	}

	thresholds := gates.DefaultThresholds()
	if thresholdsPath != "" {
		thresholds, err = gates.LoadThresholds(thresholdsPath)
		if err != nil {
			return fmt.Errorf("load thresholds: %w", err)
		}
	}

	gateReport := gates.Evaluate(rows, thresholds)
	artifact := hazardGatesArtifact{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339),
		TablePath:      tablePath,
		Thresholds:     thresholds,
		Report:         gateReport,
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	encoded, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := os.WriteFile(outputPath, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.WriteFile(summaryPathFor(outputPath), []byte(renderHazardGatesSummary(artifact)), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if !gateReport.Passed {
		return fmt.Errorf("hazard gates failed: %s", strings.Join(gateReport.Violations, "; "))
	}
	return nil
}

func summaryPathFor(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".md"
}

// runTableDiff compares a candidate aggregated table against a baseline and
// enforces the divergence policy. Every divergence is printed; the error
// names the failing count so CI fails the run.
func runTableDiff(w io.Writer, baselinePath, candidatePath, policyPath string) error {
	baseline, err := report.ReadFile(baselinePath)
	if err != nil {
		return fmt.Errorf("read baseline table: %w", err)
	}
	candidate, err := report.ReadFile(candidatePath)
	if err != nil {
		return fmt.Errorf("read candidate table: %w", err)
	}

	policy := regression.DivergencePolicy{}
	if policyPath != "" {
		raw, readErr := os.ReadFile(policyPath)
		if readErr != nil {
			return fmt.Errorf("read divergence policy: %w", readErr)
		}
		if err := json.Unmarshal(raw, &policy); err != nil {
			return fmt.Errorf("decode divergence policy: %w", err)
		}
	}

	divergences := regression.CompareTables(baseline, candidate)
	evaluation := regression.EvaluateDivergences(divergences, policy)

	for _, d := range divergences {
		fmt.Fprintf(w, "%s %s: %s\n", d.Class, d.Scope, d.Message)
	}
	for _, missing := range evaluation.MissingExpected {
		fmt.Fprintf(w, "missing expected divergence: class=%s scope=%s\n", missing.Class, missing.Scope)
	}
	fmt.Fprintf(w, "table diff: %d divergences, %d failing\n", len(divergences), len(evaluation.Failing))

	if len(evaluation.Failing) > 0 {
		return fmt.Errorf("%d failing divergences between %s and %s", len(evaluation.Failing), baselinePath, candidatePath)
	}
	return nil
}

func renderHazardGatesSummary(artifact hazardGatesArtifact) string {
	status := "PASS"
	if !artifact.Report.Passed {
		status = "FAIL"
	}
	lines := []string{
		"# Hazard Gates Report",
		"",
		"Generated: " + artifact.GeneratedAtUTC,
		"Table: " + artifact.TablePath,
		"Status: " + status,
		"",
		fmt.Sprintf("- aggregated rows: %d", artifact.Report.Rows),
		fmt.Sprintf("- success ratio: %.3f (required %.3f)", artifact.Report.SuccessRatio, artifact.Thresholds.RequiredSuccessRatio),
		fmt.Sprintf("- worst cycle count: %d (max %d)", artifact.Report.WorstCycles, artifact.Thresholds.MaxCycles),
		fmt.Sprintf("- worst potential dependencies: %d (max %d)", artifact.Report.WorstPotentialDeps, artifact.Thresholds.MaxPotentialDeps),
		fmt.Sprintf("- worst time p90: %.1fs (budget %.1fs)", artifact.Report.WorstTimeP90S, artifact.Thresholds.TimeP90BudgetS),
	}
	if len(artifact.Report.Violations) > 0 {
		lines = append(lines, "", "## Violations", "")
		for _, violation := range artifact.Report.Violations {
			lines = append(lines, "- "+violation)
		}
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}
