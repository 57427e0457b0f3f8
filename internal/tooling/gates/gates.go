package gates

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tiger/reconfig-hazard-analyzer/api/resultdoc"
	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/summary"
)

// Thresholds define normative hazard limits applied to an aggregated table.
type Thresholds struct {
	// MaxCycles bounds the per-group forwarding-loop count.
	MaxCycles int `yaml:"max_cycles"`
	// MaxPotentialDeps bounds the per-group potential-dependency count.
	MaxPotentialDeps int `yaml:"max_potential_deps"`
	// TimeP90BudgetS bounds the per-group 90th-percentile wall time.
	TimeP90BudgetS float64 `yaml:"time_p90_budget_s"`
	// RequiredSuccessRatio is the minimum fraction of groups whose outcome
	// is Success.
	RequiredSuccessRatio float64 `yaml:"required_success_ratio"`
}

// DefaultThresholds returns repository baseline hazard thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxCycles:            0,
		MaxPotentialDeps:     64,
		TimeP90BudgetS:       3600,
		RequiredSuccessRatio: 1.0,
	}
}

// LoadThresholds reads YAML threshold overrides on top of the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, fmt.Errorf("read thresholds: %w", err)
	}
	thresholds := DefaultThresholds()
	if err := yaml.Unmarshal(raw, &thresholds); err != nil {
		return Thresholds{}, fmt.Errorf("parse thresholds %s: %w", path, err)
	}
	if err := thresholds.validate(); err != nil {
		return Thresholds{}, fmt.Errorf("thresholds %s: %w", path, err)
	}
	return thresholds, nil
}

func (t Thresholds) validate() error {
	if t.MaxCycles < 0 {
		return fmt.Errorf("max_cycles must be >=0")
	}
	if t.MaxPotentialDeps < 0 {
		return fmt.Errorf("max_potential_deps must be >=0")
	}
	if t.TimeP90BudgetS <= 0 {
		return fmt.Errorf("time_p90_budget_s must be >0")
	}
	if t.RequiredSuccessRatio < 0 || t.RequiredSuccessRatio > 1 {
		return fmt.Errorf("required_success_ratio must be within [0, 1]")
	}
	return nil
}

// Report summarizes hazard gate results over one aggregated table.
type Report struct {
	Rows               int      `json:"rows"`
	SuccessRows        int      `json:"success_rows"`
	SuccessRatio       float64  `json:"success_ratio"`
	WorstCycles        int      `json:"worst_cycles"`
	WorstPotentialDeps int      `json:"worst_potential_deps"`
	WorstTimeP90S      float64  `json:"worst_time_p90_s"`
	Violations         []string `json:"violations,omitempty"`
	Passed             bool     `json:"passed"`
}

// Evaluate applies hazard thresholds to aggregated rows.
func Evaluate(rows []summary.Row, thresholds Thresholds) Report {
	report := Report{Rows: len(rows)}

	for _, row := range rows {
		group := fmt.Sprintf("%s/%s/%s", row.Topology, row.Scenario, row.Spec)

		if row.Result == string(resultdoc.OutcomeSuccess) {
			report.SuccessRows++
		}
		if row.NumCycles > report.WorstCycles {
			report.WorstCycles = row.NumCycles
		}
		if row.PotentialDeps > report.WorstPotentialDeps {
			report.WorstPotentialDeps = row.PotentialDeps
		}
		if row.TimeP90 > report.WorstTimeP90S {
			report.WorstTimeP90S = row.TimeP90
		}

		if row.NumCycles > thresholds.MaxCycles {
			report.Violations = append(report.Violations, fmt.Sprintf("%s: cycles=%d exceeds max=%d", group, row.NumCycles, thresholds.MaxCycles))
		}
		if row.PotentialDeps > thresholds.MaxPotentialDeps {
			report.Violations = append(report.Violations, fmt.Sprintf("%s: potential_deps=%d exceeds max=%d", group, row.PotentialDeps, thresholds.MaxPotentialDeps))
		}
		if row.TimeP90 > thresholds.TimeP90BudgetS {
			report.Violations = append(report.Violations, fmt.Sprintf("%s: time_p90=%.2fs exceeds budget=%.2fs", group, row.TimeP90, thresholds.TimeP90BudgetS))
		}
	}

	if report.Rows > 0 {
		report.SuccessRatio = float64(report.SuccessRows) / float64(report.Rows)
	}
	if report.SuccessRatio < thresholds.RequiredSuccessRatio {
		report.Violations = append(report.Violations, fmt.Sprintf("success ratio=%.2f below required=%.2f", report.SuccessRatio, thresholds.RequiredSuccessRatio))
	}
	if report.Rows == 0 {
		report.Violations = append(report.Violations, "no aggregated rows available for gate validation")
	}

	report.Passed = len(report.Violations) == 0
	return report
}
