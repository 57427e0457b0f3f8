package regression

import (
	"fmt"
	"math"
	"sort"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/aggregate"
	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/summary"
)

// DivergenceClass labels one kind of difference between two aggregated
// hazard tables.
type DivergenceClass string

const (
	// RowMissing marks a grouping key present in the baseline but absent
	// from the candidate.
	RowMissing DivergenceClass = "row_missing"
	// RowNew marks a grouping key the baseline does not have.
	RowNew DivergenceClass = "row_new"
	// OutcomeFlip marks a changed aggregated result kind.
	OutcomeFlip DivergenceClass = "outcome_flip"
	// HazardDrift marks moved hazard counters (cycles, potential deps,
	// forwarding updates, node count, duration estimate).
	HazardDrift DivergenceClass = "hazard_drift"
	// TimingDrift marks moved wall-time statistics.
	TimingDrift DivergenceClass = "timing_drift"
)

// Divergence is one observed difference, scoped to a grouping key.
type Divergence struct {
	Class    DivergenceClass `json:"class"`
	Scope    string          `json:"scope"`
	Message  string          `json:"message"`
	DiffS    *float64        `json:"diff_s,omitempty"`
	Expected bool            `json:"expected,omitempty"`
}

// ExpectedDivergence declares policy-approved divergences by class and scope.
type ExpectedDivergence struct {
	Class    DivergenceClass `json:"class"`
	Scope    string          `json:"scope"`
	Approved bool            `json:"approved,omitempty"`
}

// DivergencePolicy defines fail criteria for table comparison.
type DivergencePolicy struct {
	TimingToleranceS float64              `json:"timing_tolerance_s"`
	Expected         []ExpectedDivergence `json:"expected,omitempty"`
}

// DivergenceEvaluation returns policy outcomes for table divergences.
type DivergenceEvaluation struct {
	Failing         []Divergence         `json:"failing"`
	Unexplained     []Divergence         `json:"unexplained"`
	MissingExpected []ExpectedDivergence `json:"missing_expected,omitempty"`
}

// CompareTables diffs candidate against baseline by grouping key. Hazard
// counters are compared exactly; of the time statistics the mean, median,
// and p90 are compared, each yielding a timing divergence carrying the
// absolute difference in seconds.
func CompareTables(baseline, candidate []summary.Row) []Divergence {
	baseByKey := indexRows(baseline)
	candByKey := indexRows(candidate)

	var divergences []Divergence
	for _, key := range sortedKeys(baseByKey, candByKey) {
		base, inBase := baseByKey[key]
		cand, inCand := candByKey[key]
		scope := scopeOf(key)

		if !inCand {
			divergences = append(divergences, Divergence{
				Class:   RowMissing,
				Scope:   scope,
				Message: "grouping key missing from candidate table",
			})
			continue
		}
		if !inBase {
			divergences = append(divergences, Divergence{
				Class:   RowNew,
				Scope:   scope,
				Message: "grouping key absent from baseline table",
			})
			continue
		}

		if base.Result != cand.Result {
			divergences = append(divergences, Divergence{
				Class:   OutcomeFlip,
				Scope:   scope,
				Message: fmt.Sprintf("result changed: %s -> %s", base.Result, cand.Result),
			})
		}
		divergences = appendCounterDrift(divergences, scope, "nodes", base.Nodes, cand.Nodes)
		divergences = appendCounterDrift(divergences, scope, "num_fw_updates", base.NumFwUpdates, cand.NumFwUpdates)
		divergences = appendCounterDrift(divergences, scope, "num_cycles", base.NumCycles, cand.NumCycles)
		divergences = appendCounterDrift(divergences, scope, "potential_deps", base.PotentialDeps, cand.PotentialDeps)
		divergences = appendCounterDrift(divergences, scope, "est_time", base.EstTime, cand.EstTime)
		divergences = appendTimingDrift(divergences, scope, "time", base.Time, cand.Time)
		divergences = appendTimingDrift(divergences, scope, "time_p50", base.TimeP50, cand.TimeP50)
		divergences = appendTimingDrift(divergences, scope, "time_p90", base.TimeP90, cand.TimeP90)
	}
	return divergences
}

// EvaluateDivergences enforces regression fail conditions: outcome flips
// always fail; missing rows and hazard drifts fail unless expected; new
// rows fail unless expected and approved; timing drifts fail beyond the
// tolerance; declared expectations that never materialized fail too.
func EvaluateDivergences(divergences []Divergence, policy DivergencePolicy) DivergenceEvaluation {
	evaluation := DivergenceEvaluation{}
	if policy.TimingToleranceS < 0 {
		policy.TimingToleranceS = 0
	}

	expected := make(map[string]ExpectedDivergence, len(policy.Expected))
	for _, item := range policy.Expected {
		expected[key(item.Class, item.Scope)] = item
	}

	for _, entry := range divergences {
		entryCopy := entry
		expectedMatch, hasExpected := expected[key(entry.Class, entry.Scope)]
		if hasExpected {
			entryCopy.Expected = true
			delete(expected, key(entry.Class, entry.Scope))
		}

		switch entry.Class {
		case OutcomeFlip:
			evaluation.Failing = append(evaluation.Failing, entryCopy)
		case RowMissing, HazardDrift:
			if !hasExpected {
				evaluation.Unexplained = append(evaluation.Unexplained, entryCopy)
				evaluation.Failing = append(evaluation.Failing, entryCopy)
			}
		case RowNew:
			if !hasExpected || !expectedMatch.Approved {
				evaluation.Failing = append(evaluation.Failing, entryCopy)
				if !hasExpected {
					evaluation.Unexplained = append(evaluation.Unexplained, entryCopy)
				}
			}
		case TimingDrift:
			if exceedsTimingTolerance(entryCopy, policy.TimingToleranceS) {
				evaluation.Failing = append(evaluation.Failing, entryCopy)
			}
		default:
			evaluation.Failing = append(evaluation.Failing, entryCopy)
		}
	}

	for _, missing := range missingExpectations(expected) {
		evaluation.MissingExpected = append(evaluation.MissingExpected, missing)
		evaluation.Failing = append(evaluation.Failing, Divergence{
			Class:   missing.Class,
			Scope:   missing.Scope,
			Message: fmt.Sprintf("expected divergence not observed: class=%s scope=%s", missing.Class, missing.Scope),
		})
	}

	return evaluation
}

func indexRows(rows []summary.Row) map[aggregate.Key]summary.Row {
	indexed := make(map[aggregate.Key]summary.Row, len(rows))
	for _, row := range rows {
		indexed[aggregate.KeyOf(row)] = row
	}
	return indexed
}

func sortedKeys(tables ...map[aggregate.Key]summary.Row) []aggregate.Key {
	seen := make(map[aggregate.Key]struct{})
	var keys []aggregate.Key
	for _, table := range tables {
		for k := range table {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Topology != b.Topology {
			return a.Topology < b.Topology
		}
		if a.Scenario != b.Scenario {
			return a.Scenario < b.Scenario
		}
		if a.Spec != b.Spec {
			return a.Spec < b.Spec
		}
		if a.SpecKind != b.SpecKind {
			return a.SpecKind < b.SpecKind
		}
		return a.SpecIter < b.SpecIter
	})
	return keys
}

func scopeOf(k aggregate.Key) string {
	return fmt.Sprintf("%s/%s/%s", k.Topology, k.Scenario, k.Spec)
}

func appendCounterDrift(divergences []Divergence, scope, column string, base, cand int) []Divergence {
	if base == cand {
		return divergences
	}
	return append(divergences, Divergence{
		Class:   HazardDrift,
		Scope:   scope,
		Message: fmt.Sprintf("%s changed: %d -> %d", column, base, cand),
	})
}

func appendTimingDrift(divergences []Divergence, scope, column string, base, cand float64) []Divergence {
	if base == cand {
		return divergences
	}
	diff := math.Abs(cand - base)
	return append(divergences, Divergence{
		Class:   TimingDrift,
		Scope:   scope,
		Message: fmt.Sprintf("%s changed: %g -> %g", column, base, cand),
		DiffS:   &diff,
	})
}

func key(class DivergenceClass, scope string) string {
	return string(class) + "|" + scope
}

func exceedsTimingTolerance(divergence Divergence, tolerance float64) bool {
	if divergence.DiffS == nil {
		return true
	}
	return *divergence.DiffS > tolerance
}

func missingExpectations(expected map[string]ExpectedDivergence) []ExpectedDivergence {
	out := make([]ExpectedDivergence, 0, len(expected))
	for _, item := range expected {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].Class < out[j].Class
	})
	return out
}
