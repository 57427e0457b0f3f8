package aggregate

import (
	"errors"
	"math"
	"sort"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/summary"
)

// ErrNoRows marks an aggregation over zero rows: no usable data exists at
// all, which is fatal for the batch.
var ErrNoRows = errors.New("no rows to aggregate")

// Key identifies repeated runs of one logical experiment.
type Key struct {
	Topology string
	Scenario string
	Spec     string
	SpecKind string
	SpecIter int
}

// KeyOf extracts the grouping key of one row.
func KeyOf(row summary.Row) Key {
	return Key{
		Topology: row.Topology,
		Scenario: row.Scenario,
		Spec:     row.Spec,
		SpecKind: row.SpecKind,
		SpecIter: row.SpecIter,
	}
}

// Fold groups rows by experiment identity and folds each group's wall times
// into mean + percentile statistics. Non-time fields are copied from the
// first row encountered per group: rows of one group come from repeated
// runs of the same experiment and are assumed to share them. Output order
// is deterministic regardless of input order.
func Fold(rows []summary.Row) ([]summary.Row, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	times := make(map[Key][]float64)
	first := make(map[Key]summary.Row)
	for _, row := range rows {
		key := KeyOf(row)
		if _, seen := first[key]; !seen {
			first[key] = row
		}
		times[key] = append(times[key], row.Time)
	}

	out := make([]summary.Row, 0, len(first))
	for key, sample := range times {
		row := first[key]
		row.Time = mean(sample)
		row.TimeP10 = Percentile(sample, 10)
		row.TimeP25 = Percentile(sample, 25)
		row.TimeP50 = Percentile(sample, 50)
		row.TimeP75 = Percentile(sample, 75)
		row.TimeP90 = Percentile(sample, 90)
		out = append(out, row)
	}
	sortRows(out)
	return out, nil
}

// Percentile returns the pct-th percentile of values by nearest rank: the
// virtual index pct/100 x (n-1) on the ascending sample, half-way ties
// rounded to the even rank. values must not be empty.
func Percentile(values []float64, pct float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(math.RoundToEven(pct / 100 * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// sortRows orders by (node count, topology, spec name) ascending; the
// remaining key fields break ties so the order never depends on map
// iteration.
func sortRows(rows []summary.Row) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Nodes != b.Nodes {
			return a.Nodes < b.Nodes
		}
		if a.Topology != b.Topology {
			return a.Topology < b.Topology
		}
		if a.Spec != b.Spec {
			return a.Spec < b.Spec
		}
		if a.Scenario != b.Scenario {
			return a.Scenario < b.Scenario
		}
		if a.SpecKind != b.SpecKind {
			return a.SpecKind < b.SpecKind
		}
		return a.SpecIter < b.SpecIter
	})
}

func mean(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
