package aggregate

import (
	"errors"
	"testing"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/summary"
)

func makeRow(topo, spec string, nodes int, time, cost float64) summary.Row {
	return summary.Row{
		Topology: topo,
		Scenario: "DelBestRoute",
		Spec:     spec,
		SpecKind: "Scalable",
		SpecIter: 1,
		Nodes:    nodes,
		Time:     time,
		TimeP10:  time,
		TimeP25:  time,
		TimeP50:  time,
		TimeP75:  time,
		TimeP90:  time,
		Cost:     cost,
		Result:   "Success",
	}
}

func TestPercentileMedianOddAndEven(t *testing.T) {
	t.Parallel()

	if got := Percentile([]float64{3, 1, 2}, 50); got != 2 {
		t.Fatalf("odd median = %v, want 2", got)
	}
	if got := Percentile([]float64{4, 1, 3, 2}, 50); got != 3 {
		t.Fatalf("even median = %v, want 3 (virtual index 1.5 rounds to rank 2)", got)
	}
}

func TestPercentileHalfTiesRoundToEvenRank(t *testing.T) {
	t.Parallel()

	values := []float64{10, 20, 30}
	if got := Percentile(values, 25); got != 10 {
		t.Fatalf("p25 = %v, want 10 (virtual index 0.5 rounds to rank 0)", got)
	}
	if got := Percentile(values, 75); got != 30 {
		t.Fatalf("p75 = %v, want 30 (virtual index 1.5 rounds to rank 2)", got)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := Percentile(values, 10); got != 2 {
		t.Fatalf("p10 = %v, want 2", got)
	}
	if got := Percentile(values, 90); got != 9 {
		t.Fatalf("p90 = %v, want 9", got)
	}
	if got := Percentile(values, 0); got != 1 {
		t.Fatalf("p0 = %v, want the minimum", got)
	}
	if got := Percentile(values, 100); got != 10 {
		t.Fatalf("p100 = %v, want the maximum", got)
	}
}

func TestFoldSingletonGroup(t *testing.T) {
	t.Parallel()

	folded, err := Fold([]summary.Row{makeRow("Abilene", "Scalable-001", 11, 7.25, 3)})
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	if len(folded) != 1 {
		t.Fatalf("rows = %d, want 1", len(folded))
	}
	row := folded[0]
	for name, got := range map[string]float64{
		"time":     row.Time,
		"time_p10": row.TimeP10,
		"time_p25": row.TimeP25,
		"time_p50": row.TimeP50,
		"time_p75": row.TimeP75,
		"time_p90": row.TimeP90,
	} {
		if got != 7.25 {
			t.Fatalf("%s = %v, want 7.25 for a singleton group", name, got)
		}
	}
}

func TestFoldMeanPercentilesAndFirstRowFields(t *testing.T) {
	t.Parallel()

	rows := []summary.Row{
		makeRow("Abilene", "Scalable-001", 11, 1, 5),
		makeRow("Abilene", "Scalable-001", 11, 3, 9),
		makeRow("Abilene", "Scalable-001", 11, 2, 9),
	}
	folded, err := Fold(rows)
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	if len(folded) != 1 {
		t.Fatalf("rows = %d, want 1", len(folded))
	}
	row := folded[0]
	if row.Time != 2 {
		t.Fatalf("mean time = %v, want 2", row.Time)
	}
	if row.TimeP10 != 1 || row.TimeP25 != 1 || row.TimeP50 != 2 || row.TimeP75 != 3 || row.TimeP90 != 3 {
		t.Fatalf("percentiles = %v/%v/%v/%v/%v", row.TimeP10, row.TimeP25, row.TimeP50, row.TimeP75, row.TimeP90)
	}
	if row.Cost != 5 {
		t.Fatalf("cost = %v, want 5 from the first row encountered", row.Cost)
	}
}

func TestFoldSortsDeterministically(t *testing.T) {
	t.Parallel()

	a := makeRow("Bellcanada", "Scalable-001", 48, 1, 0)
	b := makeRow("Abilene", "Scalable-002", 11, 1, 0)
	c := makeRow("Abilene", "Scalable-001", 11, 1, 0)
	d := makeRow("Abilene", "Scalable-000", 5, 1, 0)

	orders := [][]summary.Row{
		{a, b, c, d},
		{d, c, b, a},
		{c, a, d, b},
	}
	want := []string{
		"Abilene/Scalable-000",
		"Abilene/Scalable-001",
		"Abilene/Scalable-002",
		"Bellcanada/Scalable-001",
	}
	for _, input := range orders {
		folded, err := Fold(input)
		if err != nil {
			t.Fatalf("Fold: %v", err)
		}
		if len(folded) != len(want) {
			t.Fatalf("rows = %d, want %d", len(folded), len(want))
		}
		for i, row := range folded {
			if got := row.Topology + "/" + row.Spec; got != want[i] {
				t.Fatalf("row %d = %q, want %q", i, got, want[i])
			}
		}
		if folded[0].Nodes != 5 || folded[3].Nodes != 48 {
			t.Fatalf("node-count ordering broken: %d first, %d last", folded[0].Nodes, folded[3].Nodes)
		}
	}
}

func TestFoldNoRows(t *testing.T) {
	t.Parallel()

	if _, err := Fold(nil); !errors.Is(err, ErrNoRows) {
		t.Fatalf("error = %v, want ErrNoRows", err)
	}
}
