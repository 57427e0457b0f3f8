package summary

import (
	"math"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/hazard"
	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/record"
)

// Row is one flat statistics row. The field order mirrors the output table
// layout; float-typed counters use +Inf as the "not reported" sentinel.
type Row struct {
	Topology      string
	Scenario      string
	Spec          string
	SpecKind      string
	SpecIter      int
	Nodes         int
	Time          float64
	TimeP10       float64
	TimeP25       float64
	TimeP50       float64
	TimeP75       float64
	TimeP90       float64
	Cost          float64
	Result        string
	ModelSteps    float64
	Steps         float64
	EstTime       int
	Mem           float64
	MemSitn       float64
	MemBaseline   float64
	NumVariables  int
	NumEquations  int
	AvgPathLength float64
	NumFwUpdates  int
	NumCycles     int
	PotentialDeps int
}

// Build assembles the row for one analyzed run: pure assembly of the loader,
// graph, hazard, and duration outputs. The observed wall time fills all five
// percentile slots until aggregation folds repeated runs. Cost and steps are
// taken from any outcome payload; the route counters only from a success.
func Build(rec *record.RunRecord, updated int, m hazard.Metrics, estTime int) Row {
	inf := math.Inf(1)
	row := Row{
		Topology:      rec.Topology,
		Scenario:      rec.Scenario,
		Spec:          rec.Spec.Name,
		SpecKind:      rec.Spec.Kind,
		SpecIter:      rec.Spec.Iteration,
		Nodes:         rec.Nodes,
		Time:          rec.Time,
		TimeP10:       rec.Time,
		TimeP25:       rec.Time,
		TimeP50:       rec.Time,
		TimeP75:       rec.Time,
		TimeP90:       rec.Time,
		Cost:          inf,
		Result:        string(rec.Outcome.Kind),
		ModelSteps:    inf,
		Steps:         inf,
		EstTime:       estTime,
		Mem:           inf,
		MemSitn:       inf,
		MemBaseline:   inf,
		NumVariables:  rec.NumVariables,
		NumEquations:  rec.NumEquations,
		AvgPathLength: rec.AvgPathLength,
		NumFwUpdates:  updated,
		NumCycles:     m.Cycles,
		PotentialDeps: m.PotentialDeps,
	}
	if rec.ModelSteps != nil {
		row.ModelSteps = float64(*rec.ModelSteps)
	}
	counters := rec.Outcome.Counters
	if counters == nil {
		return row
	}
	if counters.Cost != nil {
		row.Cost = float64(*counters.Cost)
	}
	if counters.Steps != nil {
		row.Steps = float64(*counters.Steps)
	}
	if rec.Outcome.Succeeded() {
		if counters.MaxRoutes != nil {
			row.Mem = float64(*counters.MaxRoutes)
		}
		if counters.RoutesBefore != nil && counters.RoutesAfter != nil {
			row.MemSitn = float64(*counters.RoutesBefore + *counters.RoutesAfter)
		}
		if counters.MaxRoutesBaseline != nil {
			row.MemBaseline = float64(*counters.MaxRoutesBaseline)
		}
	}
	return row
}
