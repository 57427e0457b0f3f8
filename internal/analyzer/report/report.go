package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/summary"
)

// DefaultFileName is the table name written into the measurement directory.
const DefaultFileName = "parsed.csv"

// Header is the column layout the downstream plotting tools read; the order
// is part of the contract.
var Header = []string{
	"topo",
	"scenario",
	"spec",
	"spec_kind",
	"spec_iter",
	"nodes",
	"time",
	"time_p10",
	"time_p25",
	"time_p50",
	"time_p75",
	"time_p90",
	"cost",
	"result",
	"model_steps",
	"steps",
	"est_time",
	"mem",
	"mem_sitn",
	"mem_baseline",
	"num_variables",
	"num_equations",
	"avg_path_length",
	"num_fw_updates",
	"num_cycles",
	"potential_deps",
}

// Write renders rows as a CSV table, header first.
func Write(w io.Writer, rows []summary.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(encodeRow(row)); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the table to path, replacing any previous table.
func WriteFile(path string, rows []summary.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if err := Write(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read parses a table produced by Write.
func Read(r io.Reader) ([]summary.Row, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(Header) {
		return nil, fmt.Errorf("header has %d columns, want %d", len(header), len(Header))
	}
	for i, name := range header {
		if name != Header[i] {
			return nil, fmt.Errorf("column %d is %q, want %q", i, name, Header[i])
		}
	}

	var rows []summary.Row
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		row, err := decodeRow(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

// ReadFile parses the table at path.
func ReadFile(path string) ([]summary.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func encodeRow(row summary.Row) []string {
	return []string{
		row.Topology,
		row.Scenario,
		row.Spec,
		row.SpecKind,
		strconv.Itoa(row.SpecIter),
		strconv.Itoa(row.Nodes),
		formatFloat(row.Time),
		formatFloat(row.TimeP10),
		formatFloat(row.TimeP25),
		formatFloat(row.TimeP50),
		formatFloat(row.TimeP75),
		formatFloat(row.TimeP90),
		formatFloat(row.Cost),
		row.Result,
		formatFloat(row.ModelSteps),
		formatFloat(row.Steps),
		strconv.Itoa(row.EstTime),
		formatFloat(row.Mem),
		formatFloat(row.MemSitn),
		formatFloat(row.MemBaseline),
		strconv.Itoa(row.NumVariables),
		strconv.Itoa(row.NumEquations),
		formatFloat(row.AvgPathLength),
		strconv.Itoa(row.NumFwUpdates),
		strconv.Itoa(row.NumCycles),
		strconv.Itoa(row.PotentialDeps),
	}
}

func decodeRow(fields []string) (summary.Row, error) {
	if len(fields) != len(Header) {
		return summary.Row{}, fmt.Errorf("row has %d columns, want %d", len(fields), len(Header))
	}
	var (
		row     summary.Row
		decErr  error
		nextIdx int
	)
	str := func() string {
		v := fields[nextIdx]
		nextIdx++
		return v
	}
	num := func() int {
		col := Header[nextIdx]
		v, err := strconv.Atoi(fields[nextIdx])
		if err != nil && decErr == nil {
			decErr = fmt.Errorf("column %s: %w", col, err)
		}
		nextIdx++
		return v
	}
	flt := func() float64 {
		col := Header[nextIdx]
		v, err := parseFloat(fields[nextIdx])
		if err != nil && decErr == nil {
			decErr = fmt.Errorf("column %s: %w", col, err)
		}
		nextIdx++
		return v
	}

	row.Topology = str()
	row.Scenario = str()
	row.Spec = str()
	row.SpecKind = str()
	row.SpecIter = num()
	row.Nodes = num()
	row.Time = flt()
	row.TimeP10 = flt()
	row.TimeP25 = flt()
	row.TimeP50 = flt()
	row.TimeP75 = flt()
	row.TimeP90 = flt()
	row.Cost = flt()
	row.Result = str()
	row.ModelSteps = flt()
	row.Steps = flt()
	row.EstTime = num()
	row.Mem = flt()
	row.MemSitn = flt()
	row.MemBaseline = flt()
	row.NumVariables = num()
	row.NumEquations = num()
	row.AvgPathLength = flt()
	row.NumFwUpdates = num()
	row.NumCycles = num()
	row.PotentialDeps = num()
	return row, decErr
}

// formatFloat renders plain decimal notation, never an exponent; the +Inf
// sentinel renders as "inf".
func formatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "inf" {
		return math.Inf(1), nil
	}
	return strconv.ParseFloat(s, 64)
}
