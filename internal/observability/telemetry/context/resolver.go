package telemetrycontext

import (
	"fmt"
	"strings"

	"github.com/tiger/reconfig-hazard-analyzer/internal/observability/telemetry"
)

const (
	defaultAnalyzerVersion = "analyzer-v1"
	defaultEmitter         = "rha-analyzer"
)

// ResolveInput defines canonical correlation resolver inputs.
type ResolveInput struct {
	BatchID              string
	Measurement          string
	File                 string
	Topology             string
	AnalyzerVersion      string
	EmittedBy            string
	WallClockTimestampMS int64
}

// Resolver normalizes correlation IDs and default values for batch telemetry.
type Resolver struct {
	DefaultAnalyzerVersion string
	DefaultEmitter         string
}

// NewResolver returns canonical correlation resolver defaults.
func NewResolver() Resolver {
	return Resolver{
		DefaultAnalyzerVersion: defaultAnalyzerVersion,
		DefaultEmitter:         defaultEmitter,
	}
}

// Resolve returns normalized telemetry correlation values.
func Resolve(in ResolveInput) (telemetry.Correlation, error) {
	return NewResolver().Resolve(in)
}

// Resolve returns normalized telemetry correlation values.
func (r Resolver) Resolve(in ResolveInput) (telemetry.Correlation, error) {
	batchID := strings.TrimSpace(in.BatchID)
	if batchID == "" {
		return telemetry.Correlation{}, fmt.Errorf("batch_id is required")
	}
	measurement := strings.TrimSpace(in.Measurement)
	if measurement == "" {
		return telemetry.Correlation{}, fmt.Errorf("measurement is required")
	}

	return telemetry.Correlation{
		BatchID:              batchID,
		Measurement:          measurement,
		File:                 strings.TrimSpace(in.File),
		Topology:             strings.TrimSpace(in.Topology),
		AnalyzerVersion:      firstNonEmpty(strings.TrimSpace(in.AnalyzerVersion), strings.TrimSpace(r.DefaultAnalyzerVersion), defaultAnalyzerVersion),
		EmittedBy:            firstNonEmpty(strings.TrimSpace(in.EmittedBy), strings.TrimSpace(r.DefaultEmitter), defaultEmitter),
		WallClockTimestampMS: nonNegative(in.WallClockTimestampMS),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
