package telemetrycontext

import "testing"

func TestResolveNormalizesAndDefaults(t *testing.T) {
	t.Parallel()

	correlation, err := Resolve(ResolveInput{
		BatchID:              " batch-1 ",
		Measurement:          " eval-mult-prefixes ",
		File:                 " Abilene_0.json ",
		Topology:             " Abilene ",
		AnalyzerVersion:      " analyzer-custom ",
		EmittedBy:            " rha-custom ",
		WallClockTimestampMS: 201,
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if correlation.BatchID != "batch-1" || correlation.Measurement != "eval-mult-prefixes" {
		t.Fatalf("expected trimmed identity fields, got %+v", correlation)
	}
	if correlation.File != "Abilene_0.json" || correlation.Topology != "Abilene" {
		t.Fatalf("expected trimmed file/topology fields, got %+v", correlation)
	}
	if correlation.AnalyzerVersion != "analyzer-custom" || correlation.EmittedBy != "rha-custom" {
		t.Fatalf("expected version/emitter values to be preserved, got %+v", correlation)
	}
}

func TestResolveAppliesDefaultVersionAndEmitter(t *testing.T) {
	t.Parallel()

	correlation, err := Resolve(ResolveInput{
		BatchID:     "batch-1",
		Measurement: "eval-mult-prefixes",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if correlation.AnalyzerVersion != defaultAnalyzerVersion {
		t.Fatalf("expected default analyzer version %q, got %+v", defaultAnalyzerVersion, correlation)
	}
	if correlation.EmittedBy != defaultEmitter {
		t.Fatalf("expected default emitter %q, got %+v", defaultEmitter, correlation)
	}
}

func TestResolveRejectsMissingRequiredIDs(t *testing.T) {
	t.Parallel()

	if _, err := Resolve(ResolveInput{Measurement: "eval-mult-prefixes"}); err == nil {
		t.Fatalf("expected missing batch_id to fail")
	}
	if _, err := Resolve(ResolveInput{BatchID: "batch-1"}); err == nil {
		t.Fatalf("expected missing measurement to fail")
	}
}

func TestResolveNormalizesNegativeTimestamp(t *testing.T) {
	t.Parallel()

	correlation, err := Resolve(ResolveInput{
		BatchID:              "batch-1",
		Measurement:          "eval-mult-prefixes",
		WallClockTimestampMS: -9,
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if correlation.WallClockTimestampMS != 0 {
		t.Fatalf("expected negative timestamp to normalize to zero, got %+v", correlation)
	}
}
