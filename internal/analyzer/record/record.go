package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tiger/reconfig-hazard-analyzer/api/resultdoc"
)

// ErrMalformedRecord marks a result document that cannot be turned into a
// run record, typically because a required field is missing.
var ErrMalformedRecord = errors.New("malformed record")

// NodeID identifies one router in a forwarding snapshot.
type NodeID uint32

// DropNextHop is the reserved terminal next-hop: the router drops traffic
// for the destination instead of forwarding it.
const DropNextHop = NodeID(resultdoc.DropNextHop)

// ForwardingTable maps node id to destination prefix to ranked next-hops.
type ForwardingTable map[NodeID]map[string][]NodeID

// DecompSchedule maps destination prefix to node id to scheduled rounds.
type DecompSchedule map[string]map[NodeID]resultdoc.NodeSchedule

// SpecIdentity names the specification an experiment ran against.
type SpecIdentity struct {
	Name      string
	Kind      string
	Iteration int
}

// RunRecord is one loaded experiment run. Constructed once per input file
// and immutable afterward.
type RunRecord struct {
	Topology      string
	Scenario      string
	Spec          SpecIdentity
	Nodes         int
	Time          float64
	Outcome       resultdoc.Outcome
	ModelSteps    *int
	NumVariables  int
	NumEquations  int
	AvgPathLength float64
	FwBefore      ForwardingTable
	FwAfter       ForwardingTable
	Schedule      DecompSchedule
}

// Config controls document loading.
type Config struct {
	// Timeout clips each run's observed wall time, in seconds. Zero or
	// negative disables clipping.
	Timeout float64
	// SchemaPath enables strict mode: raw documents are validated against
	// the JSON schema before decoding.
	SchemaPath string
}

// Loader turns result documents into run records.
type Loader struct {
	cfg    Config
	schema *jsonschema.Schema
}

func NewLoader(cfg Config) (*Loader, error) {
	loader := &Loader{cfg: cfg}
	if cfg.SchemaPath != "" {
		schema, err := compileSchema(cfg.SchemaPath)
		if err != nil {
			return nil, err
		}
		loader.schema = schema
	}
	return loader, nil
}

// LoadFile reads and decodes one result document from disk.
func (l *Loader) LoadFile(path string) (*RunRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read result document: %w", err)
	}
	return l.Load(raw)
}

// Load decodes one result document into a run record.
func (l *Loader) Load(raw []byte) (*RunRecord, error) {
	if l.schema != nil {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		if err := l.schema.Validate(v); err != nil {
			return nil, fmt.Errorf("%w: schema: %v", ErrMalformedRecord, err)
		}
	}

	var doc resultdoc.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	before, err := parseForwardingTable("data.fw_state_before", doc.Data.FwStateBefore)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	after, err := parseForwardingTable("data.fw_state_after", doc.Data.FwStateAfter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	schedule, err := parseSchedule(doc.Decomp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	rec := &RunRecord{
		Topology:      doc.Topo,
		Scenario:      doc.Scenario,
		Spec:          ResolveSpecIdentity(doc.SpecBuilder),
		Nodes:         doc.NodeCount(),
		Time:          clipTime(*doc.Data.Time, l.cfg.Timeout),
		Outcome:       *doc.Data.Result,
		ModelSteps:    doc.Data.ModelSteps,
		NumVariables:  *doc.Data.NumVariables,
		NumEquations:  *doc.Data.NumEquations,
		AvgPathLength: *doc.Data.AvgPathLength,
		FwBefore:      before,
		FwAfter:       after,
		Schedule:      schedule,
	}
	return rec, nil
}

// specDecoders are tried in order; the last one always matches.
var specDecoders = []func(resultdoc.SpecBuilder) (SpecIdentity, bool){
	func(b resultdoc.SpecBuilder) (SpecIdentity, bool) {
		if b.Scalable == nil {
			return SpecIdentity{}, false
		}
		return scalableIdentity("Scalable", *b.Scalable), true
	},
	func(b resultdoc.SpecBuilder) (SpecIdentity, bool) {
		if b.ScalableNonTemporal == nil {
			return SpecIdentity{}, false
		}
		return scalableIdentity("ScalableNonTemporal", *b.ScalableNonTemporal), true
	},
	func(b resultdoc.SpecBuilder) (SpecIdentity, bool) {
		return SpecIdentity{Name: b.Name, Kind: b.Name}, true
	},
}

// ResolveSpecIdentity applies the builder decoding policy: the scalable
// variants yield a composite name with a zero-padded iteration; any other
// builder value is taken as an opaque name with iteration 0.
func ResolveSpecIdentity(b resultdoc.SpecBuilder) SpecIdentity {
	for _, decode := range specDecoders {
		if id, ok := decode(b); ok {
			return id
		}
	}
	return SpecIdentity{}
}

func scalableIdentity(kind string, iteration int) SpecIdentity {
	return SpecIdentity{
		Name:      fmt.Sprintf("%s-%03d", kind, iteration),
		Kind:      kind,
		Iteration: iteration,
	}
}

func clipTime(observed, timeout float64) float64 {
	if timeout > 0 && observed > timeout {
		return timeout
	}
	return observed
}

func parseForwardingTable(field string, fs *resultdoc.ForwardingState) (ForwardingTable, error) {
	table := make(ForwardingTable, len(fs.State))
	for rawID, prefixes := range fs.State {
		id, err := parseNodeID(rawID)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", field, err)
		}
		routes := make(map[string][]NodeID, len(prefixes))
		for prefix, hops := range prefixes {
			next := make([]NodeID, len(hops))
			for i, hop := range hops {
				next[i] = NodeID(hop)
			}
			routes[prefix] = next
		}
		table[id] = routes
	}
	return table, nil
}

func parseSchedule(decomp *resultdoc.Decomposition) (DecompSchedule, error) {
	if decomp == nil || len(decomp.Schedule) == 0 {
		return nil, nil
	}
	schedule := make(DecompSchedule, len(decomp.Schedule))
	for prefix, rounds := range decomp.Schedule {
		perNode := make(map[NodeID]resultdoc.NodeSchedule, len(rounds))
		for rawID, rs := range rounds {
			id, err := parseNodeID(rawID)
			if err != nil {
				return nil, fmt.Errorf("decomp.schedule[%s]: %v", prefix, err)
			}
			perNode[id] = rs
		}
		schedule[prefix] = perNode
	}
	return schedule, nil
}

func parseNodeID(raw string) (NodeID, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("router id %q is not numeric", raw)
	}
	return NodeID(id), nil
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	abs, err := filepath.Abs(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("resolve schema path: %w", err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result-document.schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("register schema: %w", err)
	}
	schema, err := compiler.Compile("result-document.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
