package resultdoc

import (
	"encoding/json"
	"fmt"
)

// DropNextHop is the reserved next-hop id meaning the router drops traffic
// for the destination instead of forwarding it. It terminates forwarding and
// never identifies a real router.
const DropNextHop uint32 = 4294967295

// Document mirrors docs/ResultDocument.schema.json: one experiment run as
// serialized by the reconfiguration simulator.
type Document struct {
	Topo        string          `json:"topo"`
	Scenario    string          `json:"scenario"`
	SpecBuilder SpecBuilder     `json:"spec_builder"`
	Spec        json.RawMessage `json:"spec"`
	Decomp      *Decomposition  `json:"decomp"`
	Rand        bool            `json:"rand"`
	Data        *RunData        `json:"data"`
	Net         *Network        `json:"net"`
}

// RunData mirrors the per-run measurement section.
type RunData struct {
	Time          *float64         `json:"time"`
	Result        *Outcome         `json:"result"`
	NumVariables  *int             `json:"num_variables"`
	NumEquations  *int             `json:"num_equations"`
	ModelSteps    *int             `json:"model_steps,omitempty"`
	AvgPathLength *float64         `json:"avg_path_length"`
	FwStateBefore *ForwardingState `json:"fw_state_before"`
	FwStateAfter  *ForwardingState `json:"fw_state_after"`
}

// ForwardingState mirrors the simulator's forwarding-state dump. Router ids
// and destination prefixes arrive as JSON object keys; next-hop lists are
// ranked, first entry preferred.
type ForwardingState struct {
	State map[string]PrefixTable `json:"state"`
}

// PrefixTable maps a destination prefix to its ranked next-hop ids.
type PrefixTable map[string][]uint32

// Network carries the serialized simulator network. Only the router
// inventory is read, for the node count.
type Network struct {
	Net *NetworkBody `json:"net"`
}

type NetworkBody struct {
	Routers map[string]json.RawMessage `json:"routers"`
}

// Decomposition mirrors the scheduler output attached to a run. Only the
// schedule is interpreted; the command sections are carried opaquely.
type Decomposition struct {
	OriginalCommand json.RawMessage           `json:"original_command,omitempty"`
	BGPDeps         json.RawMessage           `json:"bgp_deps,omitempty"`
	Schedule        map[string]PrefixSchedule `json:"schedule"`
	FwStateTrace    json.RawMessage           `json:"fw_state_trace,omitempty"`
	SetupCommands   json.RawMessage           `json:"setup_commands,omitempty"`
	CleanupCommands json.RawMessage           `json:"cleanup_commands,omitempty"`
	AtomicBefore    json.RawMessage           `json:"atomic_before,omitempty"`
	MainCommands    json.RawMessage           `json:"main_commands,omitempty"`
	AtomicAfter     json.RawMessage           `json:"atomic_after,omitempty"`
}

// PrefixSchedule maps a router id to its scheduled rounds for one prefix.
type PrefixSchedule map[string]NodeSchedule

// NodeSchedule holds the scheduler's per-router round assignments.
type NodeSchedule struct {
	FwState  int `json:"fw_state"`
	OldRoute int `json:"old_route"`
	NewRoute int `json:"new_route"`
}

// OutcomeKind discriminates the result union.
type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "Success"
	OutcomeSynthesisFailed OutcomeKind = "SynthesisFailed"
	OutcomeTimeout         OutcomeKind = "Timeout"
	OutcomeInfeasible      OutcomeKind = "Infeasible"
)

// Outcome is the run result union: either a bare failure-kind string, or a
// single-key object whose key is the kind and whose payload carries the
// solver counters.
type Outcome struct {
	Kind     OutcomeKind
	Counters *OutcomeCounters
}

// OutcomeCounters holds the counter payload of object-shaped outcomes.
// Cost and steps accompany every object variant; the route counters are
// reported for Success only.
type OutcomeCounters struct {
	Cost              *int `json:"cost,omitempty"`
	Steps             *int `json:"steps,omitempty"`
	SlowSteps         *int `json:"slow_steps,omitempty"`
	MaxRoutes         *int `json:"max_routes,omitempty"`
	RoutesBefore      *int `json:"routes_before,omitempty"`
	RoutesAfter       *int `json:"routes_after,omitempty"`
	MaxRoutesBaseline *int `json:"max_routes_baseline,omitempty"`
}

func (o *Outcome) UnmarshalJSON(raw []byte) error {
	var kind string
	if err := json.Unmarshal(raw, &kind); err == nil {
		*o = Outcome{Kind: OutcomeKind(kind)}
		return nil
	}
	var variants map[string]OutcomeCounters
	if err := json.Unmarshal(raw, &variants); err != nil {
		return fmt.Errorf("result must be a kind string or a single-variant object")
	}
	if len(variants) != 1 {
		return fmt.Errorf("result object must carry exactly one variant, got %d", len(variants))
	}
	for kind, counters := range variants {
		c := counters
		*o = Outcome{Kind: OutcomeKind(kind), Counters: &c}
	}
	return nil
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.Counters == nil {
		return json.Marshal(string(o.Kind))
	}
	return json.Marshal(map[string]*OutcomeCounters{string(o.Kind): o.Counters})
}

// Succeeded reports whether the run synthesized a valid reconfiguration.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

func (o Outcome) Validate() error {
	if o.Kind == "" {
		return fmt.Errorf("data.result kind is required")
	}
	if o.Counters == nil {
		if o.Kind == OutcomeSuccess || o.Kind == OutcomeSynthesisFailed {
			return fmt.Errorf("data.result %s requires a counter payload", o.Kind)
		}
		return nil
	}
	if o.Counters.Cost == nil {
		return fmt.Errorf("data.result.%s.cost is required", o.Kind)
	}
	if o.Counters.Steps == nil {
		return fmt.Errorf("data.result.%s.steps is required", o.Kind)
	}
	if o.Kind == OutcomeSuccess {
		if o.Counters.MaxRoutes == nil {
			return fmt.Errorf("data.result.Success.max_routes is required")
		}
		if o.Counters.RoutesBefore == nil || o.Counters.RoutesAfter == nil {
			return fmt.Errorf("data.result.Success.routes_before and routes_after are required")
		}
		if o.Counters.MaxRoutesBaseline == nil {
			return fmt.Errorf("data.result.Success.max_routes_baseline is required")
		}
	}
	return nil
}

// SpecBuilder is the specification-builder descriptor union: a bare builder
// name, or a single-key object naming a scalable family with an iteration
// count.
type SpecBuilder struct {
	Name                string
	Scalable            *int
	ScalableNonTemporal *int
}

func (b *SpecBuilder) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		*b = SpecBuilder{Name: name}
		return nil
	}
	var variant struct {
		Scalable            *int `json:"Scalable"`
		ScalableNonTemporal *int `json:"ScalableNonTemporal"`
	}
	if err := json.Unmarshal(raw, &variant); err != nil {
		return fmt.Errorf("spec_builder must be a builder name or a scalable variant object")
	}
	if variant.Scalable == nil && variant.ScalableNonTemporal == nil {
		return fmt.Errorf("spec_builder object must carry Scalable or ScalableNonTemporal")
	}
	*b = SpecBuilder{Scalable: variant.Scalable, ScalableNonTemporal: variant.ScalableNonTemporal}
	return nil
}

func (b SpecBuilder) MarshalJSON() ([]byte, error) {
	if b.Scalable != nil {
		return json.Marshal(map[string]int{"Scalable": *b.Scalable})
	}
	if b.ScalableNonTemporal != nil {
		return json.Marshal(map[string]int{"ScalableNonTemporal": *b.ScalableNonTemporal})
	}
	return json.Marshal(b.Name)
}

// IsZero reports whether the builder descriptor was absent or null.
func (b SpecBuilder) IsZero() bool {
	return b.Name == "" && b.Scalable == nil && b.ScalableNonTemporal == nil
}

func (d Document) Validate() error {
	if d.Topo == "" {
		return fmt.Errorf("topo is required")
	}
	if d.Scenario == "" {
		return fmt.Errorf("scenario is required")
	}
	if d.SpecBuilder.IsZero() {
		return fmt.Errorf("spec_builder is required")
	}
	if len(d.Spec) == 0 || string(d.Spec) == "null" {
		return fmt.Errorf("spec is required")
	}
	if d.Net == nil || d.Net.Net == nil || d.Net.Net.Routers == nil {
		return fmt.Errorf("net.net.routers is required")
	}
	if d.Data == nil {
		return fmt.Errorf("data is required")
	}
	return d.Data.Validate()
}

func (d RunData) Validate() error {
	if d.Time == nil {
		return fmt.Errorf("data.time is required")
	}
	if *d.Time < 0 {
		return fmt.Errorf("data.time must be >=0")
	}
	if d.Result == nil {
		return fmt.Errorf("data.result is required")
	}
	if err := d.Result.Validate(); err != nil {
		return err
	}
	if d.NumVariables == nil {
		return fmt.Errorf("data.num_variables is required")
	}
	if d.NumEquations == nil {
		return fmt.Errorf("data.num_equations is required")
	}
	if d.AvgPathLength == nil {
		return fmt.Errorf("data.avg_path_length is required")
	}
	if d.FwStateBefore == nil {
		return fmt.Errorf("data.fw_state_before is required")
	}
	if d.FwStateAfter == nil {
		return fmt.Errorf("data.fw_state_after is required")
	}
	return nil
}

// NodeCount returns the number of routers in the serialized network.
func (d Document) NodeCount() int {
	if d.Net == nil || d.Net.Net == nil {
		return 0
	}
	return len(d.Net.Net.Routers)
}
