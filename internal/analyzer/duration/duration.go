package duration

import (
	"errors"
	"fmt"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/record"
)

// Round-cost model: every reconfiguration round costs a fixed number of
// abstract time units, and two extra rounds cover convergence detection
// around the round loop.
const (
	RoundCost      = 12
	OverheadRounds = 2
)

// ErrNoScheduleData marks a record that carries neither a decomposition
// schedule nor a model step count.
var ErrNoScheduleData = errors.New("no schedule data")

// Estimate derives the reconfiguration duration of one run in abstract time
// units. A decomposition schedule wins over the model step count: the
// highest scheduled new-route round bounds the rollout.
func Estimate(rec *record.RunRecord) (int, error) {
	if rounds, ok := scheduledRounds(rec.Schedule); ok {
		return (rounds + OverheadRounds) * RoundCost, nil
	}
	if rec.ModelSteps != nil {
		return (*rec.ModelSteps + OverheadRounds) * RoundCost, nil
	}
	return 0, fmt.Errorf("%w: record carries neither a schedule nor a model step count", ErrNoScheduleData)
}

// scheduledRounds returns the maximum new-route round of the representative
// per-prefix schedule: the lexicographically smallest prefix key, matching
// the destination selection of the graph builder.
func scheduledRounds(schedule record.DecompSchedule) (int, bool) {
	if len(schedule) == 0 {
		return 0, false
	}
	prefix, found := "", false
	for p := range schedule {
		if !found || p < prefix {
			prefix, found = p, true
		}
	}
	entries := schedule[prefix]
	if len(entries) == 0 {
		return 0, false
	}
	max, first := 0, true
	for _, rounds := range entries {
		if first || rounds.NewRoute > max {
			max, first = rounds.NewRoute, false
		}
	}
	return max, true
}
