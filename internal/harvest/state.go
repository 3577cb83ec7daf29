package harvest

import "time"

// State is a step of the run state machine.
type State string

const (
	StateIdle              State = "IDLE"
	StateFetchingBaseline  State = "FETCHING_BASELINE"
	StateExpandingSeeds    State = "EXPANDING_SEEDS"
	StateFetchingOptional  State = "FETCHING_OPTIONAL"
	StateParsingRegistries State = "PARSING_REGISTRIES"
	StateDeduping          State = "DEDUPING"
	StateReconciling       State = "RECONCILING"
	StateDone              State = "DONE"
	StateFailed            State = "FAILED"
)

// order is the forward path through the machine. FAILED is reachable only
// from IDLE.
var order = []State{
	StateIdle,
	StateFetchingBaseline,
	StateExpandingSeeds,
	StateFetchingOptional,
	StateParsingRegistries,
	StateDeduping,
	StateReconciling,
	StateDone,
}

// CanTransition reports whether from -> to is a legal edge. Stages may be
// skipped forward (a dry run never reconciles) but never revisited.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return from == StateIdle
	}
	fi, ti := index(from), index(to)
	return fi >= 0 && ti > fi
}

func index(s State) int {
	for i, o := range order {
		if o == s {
			return i
		}
	}
	return -1
}

// StageStat records one completed stage.
type StageStat struct {
	State      State         `json:"state"`
	Candidates int           `json:"candidates"`
	Duration   time.Duration `json:"duration"`
	Skipped    bool          `json:"skipped,omitempty"`
}
