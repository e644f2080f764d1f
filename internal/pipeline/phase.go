// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

// Phase is a state of one pipeline run.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhasePlanning           Phase = "planning"
	PhaseSearching          Phase = "searching"
	PhaseFetchingDetails    Phase = "fetching_details"
	PhaseRanking            Phase = "ranking"
	PhaseStreamingSynthesis Phase = "streaming_synthesis"
	PhaseDone               Phase = "done"
	PhaseFailed             Phase = "failed"
)

// next lists the single forward transition of each working phase.
var next = map[Phase]Phase{
	PhaseIdle:               PhasePlanning,
	PhasePlanning:           PhaseSearching,
	PhaseSearching:          PhaseFetchingDetails,
	PhaseFetchingDetails:    PhaseRanking,
	PhaseRanking:            PhaseStreamingSynthesis,
	PhaseStreamingSynthesis: PhaseDone,
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// CanTransition reports whether a run in p may move to to. Failed is
// reachable from every non-terminal phase.
func (p Phase) CanTransition(to Phase) bool {
	if p.Terminal() {
		return false
	}
	if to == PhaseFailed {
		return true
	}
	return next[p] == to
}

// Label is the human-readable phase name.
func (p Phase) Label() string {
	switch p {
	case PhasePlanning:
		return "Planning search strategy"
	case PhaseSearching:
		return "Searching PubMed"
	case PhaseFetchingDetails:
		return "Fetching article details"
	case PhaseRanking:
		return "Ranking relevance"
	case PhaseStreamingSynthesis:
		return "Writing synthesis"
	case PhaseDone:
		return "Done"
	case PhaseFailed:
		return "Failed"
	default:
		return "Idle"
	}
}
