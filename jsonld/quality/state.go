package quality

// State is the lifecycle position of one generated schema artifact
type State string

const (
	StateGenerated     State = "generated"
	StateValidated     State = "validated"
	StateRepaired      State = "repaired"
	StatePendingReview State = "pending_review"
	StatePublished     State = "published"
	StateDiscarded     State = "discarded"
)

var transitions = map[State][]State{
	StateGenerated:     {StateValidated, StatePendingReview},
	StateValidated:     {StatePublished, StateRepaired, StatePendingReview},
	StateRepaired:      {StateValidated, StatePendingReview},
	StatePendingReview: {StatePublished, StateDiscarded},
	StatePublished:     {StateGenerated},
	StateDiscarded:     {StateGenerated},
}

// CanTransition reports whether from -> to is a legal move. Published and
// discarded artifacts may only start over as newly generated ones.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends an operator action
func (s State) Terminal() bool {
	return s == StatePublished || s == StateDiscarded || s == StatePendingReview
}
