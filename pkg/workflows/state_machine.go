package workflows

// StateMachine enforces transitions between states S fired by events E.
// Each (event, source) pair has at most one target.
type StateMachine[S comparable, E comparable] struct {
	allowedTransitions map[E]map[S]S
	sources            map[E][]S
}

// NewStateMachine creates an empty state machine
func NewStateMachine[S comparable, E comparable]() *StateMachine[S, E] {
	return &StateMachine[S, E]{
		allowedTransitions: make(map[E]map[S]S),
		sources:            make(map[E][]S),
	}
}

// Permit allows event to move the machine from one state to another.
// Permitting the same (event, from) twice replaces the earlier target.
func (sm *StateMachine[S, E]) Permit(event E, from, to S) *StateMachine[S, E] {
	targets, ok := sm.allowedTransitions[event]
	if !ok {
		targets = make(map[S]S)
		sm.allowedTransitions[event] = targets
	}
	if _, seen := targets[from]; !seen {
		sm.sources[event] = append(sm.sources[event], from)
	}
	targets[from] = to
	return sm
}

// CanTransition checks if event may fire from the given state
func (sm *StateMachine[S, E]) CanTransition(event E, from S) bool {
	_, ok := sm.Target(event, from)
	return ok
}

// Target returns the state event leads to from the given state
func (sm *StateMachine[S, E]) Target(event E, from S) (S, bool) {
	to, ok := sm.allowedTransitions[event][from]
	return to, ok
}

// GetAllowedSources returns the states event may fire from, in the order
// they were permitted.
func (sm *StateMachine[S, E]) GetAllowedSources(event E) []S {
	out := make([]S, len(sm.sources[event]))
	copy(out, sm.sources[event])
	return out
}

// Reachable returns every state reachable from start, start included.
func (sm *StateMachine[S, E]) Reachable(start S) []S {
	seen := map[S]bool{start: true}
	order := []S{start}
	for i := 0; i < len(order); i++ {
		for _, targets := range sm.allowedTransitions {
			if to, ok := targets[order[i]]; ok && !seen[to] {
				seen[to] = true
				order = append(order, to)
			}
		}
	}
	return order
}
