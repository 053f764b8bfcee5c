package projects

import (
	"fmt"

	"research-portal/project-portal-backend/internal/apperrors"
	"research-portal/project-portal-backend/pkg/workflows"
)

// State is the (status, stage) pair of a project
type State struct {
	Status Status
	Stage  Stage
}

func (s State) String() string {
	return fmt.Sprintf("(%s, %s)", s.Status, s.Stage)
}

// InitialState is the state every project is registered in.
var InitialState = State{Status: StatusInactive, Stage: StageNone}

// Trigger is a lifecycle event
type Trigger string

const (
	TriggerActivate   Trigger = "activate"
	TriggerDeactivate Trigger = "deactivate"
	TriggerFinish     Trigger = "finish"
	TriggerProgress   Trigger = "progress"
)

// Effect is a side effect applied together with a transition
type Effect uint8

const (
	EffectSetStartDate Effect = 1 << iota
	EffectSetFinishDate
	// EffectCloseMemberships sets egressDate on accepted memberships that
	// have none yet.
	EffectCloseMemberships
)

// Transition is a planned move between two states
type Transition struct {
	Trigger Trigger
	From    State
	To      State
	Effects Effect
}

func (t Transition) Has(e Effect) bool { return t.Effects&e != 0 }

// NoOp reports whether applying t would change nothing.
func (t Transition) NoOp() bool { return t.From == t.To && t.Effects == 0 }

type transitionKey struct {
	trigger Trigger
	from    State
}

// Lifecycle holds the fixed transition table of a project.
type Lifecycle struct {
	machine *workflows.StateMachine[State, Trigger]
	effects map[transitionKey]Effect
}

// NewLifecycle creates the project lifecycle table
func NewLifecycle() *Lifecycle {
	l := &Lifecycle{
		machine: workflows.NewStateMachine[State, Trigger](),
		effects: make(map[transitionKey]Effect),
	}

	var (
		inactiveNone       = State{StatusInactive, StageNone}
		inactiveStarted    = State{StatusInactive, StageStarted}
		inactiveInProgress = State{StatusInactive, StageInProgress}
		inactiveFinished   = State{StatusInactive, StageFinished}
		activeStarted      = State{StatusActive, StageStarted}
		activeInProgress   = State{StatusActive, StageInProgress}
	)

	l.permit(TriggerActivate, inactiveNone, activeStarted, EffectSetStartDate)
	l.permit(TriggerActivate, inactiveStarted, activeStarted, 0)
	l.permit(TriggerActivate, inactiveInProgress, activeInProgress, 0)
	l.permit(TriggerActivate, activeStarted, activeStarted, 0)
	l.permit(TriggerActivate, activeInProgress, activeInProgress, 0)

	l.permit(TriggerDeactivate, activeStarted, inactiveStarted, EffectCloseMemberships)
	l.permit(TriggerDeactivate, activeInProgress, inactiveInProgress, EffectCloseMemberships)
	l.permit(TriggerDeactivate, inactiveNone, inactiveNone, 0)
	l.permit(TriggerDeactivate, inactiveStarted, inactiveStarted, EffectCloseMemberships)
	l.permit(TriggerDeactivate, inactiveInProgress, inactiveInProgress, EffectCloseMemberships)
	l.permit(TriggerDeactivate, inactiveFinished, inactiveFinished, 0)

	l.permit(TriggerProgress, activeStarted, activeInProgress, 0)
	l.permit(TriggerProgress, activeInProgress, activeInProgress, 0)
	l.permit(TriggerProgress, inactiveStarted, inactiveInProgress, 0)
	l.permit(TriggerProgress, inactiveInProgress, inactiveInProgress, 0)

	l.permit(TriggerFinish, activeInProgress, inactiveFinished, EffectSetFinishDate|EffectCloseMemberships)

	return l
}

func (l *Lifecycle) permit(trigger Trigger, from, to State, effects Effect) {
	l.machine.Permit(trigger, from, to)
	l.effects[transitionKey{trigger, from}] = effects
}

// Plan returns the transition trigger causes from the given state, or an
// InvalidStateTransition error explaining why it cannot fire.
func (l *Lifecycle) Plan(trigger Trigger, from State) (Transition, error) {
	to, ok := l.machine.Target(trigger, from)
	if !ok {
		return Transition{}, apperrors.InvalidTransition("projects.Lifecycle", rejection(trigger, from))
	}
	return Transition{
		Trigger: trigger,
		From:    from,
		To:      to,
		Effects: l.effects[transitionKey{trigger, from}],
	}, nil
}

// ProgressStages returns the stages progress may be reported in.
func (l *Lifecycle) ProgressStages() []Stage {
	seen := make(map[Stage]bool)
	var stages []Stage
	for _, s := range l.machine.GetAllowedSources(TriggerProgress) {
		if !seen[s.Stage] {
			seen[s.Stage] = true
			stages = append(stages, s.Stage)
		}
	}
	return stages
}

// ReachableStates returns every state a project can ever be persisted in.
func (l *Lifecycle) ReachableStates() []State {
	return l.machine.Reachable(InitialState)
}

func rejection(trigger Trigger, from State) string {
	switch {
	case trigger == TriggerActivate && from.Stage == StageFinished:
		return "a finished project cannot be reactivated"
	case trigger == TriggerFinish && from.Stage == StageFinished:
		return "project is already finished"
	case trigger == TriggerFinish && from.Status != StatusActive:
		return "only an active project can be finished"
	case trigger == TriggerFinish:
		return fmt.Sprintf("project is not in progress (stage %s) and cannot be finished", from.Stage)
	case trigger == TriggerProgress && from.Stage == StageFinished:
		return "progress cannot be reported on a finished project"
	case trigger == TriggerProgress && from.Stage == StageNone:
		return "progress cannot be reported before the project has started"
	default:
		return fmt.Sprintf("cannot %s a project in state %s", trigger, from)
	}
}
