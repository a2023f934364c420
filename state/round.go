package state

import "fmt"

// Round phases.
const (
	PhaseIdle         = "idle"
	PhaseAwaitingMove = "awaiting_move"
	PhaseApplying     = "applying"
	PhaseRoundOver    = "round_over"
)

// RoundMachine tracks where a room is within a round:
//
//	idle -> awaiting_move -> applying -> awaiting_move | round_over
//	round_over -> awaiting_move | idle
//	awaiting_move -> idle (roster emptied, round aborted)
type RoundMachine struct {
	*BaseStateMachine
	phases map[string]State
}

func NewRoundMachine(room RoomContext) *RoundMachine {
	phases := make(map[string]State)
	for _, id := range []string{PhaseIdle, PhaseAwaitingMove, PhaseApplying, PhaseRoundOver} {
		phases[id] = &RoomStateBase{ID: id, Room: room}
	}

	m := &RoundMachine{
		BaseStateMachine: NewBaseStateMachine(phases[PhaseIdle]),
		phases:           phases,
	}
	for _, t := range [][2]string{
		{PhaseIdle, PhaseAwaitingMove},
		{PhaseAwaitingMove, PhaseApplying},
		{PhaseAwaitingMove, PhaseIdle},
		{PhaseApplying, PhaseAwaitingMove},
		{PhaseApplying, PhaseRoundOver},
		{PhaseRoundOver, PhaseAwaitingMove},
		{PhaseRoundOver, PhaseIdle},
	} {
		m.AddTransition(phases[t[0]], phases[t[1]], nil)
	}
	return m
}

// Enter moves to the named phase.
func (m *RoundMachine) Enter(phase string) error {
	next, ok := m.phases[phase]
	if !ok {
		return fmt.Errorf("%w: unknown phase %q", ErrTransitionNotAllowed, phase)
	}
	return m.ChangeState(next)
}

func (m *RoundMachine) Phase() string {
	return m.GetCurrentState().GetID()
}

func (m *RoundMachine) In(phase string) bool {
	return m.Phase() == phase
}
