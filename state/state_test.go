package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockState is a test double for the State interface.
// It helps us track which methods have been called.
type MockState struct {
	ID            string
	OnEnterCalled bool
	OnExitCalled  bool
}

func (m *MockState) OnEnter() {
	m.OnEnterCalled = true
}

func (m *MockState) OnExit() {
	m.OnExitCalled = true
}

func (m *MockState) GetID() string {
	return m.ID
}

// reset clears the call tracking flags.
func (m *MockState) reset() {
	m.OnEnterCalled = false
	m.OnExitCalled = false
}

type mockRoom struct{}

func (mockRoom) GetID() string { return "room-1" }

func TestStateMachine_InitialState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	sm := NewBaseStateMachine(initialState)

	if !initialState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the initial state")
	}

	if sm.GetCurrentState() != initialState {
		t.Error("GetCurrentState should return the initial state")
	}
}

func TestStateMachine_ChangeState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	nextState := &MockState{ID: "next"}

	sm := NewBaseStateMachine(initialState)
	require.NoError(t, sm.AddTransition(initialState, nextState, nil))
	initialState.reset() // Reset after initialization

	err := sm.ChangeState(nextState)
	if err != nil {
		t.Fatalf("ChangeState should not return an error, but got: %v", err)
	}

	if !initialState.OnExitCalled {
		t.Error("Expected OnExit to be called on the old state")
	}

	if !nextState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the new state")
	}

	if sm.GetCurrentState() != nextState {
		t.Error("GetCurrentState should return the new state")
	}
}

func TestStateMachine_UnregisteredTransition(t *testing.T) {
	stateA := &MockState{ID: "A"}
	stateB := &MockState{ID: "B"}
	sm := NewBaseStateMachine(stateA)

	err := sm.ChangeState(stateB)
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.Equal(t, "A", sm.GetCurrentState().GetID())
	assert.False(t, stateB.OnEnterCalled)
}

func TestStateMachine_AddAndUseTransition(t *testing.T) {
	stateA := &MockState{ID: "A"}
	stateB := &MockState{ID: "B"}
	stateC := &MockState{ID: "C"}

	sm := NewBaseStateMachine(stateA)

	// Add a valid transition from A to B
	err := sm.AddTransition(stateA, stateB, func() bool { return true })
	if err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	// Add a blocked transition from B to C
	err = sm.AddTransition(stateB, stateC, func() bool { return false })
	if err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	// --- Test valid transition ---
	stateA.reset()
	err = sm.ChangeState(stateB)
	if err != nil {
		t.Errorf("Expected transition from A to B to be allowed, but got error: %v", err)
	}
	if sm.GetCurrentState().GetID() != "B" {
		t.Errorf("Expected current state to be B, but got %s", sm.GetCurrentState().GetID())
	}

	// --- Test blocked transition ---
	stateB.reset()
	err = sm.ChangeState(stateC)
	if !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("Expected ErrTransitionNotAllowed, but got: %v", err)
	}
	if sm.GetCurrentState().GetID() != "B" {
		t.Errorf("Expected current state to remain B after a blocked transition, but got %s", sm.GetCurrentState().GetID())
	}
	if stateB.OnExitCalled {
		t.Error("OnExit should not be called on the current state if transition is blocked")
	}
	if stateC.OnEnterCalled {
		t.Error("OnEnter should not be called on the new state if transition is blocked")
	}
}

func TestRoundMachine_Lifecycle(t *testing.T) {
	m := NewRoundMachine(mockRoom{})
	assert.True(t, m.In(PhaseIdle))

	for _, phase := range []string{
		PhaseAwaitingMove,
		PhaseApplying,
		PhaseAwaitingMove,
		PhaseApplying,
		PhaseRoundOver,
		PhaseAwaitingMove,
		PhaseIdle,
	} {
		require.NoError(t, m.Enter(phase), phase)
		assert.Equal(t, phase, m.Phase())
	}
}

func TestRoundMachine_RejectsShortcuts(t *testing.T) {
	m := NewRoundMachine(mockRoom{})

	assert.ErrorIs(t, m.Enter(PhaseApplying), ErrTransitionNotAllowed)
	assert.ErrorIs(t, m.Enter(PhaseRoundOver), ErrTransitionNotAllowed)
	assert.ErrorIs(t, m.Enter("paused"), ErrTransitionNotAllowed)
	assert.True(t, m.In(PhaseIdle))

	require.NoError(t, m.Enter(PhaseAwaitingMove))
	assert.ErrorIs(t, m.Enter(PhaseRoundOver), ErrTransitionNotAllowed)
}
