package game

import (
	"encoding/json"
	"errors"
)

var (
	// ErrInvalidMove is a well-formed move the rules do not allow in the current state.
	ErrInvalidMove = errors.New("invalid move")
	// ErrMalformedMove is a move payload that does not decode as the engine's move type.
	ErrMalformedMove = errors.New("malformed move")
)

// State is owned by an Engine. Callers hold it and pass it back, never look inside.
type State any

type OutcomeKind int

const (
	Continue OutcomeKind = iota
	Win
	Draw
)

func (k OutcomeKind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Win:
		return "win"
	case Draw:
		return "draw"
	}
	return "unknown"
}

type Outcome struct {
	Kind   OutcomeKind
	Winner string
}

func (o Outcome) Terminal() bool {
	return o.Kind != Continue
}

// Engine is the rule set of one challenge. Implementations must not mutate
// a State they were given.
type Engine interface {
	Name() string
	InitialState(players []string) State
	// ValidateAndApply returns ErrInvalidMove or ErrMalformedMove (possibly
	// wrapped) when the move is rejected.
	ValidateAndApply(s State, player string, move json.RawMessage) (State, error)
	CheckTerminal(s State) Outcome
	Serialize(s State) (json.RawMessage, error)
}
