package gomoku

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wfunc/codechallenge/game"
)

const (
	Name = "gomoku"

	DefaultWidth  = 50
	DefaultHeight = 50

	// WinLength is the run of same-owner cells that wins a round.
	WinLength = 5
)

type Point struct {
	X int
	Y int
}

// Board is the engine's game state. Cells are row-major; "" is an empty cell.
type Board struct {
	Width  int
	Height int
	Cells  []string
	Last   *Point
}

func (b *Board) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

// At returns the owner of (x, y), or "" when empty or out of bounds.
func (b *Board) At(x, y int) string {
	if !b.inBounds(x, y) {
		return ""
	}
	return b.Cells[y*b.Width+x]
}

func (b *Board) Full() bool {
	for _, c := range b.Cells {
		if c == "" {
			return false
		}
	}
	return true
}

// Move is the payload of a move message.
type Move struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

type Engine struct {
	width  int
	height int
}

var _ game.Engine = (*Engine)(nil)

func New(width, height int) (*Engine, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("gomoku: board must be at least 1x1, got %dx%d", width, height)
	}
	return &Engine{width: width, height: height}, nil
}

func (e *Engine) Name() string { return Name }

func (e *Engine) InitialState(players []string) game.State {
	return &Board{
		Width:  e.width,
		Height: e.height,
		Cells:  make([]string, e.width*e.height),
	}
}

func (e *Engine) ValidateAndApply(s game.State, player string, raw json.RawMessage) (game.State, error) {
	b, err := board(s)
	if err != nil {
		return nil, err
	}

	var m Move
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrMalformedMove, err)
	}
	if m.X == nil || m.Y == nil {
		return nil, fmt.Errorf("%w: move needs x and y", game.ErrMalformedMove)
	}
	x, y := *m.X, *m.Y

	if !b.inBounds(x, y) {
		return nil, fmt.Errorf("%w: (%d,%d) is off the %dx%d board", game.ErrInvalidMove, x, y, b.Width, b.Height)
	}
	if owner := b.At(x, y); owner != "" {
		return nil, fmt.Errorf("%w: (%d,%d) is taken by %s", game.ErrInvalidMove, x, y, owner)
	}

	next := &Board{
		Width:  b.Width,
		Height: b.Height,
		Cells:  make([]string, len(b.Cells)),
		Last:   &Point{X: x, Y: y},
	}
	copy(next.Cells, b.Cells)
	next.Cells[y*b.Width+x] = player
	return next, nil
}

var directions = [4]Point{
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: 1, Y: 1},
	{X: 1, Y: -1},
}

// CheckTerminal looks for a winning run through the last placed cell, then
// for a full board.
func (e *Engine) CheckTerminal(s game.State) game.Outcome {
	b, err := board(s)
	if err != nil {
		return game.Outcome{Kind: game.Continue}
	}
	if b.Last != nil {
		owner := b.At(b.Last.X, b.Last.Y)
		for _, d := range directions {
			if 1+b.run(b.Last, d, owner)+b.run(b.Last, Point{X: -d.X, Y: -d.Y}, owner) >= WinLength {
				return game.Outcome{Kind: game.Win, Winner: owner}
			}
		}
	}
	if b.Full() {
		return game.Outcome{Kind: game.Draw}
	}
	return game.Outcome{Kind: game.Continue}
}

// run counts consecutive cells owned by owner starting next to p in direction d.
func (b *Board) run(p *Point, d Point, owner string) int {
	n := 0
	for x, y := p.X+d.X, p.Y+d.Y; b.inBounds(x, y) && b.At(x, y) == owner; x, y = x+d.X, y+d.Y {
		n++
	}
	return n
}

func (e *Engine) Serialize(s game.State) (json.RawMessage, error) {
	b, err := board(s)
	if err != nil {
		return nil, err
	}
	return Encode(b)
}

func board(s game.State) (*Board, error) {
	b, ok := s.(*Board)
	if !ok || b == nil {
		return nil, errors.New("gomoku: state is not a board")
	}
	return b, nil
}
