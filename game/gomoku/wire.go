package gomoku

import (
	"encoding/json"
	"fmt"
)

const emptyCell = "empty"

// cell marshals as "empty" or {"occupied":"<username>"}.
type cell string

func (c cell) MarshalJSON() ([]byte, error) {
	if c == "" {
		return json.Marshal(emptyCell)
	}
	return json.Marshal(struct {
		Occupied string `json:"occupied"`
	}{string(c)})
}

func (c *cell) UnmarshalJSON(data []byte) error {
	var marker string
	if err := json.Unmarshal(data, &marker); err == nil {
		if marker != emptyCell {
			return fmt.Errorf("gomoku: unknown cell marker %q", marker)
		}
		*c = ""
		return nil
	}

	var occ struct {
		Occupied *string `json:"occupied"`
	}
	if err := json.Unmarshal(data, &occ); err != nil {
		return fmt.Errorf("gomoku: decoding cell: %w", err)
	}
	if occ.Occupied == nil || *occ.Occupied == "" {
		return fmt.Errorf("gomoku: cell %s has no owner", data)
	}
	*c = cell(*occ.Occupied)
	return nil
}

type wireBoard struct {
	Cells  []cell `json:"cells"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Encode renders a board the way it is sent in your-turn messages.
func Encode(b *Board) (json.RawMessage, error) {
	w := wireBoard{
		Cells:  make([]cell, len(b.Cells)),
		Width:  b.Width,
		Height: b.Height,
	}
	for i, owner := range b.Cells {
		w.Cells[i] = cell(owner)
	}
	return json.Marshal(w)
}

// DecodeBoard parses a your-turn game state back into a Board.
func DecodeBoard(raw json.RawMessage) (*Board, error) {
	var w wireBoard
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Width < 1 || w.Height < 1 || len(w.Cells) != w.Width*w.Height {
		return nil, fmt.Errorf("gomoku: %d cells do not fit a %dx%d board", len(w.Cells), w.Width, w.Height)
	}
	b := &Board{Width: w.Width, Height: w.Height, Cells: make([]string, len(w.Cells))}
	for i, c := range w.Cells {
		b.Cells[i] = string(c)
	}
	return b, nil
}
