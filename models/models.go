package models

import (
	"time"
)

// Round outcomes as recorded.
const (
	OutcomeWin     = "win"
	OutcomeDraw    = "draw"
	OutcomeAborted = "aborted"
)

// RoundRecord is one finished round of a room.
type RoundRecord struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	Round      int       `json:"round"`
	Challenge  string    `json:"challenge"`
	Players    []string  `json:"players"`
	Outcome    string    `json:"outcome"`
	Winner     string    `json:"winner,omitempty"`
	Moves      int       `json:"moves"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r *RoundRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Score is a player's win count.
type Score struct {
	Username string `json:"username"`
	Wins     int64  `json:"wins"`
}
