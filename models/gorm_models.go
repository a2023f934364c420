package models

import (
	"time"

	"gorm.io/gorm"
)

// GormRoundRecord is the table form of RoundRecord.
type GormRoundRecord struct {
	gorm.Model
	RecordID   string    `gorm:"uniqueIndex;size:36;not null"`
	RoomID     string    `gorm:"index;size:36;not null"`
	Round      int       `gorm:"not null"`
	Challenge  string    `gorm:"size:64;not null"`
	Players    []string  `gorm:"serializer:json"`
	Outcome    string    `gorm:"index;size:16;not null"`
	Winner     string    `gorm:"index;size:255"`
	Moves      int       `gorm:"default:0"`
	StartedAt  time.Time `gorm:"not null"`
	FinishedAt time.Time `gorm:"index;not null"`
}

func (GormRoundRecord) TableName() string {
	return "round_records"
}

func NewGormRoundRecord(r *RoundRecord) *GormRoundRecord {
	return &GormRoundRecord{
		RecordID:   r.ID,
		RoomID:     r.RoomID,
		Round:      r.Round,
		Challenge:  r.Challenge,
		Players:    r.Players,
		Outcome:    r.Outcome,
		Winner:     r.Winner,
		Moves:      r.Moves,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

func (g *GormRoundRecord) ToRecord() *RoundRecord {
	return &RoundRecord{
		ID:         g.RecordID,
		RoomID:     g.RoomID,
		Round:      g.Round,
		Challenge:  g.Challenge,
		Players:    g.Players,
		Outcome:    g.Outcome,
		Winner:     g.Winner,
		Moves:      g.Moves,
		StartedAt:  g.StartedAt,
		FinishedAt: g.FinishedAt,
	}
}
