package services

import (
	"context"
	"errors"

	"github.com/wfunc/codechallenge/logger"
	"github.com/wfunc/codechallenge/models"
	"github.com/wfunc/codechallenge/persistence"
)

// ErrNoDatabase is returned by history queries when rounds are not persisted.
var ErrNoDatabase = errors.New("no round database configured")

// winCounter is implemented by databases that can rebuild a scoreboard.
type winCounter interface {
	WinCounts(ctx context.Context) (map[string]int64, error)
}

type seeder interface {
	Seed(counts map[string]int64)
}

// ResultService records finished rounds and keeps the scoreboard.
type ResultService struct {
	db     persistence.Database
	scores persistence.ScoreStore
}

// NewResultService builds the service. db may be nil.
func NewResultService(db persistence.Database, scores persistence.ScoreStore) *ResultService {
	return &ResultService{db: db, scores: scores}
}

// Restore loads win counts from the round database into an empty in-memory
// scoreboard so a restart keeps the standings.
func (s *ResultService) Restore(ctx context.Context) error {
	wc, ok := s.db.(winCounter)
	if !ok {
		return nil
	}
	sd, ok := s.scores.(seeder)
	if !ok {
		return nil
	}

	counts, err := wc.WinCounts(ctx)
	if err != nil {
		return err
	}
	sd.Seed(counts)
	logger.Log.Infof("Restored win counts for %d players", len(counts))
	return nil
}

// RecordRound saves a finished round and credits the winner.
func (s *ResultService) RecordRound(ctx context.Context, record *models.RoundRecord) error {
	if s.db != nil {
		if err := s.db.SaveRoundRecord(ctx, record); err != nil {
			return err
		}
	}

	if record.Outcome != models.OutcomeWin || record.Winner == "" {
		return nil
	}
	wins, err := s.scores.AddWin(ctx, record.Winner)
	if err != nil {
		return err
	}
	logger.Log.Debugw("Win recorded", "username", record.Winner, "wins", wins)
	return nil
}

func (s *ResultService) Scores(ctx context.Context) ([]models.Score, error) {
	return s.scores.Scores(ctx)
}

// ResetScores clears the scoreboard. Recorded rounds are kept.
func (s *ResultService) ResetScores(ctx context.Context) error {
	if err := s.scores.ResetScores(ctx); err != nil {
		return err
	}
	logger.Log.Info("Scoreboard reset")
	return nil
}

func (s *ResultService) RecentRounds(ctx context.Context, limit int) ([]*models.RoundRecord, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}
	return s.db.RecentRounds(ctx, limit)
}

func (s *ResultService) Round(ctx context.Context, id string) (*models.RoundRecord, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}
	return s.db.GetRoundRecord(ctx, id)
}
