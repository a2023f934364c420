package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/codechallenge/models"
	"github.com/wfunc/codechallenge/persistence"
)

// MockDatabase keeps records in a slice.
type MockDatabase struct {
	records []*models.RoundRecord
	err     error
}

func (m *MockDatabase) SaveRoundRecord(_ context.Context, r *models.RoundRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, r)
	return nil
}

func (m *MockDatabase) GetRoundRecord(_ context.Context, id string) (*models.RoundRecord, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, persistence.ErrRecordNotFound
}

func (m *MockDatabase) RecentRounds(_ context.Context, limit int) ([]*models.RoundRecord, error) {
	var out []*models.RoundRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *MockDatabase) Close() error { return nil }

func win(id, winner string) *models.RoundRecord {
	now := time.Now().UTC()
	return &models.RoundRecord{
		ID: id, RoomID: "room", Round: 1, Challenge: "gomoku",
		Players: []string{"erik", "simon"}, Outcome: models.OutcomeWin, Winner: winner,
		StartedAt: now, FinishedAt: now,
	}
}

func TestResultService_RecordRound(t *testing.T) {
	db := &MockDatabase{}
	svc := NewResultService(db, persistence.NewMemoryScores())
	ctx := context.Background()

	require.NoError(t, svc.RecordRound(ctx, win("1", "erik")))
	require.NoError(t, svc.RecordRound(ctx, win("2", "simon")))
	require.NoError(t, svc.RecordRound(ctx, win("3", "erik")))
	require.NoError(t, svc.RecordRound(ctx, &models.RoundRecord{ID: "4", Outcome: models.OutcomeDraw}))

	assert.Len(t, db.records, 4)

	scores, err := svc.Scores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Score{{Username: "erik", Wins: 2}, {Username: "simon", Wins: 1}}, scores)

	recent, err := svc.RecentRounds(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "4", recent[0].ID)

	got, err := svc.Round(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "simon", got.Winner)
}

func TestResultService_SaveFailureSkipsScore(t *testing.T) {
	db := &MockDatabase{err: errors.New("disk full")}
	scores := persistence.NewMemoryScores()
	svc := NewResultService(db, scores)

	assert.Error(t, svc.RecordRound(context.Background(), win("1", "erik")))
	s, err := scores.Scores(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestResultService_ResetScores(t *testing.T) {
	db := &MockDatabase{}
	svc := NewResultService(db, persistence.NewMemoryScores())
	ctx := context.Background()

	require.NoError(t, svc.RecordRound(ctx, win("1", "erik")))
	require.NoError(t, svc.ResetScores(ctx))

	scores, err := svc.Scores(ctx)
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Len(t, db.records, 1)

	require.NoError(t, svc.RecordRound(ctx, win("2", "simon")))
	scores, err = svc.Scores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Score{{Username: "simon", Wins: 1}}, scores)
}

func TestResultService_NoDatabase(t *testing.T) {
	svc := NewResultService(nil, persistence.NewMemoryScores())
	ctx := context.Background()

	require.NoError(t, svc.RecordRound(ctx, win("1", "erik")))
	scores, err := svc.Scores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Score{{Username: "erik", Wins: 1}}, scores)

	_, err = svc.RecentRounds(ctx, 10)
	assert.ErrorIs(t, err, ErrNoDatabase)
	require.NoError(t, svc.Restore(ctx))
}

func TestResultService_Restore(t *testing.T) {
	ctx := context.Background()
	db, err := persistence.NewGormSQLite(filepath.Join(t.TempDir(), "rounds.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, NewResultService(db, persistence.NewMemoryScores()).RecordRound(ctx, win("1", "erik")))
	require.NoError(t, NewResultService(db, persistence.NewMemoryScores()).RecordRound(ctx, win("2", "erik")))

	svc := NewResultService(db, persistence.NewMemoryScores())
	require.NoError(t, svc.Restore(ctx))
	scores, err := svc.Scores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Score{{Username: "erik", Wins: 2}}, scores)
}
