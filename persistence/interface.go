package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wfunc/codechallenge/config"
	"github.com/wfunc/codechallenge/models"
)

// Database stores finished rounds.
type Database interface {
	SaveRoundRecord(ctx context.Context, record *models.RoundRecord) error
	GetRoundRecord(ctx context.Context, id string) (*models.RoundRecord, error)
	// RecentRounds returns up to limit records, newest first.
	RecentRounds(ctx context.Context, limit int) ([]*models.RoundRecord, error)
	Close() error
}

// ScoreStore keeps the win count of every player.
type ScoreStore interface {
	AddWin(ctx context.Context, username string) (int64, error)
	// Scores returns every player with at least one win, best first.
	Scores(ctx context.Context) ([]models.Score, error)
	// ResetScores forgets every win.
	ResetScores(ctx context.Context) error
	Close() error
}

var (
	ErrRecordNotFound = errors.New("record not found")
)

// Open connects the configured round database. It returns nil when no
// driver is configured.
func Open(cfg config.DatabaseConfig) (Database, error) {
	pg := cfg.Postgres
	switch strings.ToLower(cfg.Driver) {
	case "":
		return nil, nil
	case "sqlite":
		return NewGormSQLite(cfg.SQLitePath)
	case "postgres":
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "pq":
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// OpenScores returns a redis score store when a URL is configured and an
// in-memory one otherwise.
func OpenScores(cfg config.RedisConfig) (ScoreStore, error) {
	if cfg.URL == "" {
		return NewMemoryScores(), nil
	}
	return NewRedisScores(cfg.URL)
}

func postgresDSN(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}
