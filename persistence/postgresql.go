package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL 驱动
	"github.com/wfunc/codechallenge/models"
)

// PostgreSQL stores round records with plain database/sql on lib/pq.
type PostgreSQL struct {
	db *sql.DB
}

var _ Database = (*PostgreSQL)(nil)

func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", postgresDSN(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS rounds (
            id VARCHAR(36) PRIMARY KEY,
            room_id VARCHAR(36) NOT NULL,
            round INTEGER NOT NULL,
            challenge VARCHAR(64) NOT NULL,
            players JSONB NOT NULL,
            outcome VARCHAR(16) NOT NULL,
            winner VARCHAR(255) NOT NULL DEFAULT '',
            moves INTEGER NOT NULL DEFAULT 0,
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_rounds_finished_at ON rounds (finished_at DESC)`)
	return err
}

func (p *PostgreSQL) SaveRoundRecord(ctx context.Context, r *models.RoundRecord) error {
	players, err := json.Marshal(r.Players)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
        INSERT INTO rounds (id, room_id, round, challenge, players, outcome, winner, moves, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.RoomID, r.Round, r.Challenge, players, r.Outcome, r.Winner, r.Moves, r.StartedAt, r.FinishedAt,
	)
	return err
}

const selectRounds = `
    SELECT id, room_id, round, challenge, players, outcome, winner, moves, started_at, finished_at
    FROM rounds`

func (p *PostgreSQL) GetRoundRecord(ctx context.Context, id string) (*models.RoundRecord, error) {
	row := p.db.QueryRowContext(ctx, selectRounds+` WHERE id = $1`, id)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return r, err
}

func (p *PostgreSQL) RecentRounds(ctx context.Context, limit int) ([]*models.RoundRecord, error) {
	rows, err := p.db.QueryContext(ctx, selectRounds+` ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.RoundRecord
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(s scanner) (*models.RoundRecord, error) {
	var (
		r       models.RoundRecord
		players []byte
	)
	err := s.Scan(&r.ID, &r.RoomID, &r.Round, &r.Challenge, &players, &r.Outcome, &r.Winner, &r.Moves, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(players, &r.Players); err != nil {
		return nil, fmt.Errorf("decoding players of round %s: %w", r.ID, err)
	}
	return &r, nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
