package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/wfunc/codechallenge/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore keeps round records through gorm, on PostgreSQL or SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ Database = (*GormStore)(nil)

// NewGormPostgreSQL 连接 PostgreSQL 并迁移 round_records 表
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormStore, error) {
	store, err := NewGormStore(postgres.Open(postgresDSN(host, port, user, password, dbname)))
	if err != nil {
		return nil, err
	}

	sqlDB, err := store.db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return store, nil
}

// NewGormSQLite opens (or creates) a SQLite database file.
func NewGormSQLite(path string) (*GormStore, error) {
	return NewGormStore(sqlite.Open(path))
}

func NewGormStore(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &GormStore{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormRoundRecord{},
	)
}

func (p *GormStore) SaveRoundRecord(ctx context.Context, record *models.RoundRecord) error {
	return p.db.WithContext(ctx).Create(models.NewGormRoundRecord(record)).Error
}

func (p *GormStore) GetRoundRecord(ctx context.Context, id string) (*models.RoundRecord, error) {
	var row models.GormRoundRecord
	err := p.db.WithContext(ctx).Where("record_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.ToRecord(), nil
}

func (p *GormStore) RecentRounds(ctx context.Context, limit int) ([]*models.RoundRecord, error) {
	var rows []models.GormRoundRecord
	err := p.db.WithContext(ctx).
		Order("finished_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]*models.RoundRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].ToRecord())
	}
	return records, nil
}

// WinCounts tallies recorded wins per player. Used to seed a fresh scoreboard.
func (p *GormStore) WinCounts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Winner string
		Wins   int64
	}
	err := p.db.WithContext(ctx).
		Model(&models.GormRoundRecord{}).
		Select("winner, COUNT(*) AS wins").
		Where("outcome = ?", models.OutcomeWin).
		Group("winner").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Winner] = r.Wins
	}
	return counts, nil
}

func (p *GormStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
