package storage

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"volitus/server/internal/config"
	"volitus/server/internal/models"
)

// MySQLStore archives resolved votes and inserted chapters
type MySQLStore struct {
	db *gorm.DB
}

// DSN builds the go-sql-driver data source name for cfg
func DSN(cfg config.MySQLConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	db, err := gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql db")
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return newMySQLStore(db)
}

func newMySQLStore(db *gorm.DB) (*MySQLStore, error) {
	if err := db.AutoMigrate(&models.VoteRecord{}, &models.ChapterRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate archive tables")
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ArchiveVote stores the outcome of a vote, replacing an earlier record with
// the same id
func (s *MySQLStore) ArchiveVote(ctx context.Context, rec *models.VoteRecord) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	return errors.Wrapf(err, "archive vote %s", rec.ID)
}

// ArchiveChapter stores a chapter insertion
func (s *MySQLStore) ArchiveChapter(ctx context.Context, rec *models.ChapterRecord) error {
	err := s.db.WithContext(ctx).Create(rec).Error
	return errors.Wrapf(err, "archive chapter %d of room %s", rec.ChapterID, rec.RoomID)
}

// RecentVotes returns the latest archived votes of a room, newest first
func (s *MySQLStore) RecentVotes(ctx context.Context, roomID string, limit int) ([]models.VoteRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.VoteRecord
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("resolved_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "list votes")
	}
	return out, nil
}

// ChapterHistory returns the chapters inserted into a room, oldest first
func (s *MySQLStore) ChapterHistory(ctx context.Context, roomID string) ([]models.ChapterRecord, error) {
	var out []models.ChapterRecord
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "list chapters")
	}
	return out, nil
}
