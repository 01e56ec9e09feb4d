// internal/store/sqlite.go
package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger adapts the zap logger to gorm's logger.Interface.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}
	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

type sqliteStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database file and migrates the
// positions table. A failure here is fatal upstream: the engine must
// not trade without capital-at-risk tracking.
func NewSQLiteStore(path string, zapLogger *zap.Logger) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Position{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &sqliteStore{
		db:     db,
		logger: zapLogger.Named("store"),
	}, nil
}

func (s *sqliteStore) Insert(ctx context.Context, position *Position) error {
	if position.OpenedAt.IsZero() {
		position.OpenedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(position).Error; err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context) ([]*Position, error) {
	var positions []*Position
	if err := s.db.WithContext(ctx).Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	return positions, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&Position{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete position %d: %w", id, err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
