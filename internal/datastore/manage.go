package datastore

import (
	"context"
	"log/slog"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/voicewire/voicewire-go/internal/errors"
	"github.com/voicewire/voicewire-go/internal/logging"
)

// slowQueryThreshold marks queries worth a warning log.
const slowQueryThreshold = time.Second

// slogGormLogger adapts GORM's logger interface onto the structured logger
// used everywhere else in the process.
type slogGormLogger struct {
	log   *slog.Logger
	level gormlogger.LogLevel
}

func newGormLogger() gormlogger.Interface {
	return &slogGormLogger{
		log:   logging.ForService("datastore"),
		level: gormlogger.Warn,
	}
}

func (l *slogGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(msg, "args", args)
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(msg, "args", args)
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(msg, "args", args)
	}
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.log.Error("query failed", "sql", sql, "rows", rows,
			"elapsed_ms", float64(elapsed.Microseconds())/1000.0, "error", err)
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query", "sql", sql, "rows", rows,
			"elapsed_ms", float64(elapsed.Microseconds())/1000.0)
	}
}

// performAutoMigration runs schema migrations for the transcript model.
func performAutoMigration(db interface {
	AutoMigrate(dst ...any) error
}, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&TranscriptRecord{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Context("connection", connectionInfo).
			Build()
	}
	logging.ForService("datastore").Info("database ready",
		"type", dbType, "connection", connectionInfo)
	return nil
}
