package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appLogger "github.com/ikkim/tabline-backend/pkg/logger"
)

// queryLogger sends gorm output through the app logger. Only failed and slow
// statements are reported; lookups that find nothing are expected.
type queryLogger struct {
	slow  time.Duration
	level gormlogger.LogLevel
}

func newQueryLogger(slow time.Duration) *queryLogger {
	return &queryLogger{slow: slow, level: gormlogger.Warn}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *queryLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		appLogger.Debug(fmt.Sprintf(msg, args...), map[string]interface{}{"component": "gorm"})
	}
}

func (l *queryLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		appLogger.Warn(fmt.Sprintf(msg, args...), map[string]interface{}{"component": "gorm"})
	}
}

func (l *queryLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		appLogger.Error("gorm error", fmt.Errorf(msg, args...), map[string]interface{}{"component": "gorm"})
	}
}

func (l *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		appLogger.Error("Query failed", err, map[string]interface{}{
			"sql":         sql,
			"rows":        rows,
			"duration_ms": elapsed.Milliseconds(),
		})
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		appLogger.Warn("Slow query", map[string]interface{}{
			"sql":         sql,
			"rows":        rows,
			"duration_ms": elapsed.Milliseconds(),
			"threshold":   l.slow.String(),
		})
	}
}
