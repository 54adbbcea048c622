package db

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ikkim/tabline-backend/config"
	"github.com/ikkim/tabline-backend/internal/app/model"
	appLogger "github.com/ikkim/tabline-backend/pkg/logger"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	appLogger.Initialize(appLogger.Config{Level: "debug", Format: "json", Output: &buf})
	return &buf
}

func TestOpenAppliesPoolLimits(t *testing.T) {
	captureLogs(t)
	conn, err := open(sqlite.Open(":memory:"), &config.DatabaseConfig{
		MaxIdleConns:    2,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)
	defer CleanupTestDB(conn)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	assert.Equal(t, 4, sqlDB.Stats().MaxOpenConnections)
}

func TestQueryLogger_SlowStatement(t *testing.T) {
	buf := captureLogs(t)
	l := newQueryLogger(10 * time.Millisecond)

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Empty(t, buf.String(), "fast statements stay quiet")

	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT * FROM ticket_links", 3
	}, nil)
	assert.Contains(t, buf.String(), "Slow query")
	assert.Contains(t, buf.String(), "ticket_links")
}

func TestQueryLogger_SkipsNotFound(t *testing.T) {
	buf := captureLogs(t)
	gdb, err := SetupTestDB()
	require.NoError(t, err)
	defer CleanupTestDB(gdb)
	gdb.Logger = newQueryLogger(0)

	var link model.TicketLink
	err = gdb.First(&link, 42).Error
	require.Error(t, err)
	assert.NotContains(t, buf.String(), "Query failed")

	err = gdb.Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)
	assert.Contains(t, buf.String(), "Query failed")
}

func TestQueryLogger_Silent(t *testing.T) {
	buf := captureLogs(t)
	l := newQueryLogger(time.Millisecond).LogMode(gormlogger.Silent)

	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Empty(t, buf.String())
}
