package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   uint
	Name string
}

func TestOpenAndMigrateSqlite(t *testing.T) {
	conn, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	require.NoError(t, Migrate(conn, &widget{}))
	require.NoError(t, conn.Create(&widget{Name: "a"}).Error)

	var count int64
	require.NoError(t, conn.Model(&widget{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOpenRejectsBadInput(t *testing.T) {
	_, err := Open("sqlite", "")
	assert.Error(t, err)
	_, err = Open("postgres", "host=x")
	assert.Error(t, err)
}

func TestMigrateRequiresModels(t *testing.T) {
	conn, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	assert.Error(t, Migrate(conn))
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "mysql", DriverName("mysql"))
	assert.Equal(t, "sqlite3", DriverName("sqlite"))
	assert.Equal(t, "sqlite3", DriverName(""))
}

func TestGormLoggerBuilds(t *testing.T) {
	assert.NotNil(t, newGormLogger())
	assert.Equal(t, 200, int(slowQueryThreshold.Milliseconds()))
}
