package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/learning-buddy/internal/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func TestIsSQLite(t *testing.T) {
	assert.True(t, IsSQLite("file::memory:?cache=shared"))
	assert.True(t, IsSQLite(":memory:"))
	assert.True(t, IsSQLite("./data/buddy.db"))
	assert.False(t, IsSQLite("app:apppass@tcp(127.0.0.1:3306)/learning_buddy?parseTime=true"))
}

type widget struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Name string
}

func TestOpen_SQLiteMigrates(t *testing.T) {
	gdb, err := Open("file::memory:", nil)
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb, &widget{}))

	require.NoError(t, gdb.Create(&widget{Name: "x"}).Error)
	var n int64
	require.NoError(t, gdb.Model(&widget{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestOpen_LogsThroughAppLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	gdb, err := Open("file:TestOpen_LogsThroughAppLogger?mode=memory&cache=shared", log)
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb, &widget{}))

	var w widget
	err = gdb.Where("name = ?", "missing").First(&w).Error
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.Equal(t, 0, logs.Len(), "a miss is not logged")

	err = gdb.Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)
	require.Equal(t, 1, logs.FilterMessage("gorm").Len())
	assert.Equal(t, zap.WarnLevel, logs.FilterMessage("gorm").All()[0].Level)
}
