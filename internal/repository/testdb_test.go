package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/critichord/config"
	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/pkg/database"
)

// newTestDB 每个测试独立的内存库；保留一个空闲连接，否则共享缓存库会随连接关闭而消失
func newTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(tb, err)
	require.NoError(tb, database.Migrate(db))
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedUsers(tb testing.TB, db *gorm.DB, users ...model.User) {
	tb.Helper()
	require.NoError(tb, db.Create(&users).Error)
}

func reloadUser(tb testing.TB, db *gorm.DB, id string) model.User {
	tb.Helper()
	var u model.User
	require.NoError(tb, db.Where("id = ?", id).First(&u).Error)
	return u
}
