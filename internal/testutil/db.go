// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"messenger-be/internal/database"
	"messenger-be/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB opens a migrated sqlite database in a temp dir. A single connection
// serializes transactions the way a row-locking server would.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(database.DriverSQLite, filepath.Join(t.TempDir(), "messenger.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// UserCreator is satisfied by the store.
type UserCreator interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
}

// SeedUsers creates one user per name with email <name>@example.com.
func SeedUsers(t *testing.T, s UserCreator, names ...string) []models.User {
	t.Helper()
	users := make([]models.User, 0, len(names))
	for _, n := range names {
		u, err := s.CreateUser(context.Background(), models.User{
			ID:           uuid.NewString(),
			Name:         n,
			Email:        n + "@example.com",
			PasswordHash: "x",
		})
		require.NoError(t, err)
		users = append(users, u)
	}
	return users
}
