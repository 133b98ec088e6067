// Package dbtest opens isolated in-memory sqlite databases migrated with the
// domain models for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

// Open returns a fresh database with every domain table migrated. The pool is
// capped at one connection so concurrent transactions queue like row locks would.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:library_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// OpenClient wraps Open in a db.Client so callers can use WithTx.
func OpenClient(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.NewFromGorm(conn), conn
}

// SeedBook inserts a book with the given counts.
func SeedBook(t *testing.T, conn *gorm.DB, title string, total, available int) models.Book {
	t.Helper()
	book := models.Book{
		Title:           title,
		Author:          "Author of " + title,
		Publisher:       "Test Press",
		TotalCopies:     total,
		AvailableCopies: available,
	}
	if err := conn.Create(&book).Error; err != nil {
		t.Fatalf("seed book %q: %v", title, err)
	}
	return book
}

// SeedUser inserts a user with a placeholder password hash.
func SeedUser(t *testing.T, conn *gorm.DB, name string, role enums.Role) models.User {
	t.Helper()
	user := models.User{
		Email:        fmt.Sprintf("%s_%s@example.com", name, uuid.NewString()[:8]),
		Name:         name,
		PasswordHash: "not-a-real-hash",
		Role:         role,
		IsActive:     true,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user %q: %v", name, err)
	}
	return user
}
