package catalog

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/inventory"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/pkg/auth"
	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/outbox"
)

var admin = auth.Principal{UserID: uuid.New(), Role: enums.RoleAdmin}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(
		client,
		inventory.NewRepository(conn),
		loans.NewRepository(conn),
		outbox.NewService(outbox.NewRepository(conn), logg),
		logg,
	)
	require.NoError(t, err)
	return svc, conn
}

func ptr[T any](v T) *T { return &v }

func TestCreateStartsWithAllCopiesAvailable(t *testing.T) {
	svc, _ := newTestService(t)

	book, err := svc.Create(context.Background(), admin, CreateBookInput{
		Title:       "  Dune ",
		Author:      "Frank Herbert",
		Publisher:   "Chilton",
		TotalCopies: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, 4, book.TotalCopies)
	assert.Equal(t, 4, book.AvailableCopies)
	assert.NotEqual(t, uuid.Nil, book.ID)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateBookInput
	}{
		{"missing title", CreateBookInput{Author: "a", TotalCopies: 1}},
		{"missing author", CreateBookInput{Title: "t", TotalCopies: 1}},
		{"zero copies", CreateBookInput{Title: "t", Author: "a", TotalCopies: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, admin, tc.input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestMutationsRequireAdmin(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	book := dbtest.SeedBook(t, conn, "Guarded", 1, 1)
	member := auth.Principal{UserID: uuid.New(), Role: enums.RoleUser}

	_, err := svc.Create(ctx, member, CreateBookInput{Title: "t", Author: "a", TotalCopies: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.Update(ctx, member, book.ID, UpdateBookInput{Title: ptr("x")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = svc.Delete(ctx, auth.Principal{}, book.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestUpdateResizeGrowAndShrink(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	grow := dbtest.SeedBook(t, conn, "Grow", 2, 0)
	updated, err := svc.Update(ctx, admin, grow.ID, UpdateBookInput{TotalCopies: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.TotalCopies)
	assert.Equal(t, 3, updated.AvailableCopies)

	shrink := dbtest.SeedBook(t, conn, "Shrink", 5, 3)
	updated, err = svc.Update(ctx, admin, shrink.ID, UpdateBookInput{TotalCopies: ptr(1), Author: ptr("New Author")})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalCopies)
	assert.Equal(t, 0, updated.AvailableCopies)
	assert.Equal(t, "New Author", updated.Author)

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ?", enums.EventBookResized).Find(&events).Error)
	assert.Len(t, events, 2)
}

func TestUpdateDetailsOnlyDoesNotEmitResize(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	book := dbtest.SeedBook(t, conn, "Old Title", 3, 2)

	updated, err := svc.Update(ctx, admin, book.ID, UpdateBookInput{Title: ptr("New Title"), TotalCopies: ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, "New Title", updated.Title)
	assert.Equal(t, 2, updated.AvailableCopies)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateValidationAndNotFound(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	book := dbtest.SeedBook(t, conn, "Stable", 2, 2)

	_, err := svc.Update(ctx, admin, book.ID, UpdateBookInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Update(ctx, admin, book.ID, UpdateBookInput{Title: ptr("   ")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Update(ctx, admin, book.ID, UpdateBookInput{TotalCopies: ptr(0)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Update(ctx, admin, uuid.New(), UpdateBookInput{Title: ptr("x")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteRejectedWhileLoansActive(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, conn, "reader", enums.RoleUser)
	book := dbtest.SeedBook(t, conn, "Popular", 2, 1)

	now := time.Now().UTC()
	loan := models.Loan{UserID: user.ID, BookID: book.ID, DateBorrowed: now, DueDate: now.Add(time.Hour)}
	require.NoError(t, conn.Create(&loan).Error)

	err := svc.Delete(ctx, admin, book.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	require.NoError(t, conn.Model(&models.Loan{}).Where("id = ?", loan.ID).Update("date_return", now).Error)
	require.NoError(t, svc.Delete(ctx, admin, book.ID))

	_, err = svc.Get(ctx, book.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = svc.Delete(ctx, admin, book.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListIncludesUnavailableBooks(t *testing.T) {
	svc, conn := newTestService(t)
	dbtest.SeedBook(t, conn, "B", 1, 0)
	dbtest.SeedBook(t, conn, "A", 1, 1)

	books, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "A", books[0].Title)
	assert.Equal(t, "B", books[1].Title)
}
