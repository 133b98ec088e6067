package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

func TestCreateNormalizesAndRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))

	user, err := repo.Create(ctx, CreateUserDTO{Name: " Ada ", Email: " Ada@Example.COM ", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, enums.RoleUser, user.Role, "invalid roles default to user")

	_, err = repo.Create(ctx, CreateUserDTO{Name: "Ada again", Email: "ada@example.com", PasswordHash: "hash"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestFindByEmailIgnoresCase(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	created, err := repo.Create(ctx, CreateUserDTO{Name: "Grace", Email: "grace@example.com", PasswordHash: "hash", Role: enums.RoleAdmin})
	require.NoError(t, err)

	found, err := repo.FindByEmail(ctx, "GRACE@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	_, err = repo.FindByID(ctx, uuid.New())
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRecordLoginOptionallyReplacesHash(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	user, err := repo.Create(ctx, CreateUserDTO{Name: "Lin", Email: "lin@example.com", PasswordHash: "old-hash"})
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordLogin(ctx, user.ID, at, ""))
	stored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, stored.LastLoginAt.Equal(at))
	assert.Equal(t, "old-hash", stored.PasswordHash)

	require.NoError(t, repo.RecordLogin(ctx, user.ID, at.Add(time.Hour), "new-hash"))
	stored, err = repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", stored.PasswordHash)

	assert.ErrorIs(t, repo.RecordLogin(ctx, uuid.New(), at, ""), gorm.ErrRecordNotFound)
}
